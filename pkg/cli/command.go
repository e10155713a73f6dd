// Package cli は各サービスのエントリポイントで使用するcobraコマンドを組み立てる。
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/logging"
)

// RunFunc は設定読み込み後に呼ばれるサービス本体。ctxはSIGINT/SIGTERMでキャンセルされる。
type RunFunc func(ctx context.Context, cfg config.Config) error

// NewServiceCommand はサービス起動用のルートコマンドを生成する。
// --port / --log-level フラグは環境変数より優先される。
func NewServiceCommand(service, short string, run RunFunc) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           service,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, service)
			if err != nil {
				return fmt.Errorf("設定の読み込みに失敗: %w", err)
			}
			logging.Setup(cfg.ServiceName, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().String("port", "", "リッスンポート（PORT）")
	cmd.Flags().String("log-level", "", "ログレベル（LOG_LEVEL）")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))

	return cmd
}

// Execute はコマンドを実行し、失敗した場合は終了コード1でプロセスを終了する。
func Execute(cmd *cobra.Command) {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.Use, err)
		os.Exit(1)
	}
}
