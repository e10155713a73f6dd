// ケースサービスのエントリポイント。
// ケースの作成をオーケストレーションし、scoringサービスの呼び出しをブレーカー・
// バルクヘッド・リトライで保護する。
package main

import (
	"context"
	"fmt"

	"github.com/narendersurabhi/microservices-ml-platform/internal/cases"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/cli"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/eventlog"
)

func main() {
	cli.Execute(cli.NewServiceCommand("case", "ケースサービスを起動する", run))
}

func run(ctx context.Context, cfg config.Config) error {
	log, closeLog, err := eventlog.Open(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("イベントログの接続に失敗: %w", err)
	}
	defer closeLog()

	server, err := cases.NewServer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("ケースサーバーの初期化に失敗: %w", err)
	}
	defer server.Close()
	return server.Run(ctx)
}
