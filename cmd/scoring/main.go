// スコアリングサービスのエントリポイント。
package main

import (
	"context"
	"fmt"

	"github.com/narendersurabhi/microservices-ml-platform/internal/scoring"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/cli"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/eventlog"
)

func main() {
	cli.Execute(cli.NewServiceCommand("scoring", "スコアリングサービスを起動する", run))
}

func run(ctx context.Context, cfg config.Config) error {
	log, closeLog, err := eventlog.Open(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("イベントログの接続に失敗: %w", err)
	}
	defer closeLog()

	return scoring.NewServer(cfg, log).Run(ctx)
}
