// API Gatewayのエントリポイント。
// 認証・レート制限・CORSを適用し、パスの接頭辞で内部サービスへリクエストを振り分ける。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"fmt"

	"github.com/narendersurabhi/microservices-ml-platform/internal/gateway"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/cli"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/ratelimit"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/redisclient"
)

func main() {
	cli.Execute(cli.NewServiceCommand("gateway", "API Gatewayを起動する", run))
}

func run(ctx context.Context, cfg config.Config) error {
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" {
		client, err := redisclient.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("レート制限用のRedis接続に失敗: %w", err)
		}
		defer client.Close()
		limiter = ratelimit.NewRedis(client, cfg.RateLimit.Window)
	}

	server, err := gateway.NewServer(cfg, limiter)
	if err != nil {
		return fmt.Errorf("Gatewayサーバーの初期化に失敗: %w", err)
	}
	return server.Run(ctx)
}
