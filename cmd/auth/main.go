// 認証サービスのエントリポイント。
// デモアカウントの資格情報を検証し、ロール付きのアクセストークンを発行する。
package main

import (
	"context"
	"fmt"

	"github.com/narendersurabhi/microservices-ml-platform/internal/auth"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/cli"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
)

func main() {
	cli.Execute(cli.NewServiceCommand("auth", "認証サービスを起動する", run))
}

func run(ctx context.Context, cfg config.Config) error {
	server, err := auth.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("認証サーバーの初期化に失敗: %w", err)
	}
	return server.Run(ctx)
}
