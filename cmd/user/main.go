// ユーザーサービスのエントリポイント。
package main

import (
	"context"
	"fmt"

	"github.com/narendersurabhi/microservices-ml-platform/internal/user"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/cli"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
)

func main() {
	cli.Execute(cli.NewServiceCommand("user", "ユーザーサービスを起動する", run))
}

func run(ctx context.Context, cfg config.Config) error {
	server, err := user.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ユーザーサーバーの初期化に失敗: %w", err)
	}
	defer server.Close()
	return server.Run(ctx)
}
