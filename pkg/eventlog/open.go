package eventlog

import (
	"context"
	"log/slog"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/redisclient"
)

// Open はREDIS_URLが設定されていればRedisLogを、空であればMemoryLogを返す。
// 返されたclose関数は接続を閉じる。
func Open(ctx context.Context, redisURL string) (Log, func() error, error) {
	if redisURL == "" {
		slog.Warn("event_log_in_memory", slog.String("reason", "REDIS_URLが未設定のためプロセス内のログを使用します"))
		return NewMemoryLog(), func() error { return nil }, nil
	}
	client, err := redisclient.Open(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisLog(client), client.Close, nil
}
