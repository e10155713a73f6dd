package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
)

// Redis Streamsのエントリのフィールド名。
const (
	fieldEventType = "event_type"
	fieldPayload   = "payload"
	fieldCreatedAt = "created_at"
)

// RedisLog はRedis Streamsによる Log の実装。
type RedisLog struct {
	client redis.UniversalClient
}

// NewRedisLog はRedisLogを生成する。
func NewRedisLog(client redis.UniversalClient) *RedisLog {
	return &RedisLog{client: client}
}

// Append はXADDでイベントを追記する。
func (l *RedisLog) Append(ctx context.Context, stream string, e *event.Event) (string, error) {
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			fieldEventType: string(e.EventType),
			fieldPayload:   string(e.Payload),
			fieldCreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("XADDに失敗: %w", err)
	}
	return id, nil
}

// EnsureGroup はXGROUP CREATE ... MKSTREAMでグループを作成する。BUSYGROUPエラーは無視する。
func (l *RedisLog) EnsureGroup(ctx context.Context, stream, group string) error {
	err := l.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("コンシューマグループの作成に失敗: %w", err)
	}
	return nil
}

// Read はXREADGROUPでエントリを取得する。
func (l *RedisLog) Read(ctx context.Context, stream, group, consumer string, count int, block time.Duration, pending bool) ([]event.Event, error) {
	id := ">"
	if pending {
		id = "0"
	}
	// go-redisはBlockが0でBLOCK 0（無期限）、負でBLOCKなしになる
	if pending || block <= 0 {
		block = -1
	}

	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, id},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("XREADGROUPに失敗: %w", err)
	}

	var events []event.Event
	for _, s := range res {
		for _, msg := range s.Messages {
			events = append(events, decodeMessage(msg))
		}
	}
	return events, nil
}

// Ack はXACKでエントリを処理済みにする。
func (l *RedisLog) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("XACKに失敗: %w", err)
	}
	return nil
}

// decodeMessage はストリームのエントリをイベントに変換する。
func decodeMessage(msg redis.XMessage) event.Event {
	e := event.Event{ID: msg.ID}
	if v, ok := msg.Values[fieldEventType].(string); ok {
		e.EventType = event.Type(v)
	}
	if v, ok := msg.Values[fieldPayload].(string); ok {
		e.Payload = []byte(v)
	}
	if v, ok := msg.Values[fieldCreatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.CreatedAt = t
		}
	}
	return e
}
