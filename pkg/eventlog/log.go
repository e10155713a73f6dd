// Package eventlog はドメインイベントの追記専用ログとコンシューマグループによる購読を提供する。
//
// 本番ではRedis Streams（RedisLog）、テストと開発ではプロセス内のMemoryLogを使用する。
// 配信は少なくとも1回（at-least-once）で、ACKされるまでエントリはグループの保留リストに残る。
package eventlog

import (
	"context"
	"time"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
)

// Log はコンシューマグループ付きの追記専用ログ。
type Log interface {
	// Append はイベントをストリームに追記し、採番されたエントリIDを返す。
	Append(ctx context.Context, stream string, e *event.Event) (string, error)
	// EnsureGroup はストリームの先頭から読むコンシューマグループを作成する。既に存在する場合は何もしない。
	EnsureGroup(ctx context.Context, stream, group string) error
	// Read はグループのエントリを最大count件取得する。
	// pendingがtrueの場合はconsumerに配信済みで未ACKのエントリを、falseの場合は未配信のエントリを取得して
	// consumerの保留リストに加える。blockが正の場合、未配信のエントリがなければ最大block待つ。
	Read(ctx context.Context, stream, group, consumer string, count int, block time.Duration, pending bool) ([]event.Event, error)
	// Ack はエントリを処理済みとしてグループの保留リストから取り除く。
	Ack(ctx context.Context, stream, group string, ids ...string) error
}
