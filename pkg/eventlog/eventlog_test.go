package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
)

const (
	testStream = "case-events"
	testGroup  = "audit-consumers"
)

// newRedisLog はminiredisに接続したRedisLogを生成する。
func newRedisLog(t *testing.T) *RedisLog {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLog(client)
}

// logs は両方の実装で同じテストを実行するためのファクトリ。
func logs(t *testing.T) map[string]func() Log {
	t.Helper()
	return map[string]func() Log{
		"Redis":  func() Log { return newRedisLog(t) },
		"Memory": func() Log { return NewMemoryLog() },
	}
}

// mustEvent はテスト用のcase_createdイベントを生成する。
func mustEvent(t *testing.T, caseID string) *event.Event {
	t.Helper()
	e, err := event.New(event.TypeCaseCreated, event.CaseCreatedPayload{CaseID: caseID, OwnerID: "u-1"})
	if err != nil {
		t.Fatalf("event.New()でエラーが発生: %v", err)
	}
	return e
}

// TestLogDelivery はグループ内の配信・保留・ACKの意味論を検証する。
func TestLogDelivery(t *testing.T) {
	t.Parallel()

	for name, newLog := range logs(t) {
		t.Run(name+"で未配信のエントリが追記順に1度だけ配信されること", func(t *testing.T) {
			ctx := context.Background()
			l := newLog()
			if err := l.EnsureGroup(ctx, testStream, testGroup); err != nil {
				t.Fatalf("EnsureGroup()でエラーが発生: %v", err)
			}
			// 2回目の作成はエラーにならない
			if err := l.EnsureGroup(ctx, testStream, testGroup); err != nil {
				t.Fatalf("EnsureGroup()の再実行でエラーが発生: %v", err)
			}
			for _, id := range []string{"c-1", "c-2"} {
				if _, err := l.Append(ctx, testStream, mustEvent(t, id)); err != nil {
					t.Fatalf("Append()でエラーが発生: %v", err)
				}
			}

			got, err := l.Read(ctx, testStream, testGroup, "audit-service", 10, 0, false)
			if err != nil {
				t.Fatalf("Read()でエラーが発生: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len(events) = %d, want 2", len(got))
			}
			p, err := event.DecodePayload[event.CaseCreatedPayload](&got[0])
			if err != nil || p.CaseID != "c-1" {
				t.Errorf("1件目 = %+v (err=%v), want c-1", p, err)
			}
			if got[0].EventType != event.TypeCaseCreated || got[0].CreatedAt.IsZero() {
				t.Errorf("1件目のメタデータ = %+v", got[0])
			}

			again, err := l.Read(ctx, testStream, testGroup, "audit-service", 10, 0, false)
			if err != nil || len(again) != 0 {
				t.Errorf("再読み取り = %d件 (err=%v), want 0", len(again), err)
			}
		})

		t.Run(name+"でACKされるまで保留リストに残ること", func(t *testing.T) {
			ctx := context.Background()
			l := newLog()
			_ = l.EnsureGroup(ctx, testStream, testGroup)
			_, _ = l.Append(ctx, testStream, mustEvent(t, "c-1"))
			_, _ = l.Append(ctx, testStream, mustEvent(t, "c-2"))

			delivered, err := l.Read(ctx, testStream, testGroup, "audit-service", 10, 0, false)
			if err != nil || len(delivered) != 2 {
				t.Fatalf("Read() = %d件 (err=%v), want 2", len(delivered), err)
			}
			if err := l.Ack(ctx, testStream, testGroup, delivered[0].ID); err != nil {
				t.Fatalf("Ack()でエラーが発生: %v", err)
			}

			pending, err := l.Read(ctx, testStream, testGroup, "audit-service", 10, 0, true)
			if err != nil {
				t.Fatalf("保留リストの読み取りでエラーが発生: %v", err)
			}
			if len(pending) != 1 || pending[0].ID != delivered[1].ID {
				t.Errorf("保留中 = %+v, want %s のみ", pending, delivered[1].ID)
			}
		})

		t.Run(name+"でブロック中に追記されたエントリを受け取れること", func(t *testing.T) {
			ctx := context.Background()
			l := newLog()
			_ = l.EnsureGroup(ctx, testStream, testGroup)

			go func() {
				time.Sleep(50 * time.Millisecond)
				_, _ = l.Append(ctx, testStream, mustEvent(t, "c-late"))
			}()
			got, err := l.Read(ctx, testStream, testGroup, "audit-service", 10, 2*time.Second, false)
			if err != nil {
				t.Fatalf("Read()でエラーが発生: %v", err)
			}
			if len(got) != 1 {
				t.Errorf("len(events) = %d, want 1", len(got))
			}
		})
	}
}

// recorder はハンドラが受け取ったイベントを記録する。
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, id)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.seen))
	copy(out, r.seen)
	return out
}

// waitFor は条件が満たされるまで待つ。
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("条件が満たされないままタイムアウトした")
}

// TestConsumer はコンシューマの処理とACK、再配信を検証する。
func TestConsumer(t *testing.T) {
	t.Parallel()

	for name, newLog := range logs(t) {
		t.Run(name+"で追記されたイベントを処理してACKすること", func(t *testing.T) {
			ctx := context.Background()
			l := newLog()
			rec := &recorder{}
			c := &Consumer{
				Log: l, Stream: testStream, Group: testGroup, Name: "audit-service",
				Block: 50 * time.Millisecond, Interval: 10 * time.Millisecond,
				Handler: func(_ context.Context, e event.Event) error {
					rec.add(e.ID)
					return nil
				},
			}
			c.Start(ctx)
			defer c.Stop()

			waitFor(t, func() bool { return l.EnsureGroup(ctx, testStream, testGroup) == nil })
			_, _ = l.Append(ctx, testStream, mustEvent(t, "c-1"))
			_, _ = l.Append(ctx, testStream, mustEvent(t, "c-2"))

			waitFor(t, func() bool { return len(rec.list()) == 2 })
			c.Stop()

			pending, err := l.Read(ctx, testStream, testGroup, "audit-service", 10, 0, true)
			if err != nil || len(pending) != 0 {
				t.Errorf("保留中 = %d件 (err=%v), want 0", len(pending), err)
			}
		})

		t.Run(name+"でACK前に停止したエントリが再起動後に再配信されること", func(t *testing.T) {
			ctx := context.Background()
			l := newLog()
			_ = l.EnsureGroup(ctx, testStream, testGroup)
			id, _ := l.Append(ctx, testStream, mustEvent(t, "c-crash"))

			// 読み取り後ACK前にプロセスが落ちた状態を再現する
			claimed, err := l.Read(ctx, testStream, testGroup, "audit-service", 10, 0, false)
			if err != nil || len(claimed) != 1 {
				t.Fatalf("Read() = %d件 (err=%v), want 1", len(claimed), err)
			}

			rec := &recorder{}
			c := &Consumer{
				Log: l, Stream: testStream, Group: testGroup, Name: "audit-service",
				Block: 50 * time.Millisecond, Interval: 10 * time.Millisecond,
				Handler: func(_ context.Context, e event.Event) error {
					rec.add(e.ID)
					return nil
				},
			}
			c.Start(ctx)
			defer c.Stop()

			waitFor(t, func() bool { return len(rec.list()) == 1 })
			if got := rec.list()[0]; got != id {
				t.Errorf("再配信されたID = %s, want %s", got, id)
			}
		})

		t.Run(name+"でハンドラが失敗したエントリを再処理すること", func(t *testing.T) {
			ctx := context.Background()
			l := newLog()

			var (
				mu    sync.Mutex
				calls int
			)
			rec := &recorder{}
			c := &Consumer{
				Log: l, Stream: testStream, Group: testGroup, Name: "audit-service",
				Block: 50 * time.Millisecond, Interval: 10 * time.Millisecond,
				Handler: func(_ context.Context, e event.Event) error {
					mu.Lock()
					defer mu.Unlock()
					calls++
					if calls == 1 {
						return errors.New("一時的な書き込み失敗")
					}
					rec.add(e.ID)
					return nil
				},
			}
			_ = l.EnsureGroup(ctx, testStream, testGroup)
			id, _ := l.Append(ctx, testStream, mustEvent(t, "c-retry"))

			c.Start(ctx)
			defer c.Stop()

			waitFor(t, func() bool { return len(rec.list()) == 1 })
			if got := rec.list()[0]; got != id {
				t.Errorf("処理されたID = %s, want %s", got, id)
			}
		})
	}
}

// TestEmitter はEmitterがイベントを追記し、失敗を呼び出し元に返さないことを検証する。
func TestEmitter(t *testing.T) {
	t.Parallel()

	t.Run("イベントがストリームに追記されること", func(t *testing.T) {
		t.Parallel()

		l := NewMemoryLog()
		NewEmitter(l, testStream).Emit(context.Background(), event.TypeScorePending,
			event.ScorePendingPayload{CaseID: "c-1", Reason: "scoring unavailable"})

		entries := l.Entries(testStream)
		if len(entries) != 1 || entries[0].EventType != event.TypeScorePending {
			t.Fatalf("entries = %+v, want score_pending 1件", entries)
		}
	})

	t.Run("取り消されたコンテキストでも追記されること", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		l := NewMemoryLog()
		NewEmitter(l, testStream).Emit(ctx, event.TypeCaseCreated, event.CaseCreatedPayload{CaseID: "c-2"})
		if got := len(l.Entries(testStream)); got != 1 {
			t.Errorf("len(entries) = %d, want 1", got)
		}
	})

	t.Run("ログが利用できなくても呼び出し元は継続できること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		// パニックせずに戻ればよい
		NewEmitter(NewRedisLog(client), testStream).Emit(context.Background(), event.TypeCaseCreated,
			event.CaseCreatedPayload{CaseID: "c-3"})
	})
}
