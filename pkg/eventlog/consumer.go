package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
)

// Handler はコンシューマが受け取ったイベントを処理する。
// nilを返したエントリだけがACKされる。
type Handler func(ctx context.Context, e event.Event) error

// Consumer はコンシューマグループの一員としてストリームを読み続ける。
// 起動時とハンドラ失敗後は、自分に配信済みで未ACKのエントリを先に再処理する。
type Consumer struct {
	Log      Log
	Stream   string
	Group    string
	Name     string
	Handler  Handler
	// Batch は1回の読み取り件数。0の場合は10。
	Batch int
	// Block は未配信エントリを待つ時間。0の場合は2秒。
	Block time.Duration
	// Interval はエラー後の待機時間。0の場合は100ミリ秒。
	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *Consumer) batch() int {
	if c.Batch <= 0 {
		return 10
	}
	return c.Batch
}

func (c *Consumer) block() time.Duration {
	if c.Block <= 0 {
		return 2 * time.Second
	}
	return c.Block
}

func (c *Consumer) interval() time.Duration {
	if c.Interval <= 0 {
		return 100 * time.Millisecond
	}
	return c.Interval
}

// Start はバックグラウンドでの読み取りを開始する。
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.Run(ctx)
	}()
}

// Stop はバックグラウンドでの読み取りを停止し、処理中のバッチが終わるまで待つ。
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run はctxが取り消されるまでストリームを読み続ける。
// 読み取りエラーは記録して待機後に再試行する。
func (c *Consumer) Run(ctx context.Context) {
	grouped := false
	pending := true

	for ctx.Err() == nil {
		if !grouped {
			if err := c.Log.EnsureGroup(ctx, c.Stream, c.Group); err != nil {
				slog.ErrorContext(ctx, "consumer_group_failed",
					slog.String("stream", c.Stream),
					slog.String("group", c.Group),
					slog.String("error", err.Error()),
				)
				c.wait(ctx)
				continue
			}
			grouped = true
		}

		events, err := c.Log.Read(ctx, c.Stream, c.Group, c.Name, c.batch(), c.block(), pending)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "consumer_read_failed",
				slog.String("stream", c.Stream),
				slog.String("error", err.Error()),
			)
			// ストリームやグループが消えた場合に備えて作り直す
			grouped = false
			c.wait(ctx)
			continue
		}

		if pending && len(events) == 0 {
			pending = false
			continue
		}

		failed := c.handle(ctx, events)
		switch {
		case failed:
			pending = true
			c.wait(ctx)
		case pending && len(events) < c.batch():
			pending = false
		}
	}
}

// handle はイベントを順に処理してACKする。失敗したエントリがあればtrueを返す。
func (c *Consumer) handle(ctx context.Context, events []event.Event) bool {
	failed := false
	for _, e := range events {
		if err := c.Handler(ctx, e); err != nil {
			slog.ErrorContext(ctx, "consumer_handle_failed",
				slog.String("entry_id", e.ID),
				slog.String("event_type", string(e.EventType)),
				slog.String("error", err.Error()),
			)
			failed = true
			continue
		}
		if err := c.Log.Ack(ctx, c.Stream, c.Group, e.ID); err != nil {
			slog.ErrorContext(ctx, "consumer_ack_failed",
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
			failed = true
		}
	}
	return failed
}

func (c *Consumer) wait(ctx context.Context) {
	t := time.NewTimer(c.interval())
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
