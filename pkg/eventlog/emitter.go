package eventlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
)

// emitTimeout は1回の追記に許す時間。
const emitTimeout = 2 * time.Second

// Emitter はドメインイベントを書き込むだけのパブリッシャ。
// 追記の失敗はログに記録するだけで呼び出し元には返さない。
type Emitter struct {
	log    Log
	stream string
}

// NewEmitter はEmitterを生成する。
func NewEmitter(log Log, stream string) *Emitter {
	return &Emitter{log: log, stream: stream}
}

// Emit はイベントを組み立ててストリームに追記する。
func (e *Emitter) Emit(ctx context.Context, eventType event.Type, payload any) {
	ev, err := event.New(eventType, payload)
	if err != nil {
		slog.ErrorContext(ctx, "event_encode_failed",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
		return
	}

	// リクエストの取り消しに巻き込まれないようにする
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()

	id, err := e.log.Append(appendCtx, e.stream, ev)
	if err != nil {
		slog.ErrorContext(ctx, "event_emit_failed",
			slog.String("event_type", string(eventType)),
			slog.String("stream", e.stream),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.DebugContext(ctx, "event_emitted",
		slog.String("event_type", string(eventType)),
		slog.String("entry_id", id),
	)
}
