package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditdb "github.com/narendersurabhi/microservices-ml-platform/internal/audit/db"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
)

// Recorder はイベントを監査ログとして記録する。
type Recorder struct {
	queries *auditdb.Queries
	now     func() time.Time
}

// NewRecorder は新しいRecorderを生成する。
func NewRecorder(queries *auditdb.Queries) *Recorder {
	return &Recorder{queries: queries, now: time.Now}
}

// Handle はイベントを1行として記録する。eventlog.Handlerとして使用する。
func (r *Recorder) Handle(ctx context.Context, e event.Event) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}

	if err := r.queries.CreateAuditEvent(ctx, auditdb.AuditEvent{
		ID:        uuid.NewString(),
		EntryID:   e.ID,
		EventType: string(e.EventType),
		Payload:   payload,
		CreatedAt: createdAt,
	}); err != nil {
		return err
	}
	slog.DebugContext(ctx, "audit_event_recorded",
		slog.String("entry_id", e.ID),
		slog.String("event_type", string(e.EventType)),
	)
	return nil
}
