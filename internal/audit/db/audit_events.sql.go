package db

import (
	"context"
	"fmt"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

const createAuditEvent = `INSERT INTO audit_events (id, entry_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`

// CreateAuditEvent は監査イベントを記録する。
func (q *Queries) CreateAuditEvent(ctx context.Context, arg AuditEvent) error {
	_, err := q.db.ExecContext(ctx, database.Rebind(q.dialect, createAuditEvent),
		arg.ID, arg.EntryID, arg.EventType, arg.Payload, arg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("監査イベントの記録に失敗: %w", err)
	}
	return nil
}

const listAuditEvents = `SELECT id, entry_id, event_type, payload, created_at FROM audit_events`

// ListAuditEvents は監査イベントを記録順に取得する。eventTypeが空でなければその種類に絞り込む。
func (q *Queries) ListAuditEvents(ctx context.Context, eventType string) ([]AuditEvent, error) {
	query, args := listAuditEvents, []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.db.QueryContext(ctx, database.Rebind(q.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("監査イベント一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.EntryID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("監査イベント行の読み取りに失敗: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
