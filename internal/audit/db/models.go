package db

import "time"

// AuditEvent はaudit_eventsテーブルの行。
// 同じイベントが再配信された場合は別の行として記録される。
type AuditEvent struct {
	ID string
	// EntryID はイベントログ上のエントリID。
	EntryID   string
	EventType string
	Payload   string
	CreatedAt time.Time
}
