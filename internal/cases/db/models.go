package db

import (
	"database/sql"
	"time"
)

// ケースの状態。NEWからSCOREDまたはPENDING_SCOREへの一方向にのみ遷移する。
const (
	StatusNew          = "NEW"
	StatusScored       = "SCORED"
	StatusPendingScore = "PENDING_SCORE"
)

// Case はcasesテーブルの行。
type Case struct {
	ID        string
	Title     string
	Status    string
	OwnerID   string
	Score     sql.NullFloat64
	Priority  string
	CreatedAt time.Time
}
