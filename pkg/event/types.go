package event

import (
	"encoding/json"
	"time"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeCaseCreated はケースが作成されたことを表す。
	TypeCaseCreated Type = "case_created"
	// TypeScoreUpdated はケースのスコアが確定したことを表す。
	TypeScoreUpdated Type = "score_updated"
	// TypeScorePending はスコアリングに失敗し、ケースがスコア待ちになったことを表す。
	TypeScorePending Type = "score_pending"
)

// Event はイベントログに追記される不変のドメインイベント。
type Event struct {
	// ID はイベントログ上のエントリID。追記前は空。
	ID string `json:"id,omitempty"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Payload はイベント固有のデータ（JSON形式）。
	Payload json.RawMessage `json:"payload"`
	// CreatedAt はイベントが作成された日時（UTC）。
	CreatedAt time.Time `json:"created_at"`
}

// CaseCreatedPayload はcase_createdイベントのデータ。
type CaseCreatedPayload struct {
	CaseID  string `json:"case_id"`
	OwnerID string `json:"owner_id"`
}

// ScoreUpdatedPayload はscore_updatedイベントのデータ。
// scoringサービスが発行する場合は所有者情報と冪等性キーを含む。
type ScoreUpdatedPayload struct {
	CaseID         string          `json:"case_id"`
	Score          float64         `json:"score"`
	Owner          json.RawMessage `json:"owner,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// ScorePendingPayload はscore_pendingイベントのデータ。
type ScorePendingPayload struct {
	CaseID string `json:"case_id"`
	// Reason はスコアリングに失敗した理由。
	Reason string `json:"reason,omitempty"`
}
