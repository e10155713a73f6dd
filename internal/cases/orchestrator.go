package cases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	casedb "github.com/narendersurabhi/microservices-ml-platform/internal/cases/db"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/eventlog"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpclient"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/idempotency"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/resilience"
)

// スコア待ちになった理由。
const (
	reasonCircuitOpen       = "circuit_open"
	reasonRemoteUnavailable = "remote_unavailable"
	reasonRemoteRejected    = "remote_rejected"
)

// Orchestrator はケース作成からスコア確定までの流れを管理する。
//
// ケースの登録と冪等性キーの登録を1つのトランザクションで行い、コミット後に
// scoringサービスを呼び出す。呼び出しの結果に応じてケースをSCOREDまたは
// PENDING_SCOREに遷移させ、対応するイベントを記録する。
type Orchestrator struct {
	// db はトランザクションの開始に使う接続。
	db *database.DB
	// queries はケーステーブルへのクエリ。
	queries *casedb.Queries
	// guard は冪等性キーを登録する。
	guard *idempotency.Guard
	// emitter はドメインイベントを記録する。
	emitter *eventlog.Emitter
	// caller はscoring呼び出しをブレーカー・バルクヘッド・リトライで保護する。
	caller *resilience.Caller
	// scoring はscoringサービスへのHTTPクライアント。
	scoring *httpclient.Client
	// now は現在時刻を返す。
	now func() time.Time
}

// NewOrchestrator は新しいオーケストレータを生成する。
func NewOrchestrator(
	db *database.DB,
	emitter *eventlog.Emitter,
	caller *resilience.Caller,
	scoring *httpclient.Client,
) *Orchestrator {
	return &Orchestrator{
		db:      db,
		queries: casedb.New(db, db.Dialect),
		guard:   idempotency.NewGuard(db.Dialect, idempotencyTable),
		emitter: emitter,
		caller:  caller,
		scoring: scoring,
		now:     time.Now,
	}
}

// CreateInput はケース作成の入力。
type CreateInput struct {
	Title          string
	OwnerID        string
	Priority       string
	IdempotencyKey string
	RequestID      string
}

// scoreResult はscoringサービスのレスポンス。
type scoreResult struct {
	CaseID string  `json:"case_id"`
	Score  float64 `json:"score"`
}

// Create はケースを登録し、スコアリングまで進めた結果のケースを返す。
//
// 同じ冪等性キーが既に使用されている場合はidempotency.ErrDuplicateRequestを返し、
// ケースの登録もイベントの記録も行わない。スコアリングの失敗はエラーにせず、
// PENDING_SCOREのケースとして返す。登録後の状態更新の失敗もログに残すだけでエラーにしない。
func (o *Orchestrator) Create(ctx context.Context, in CreateInput) (casedb.Case, error) {
	c := casedb.Case{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Status:    casedb.StatusNew,
		OwnerID:   in.OwnerID,
		Priority:  in.Priority,
		CreatedAt: o.now().UTC(),
	}
	if err := o.insert(ctx, in.IdempotencyKey, c); err != nil {
		return casedb.Case{}, err
	}

	slog.Info("case_created",
		slog.String("request_id", in.RequestID),
		slog.String("case_id", c.ID),
	)
	o.emitter.Emit(ctx, event.TypeCaseCreated, event.CaseCreatedPayload{CaseID: c.ID, OwnerID: c.OwnerID})

	// コミット済みのケースはクライアントの切断に関わらず最後まで進める
	ctx = context.WithoutCancel(ctx)
	ctx = httpclient.WithRequestID(ctx, in.RequestID)
	ctx = httpclient.WithIdempotencyKey(ctx, in.IdempotencyKey)

	score, err := o.score(ctx, c.ID)
	if err != nil {
		reason := pendingReason(err)
		slog.Warn("case_scoring_failed",
			slog.String("request_id", in.RequestID),
			slog.String("case_id", c.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		// ケースは登録済みなので、状態の更新に失敗しても201とscore_pendingは返す
		if err := o.queries.MarkPending(ctx, c.ID); err != nil {
			slog.Error("case_mark_pending_failed",
				slog.String("request_id", in.RequestID),
				slog.String("case_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
		c.Status = casedb.StatusPendingScore
		o.emitter.Emit(ctx, event.TypeScorePending, event.ScorePendingPayload{CaseID: c.ID, Reason: reason})
		return c, nil
	}

	if err := o.queries.MarkScored(ctx, c.ID, score); err != nil {
		slog.Error("case_mark_scored_failed",
			slog.String("request_id", in.RequestID),
			slog.String("case_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	c.Status = casedb.StatusScored
	c.Score.Float64, c.Score.Valid = score, true
	slog.Info("case_scored",
		slog.String("request_id", in.RequestID),
		slog.String("case_id", c.ID),
		slog.Float64("score", score),
	)
	o.emitter.Emit(ctx, event.TypeScoreUpdated, event.ScoreUpdatedPayload{CaseID: c.ID, Score: score})
	return c, nil
}

// insert は冪等性キーとケースを1つのトランザクションで登録する。
func (o *Orchestrator) insert(ctx context.Context, key string, c casedb.Case) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := o.guard.Claim(ctx, tx, key); err != nil {
		return err
	}
	if err := o.queries.WithTx(tx).CreateCase(ctx, casedb.CreateCaseParams{
		ID:        c.ID,
		Title:     c.Title,
		OwnerID:   c.OwnerID,
		Priority:  c.Priority,
		CreatedAt: c.CreatedAt,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}

// score はscoringサービスを保護下で呼び出す。
func (o *Orchestrator) score(ctx context.Context, caseID string) (float64, error) {
	var res scoreResult
	err := o.caller.Do(ctx, func(ctx context.Context) error {
		return o.scoring.PostJSON(ctx, "/v1/scoring/"+caseID, nil, &res)
	})
	if err != nil {
		return 0, err
	}
	return res.Score, nil
}

// pendingReason はスコアリング失敗の理由を分類する。
func pendingReason(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return reasonCircuitOpen
	case errors.Is(err, resilience.ErrRemoteRejected):
		return reasonRemoteRejected
	default:
		return reasonRemoteUnavailable
	}
}

// newScoringCaller はscoring呼び出し用のCallerを生成する。
// ブレーカーとバルクヘッドはプロセス内の全リクエストで共有する。
func newScoringCaller(cfg config.ScoringCallConfig) *resilience.Caller {
	breaker := resilience.NewBreaker(cfg.FailureThreshold, cfg.Cooldown)
	breaker.OnStateChange = func(from, to resilience.State) {
		slog.Warn("circuit_state_changed",
			slog.String("dependency", "scoring"),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}
	return resilience.NewCaller(breaker, resilience.NewBulkhead(cfg.Bulkhead), resilience.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     resilience.ExponentialJitter(time.Second, 5*time.Second, 0.5),
		Retryable:   httpclient.IsTransient,
	}, cfg.Timeout)
}
