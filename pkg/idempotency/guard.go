// Package idempotency はクライアントが指定した冪等性キーによる重複リクエストの排除を提供する。
//
// キーの登録は呼び出し側のトランザクション内で行い、同じトランザクションで本来の更新を行う。
// 一意制約への INSERT ... ON CONFLICT DO NOTHING により、同じキーを持つ並行リクエストのうち
// 1つだけが登録に成功する。キーに有効期限は設けない。
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

// ErrDuplicateRequest は同じ冪等性キーが既に使用されていることを示す。
var ErrDuplicateRequest = errors.New("duplicate request")

// Execer はトランザクションまたは接続。
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Guard は冪等性キーを登録するテーブルを扱う。
type Guard struct {
	dialect database.Dialect
	table   string
	now     func() time.Time
}

// NewGuard はGuardを生成する。tableは idempotency_key（一意）と created_at を持つテーブル名。
func NewGuard(dialect database.Dialect, table string) *Guard {
	return &Guard{
		dialect: dialect,
		table:   table,
		now:     time.Now,
	}
}

// Claim はキーを登録する。既に登録済みの場合はErrDuplicateRequestを返す。
// 空のキーは何もしない。
func (g *Guard) Claim(ctx context.Context, tx Execer, key string) error {
	if key == "" {
		return nil
	}
	query := database.Rebind(g.dialect, fmt.Sprintf(
		"INSERT INTO %s (idempotency_key, created_at) VALUES (?, ?) ON CONFLICT (idempotency_key) DO NOTHING",
		g.table,
	))
	res, err := tx.ExecContext(ctx, query, key, g.now().UTC())
	if err != nil {
		return fmt.Errorf("冪等性キーの登録に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("冪等性キーの登録結果の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrDuplicateRequest
	}
	return nil
}
