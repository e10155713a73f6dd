// Package db はユーザーサービスのクエリを提供する。
package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

// ErrNotFound は指定したユーザーが存在しないことを示す。
var ErrNotFound = errors.New("user not found")

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// New はQueriesを生成する。
func New(db DBTX, dialect database.Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

// Queries はユーザーテーブルへのクエリを実行する。
type Queries struct {
	db      DBTX
	dialect database.Dialect
}

// WithTx はトランザクション内でクエリを実行するQueriesを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}
