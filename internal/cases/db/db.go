// Package db はケースサービスのクエリを提供する。
package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

var (
	// ErrNotFound は指定したケースが存在しないことを示す。
	ErrNotFound = errors.New("case not found")
	// ErrNotNew はケースが既にNEW以外の状態に遷移していることを示す。
	ErrNotNew = errors.New("case is not in NEW status")
)

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

// Queries はケーステーブルへのクエリを実行する。
type Queries struct {
	db      DBTX
	dialect database.Dialect
}

// WithTx はトランザクション内でクエリを実行するQueriesを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}
