// Package db は監査サービスのクエリを提供する。
package db

import (
	"context"
	"database/sql"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// New はQueriesを生成する。
func New(db DBTX, dialect database.Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

// Queries は監査イベントテーブルへのクエリを実行する。
type Queries struct {
	db      DBTX
	dialect database.Dialect
}
