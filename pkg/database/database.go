// Package database はDATABASE_URLからdatabase/sqlの接続を開く。
//
// postgres:// 系のURLはpgxのstdlibドライバ、sqlite:// はmodernc.org/sqliteを使用する。
// SQLは ? プレースホルダで記述し、Rebindで方言ごとの形式に変換する。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgresドライバ
	_ "modernc.org/sqlite"             // sqliteドライバ
)

// Dialect はSQL方言。
type Dialect string

const (
	// Postgres はPostgreSQL。
	Postgres Dialect = "postgres"
	// SQLite はSQLite。
	SQLite Dialect = "sqlite"
)

// DB は方言情報付きの接続。
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open はURLの形式に応じたドライバで接続を開き、疎通を確認する。
//
//	postgres://... / postgresql://... / postgresql+psycopg2://...
//	sqlite:///path/to/file.db / sqlite://:memory:
func Open(ctx context.Context, url string) (*DB, error) {
	dialect, dsn, err := parseURL(url)
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	switch dialect {
	case Postgres:
		sqlDB, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("PostgreSQL接続のオープンに失敗: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	case SQLite:
		sqlDB, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("SQLite接続のオープンに失敗: %w", err)
		}
		// 書き込みを直列化し、:memory: のデータベースを全クエリで共有する
		sqlDB.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースへの接続確認に失敗: %w", err)
	}

	if dialect == SQLite {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		} {
			if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
				_ = sqlDB.Close()
				return nil, fmt.Errorf("%s の実行に失敗: %w", pragma, err)
			}
		}
	}

	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// parseURL はURLから方言とドライバ用DSNを取り出す。
func parseURL(url string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(url, "postgresql+psycopg2://"):
		return Postgres, "postgres://" + strings.TrimPrefix(url, "postgresql+psycopg2://"), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Postgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" || path == ":memory:" || path == "/:memory:" {
			return SQLite, ":memory:", nil
		}
		// sqlite:///data/app.db は絶対パス、sqlite://./app.db は相対パス
		return SQLite, path, nil
	case url == ":memory:":
		return SQLite, ":memory:", nil
	default:
		return "", "", fmt.Errorf("サポートされていないDATABASE_URLです: %q", url)
	}
}

// Rebind は ? プレースホルダを方言の形式に変換する。
// PostgreSQLでは $1, $2, ... に置き換え、SQLiteではそのまま返す。
func Rebind(dialect Dialect, query string) string {
	if dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Rebind はこの接続の方言でクエリを変換する。
func (db *DB) Rebind(query string) string {
	return Rebind(db.Dialect, query)
}
