package database

import (
	"context"
	"testing"
)

// TestParseURL はURLから方言とDSNを判定できることを検証する。
func TestParseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{name: "postgres://はPostgresになること", url: "postgres://u:p@db:5432/app", dialect: Postgres, dsn: "postgres://u:p@db:5432/app"},
		{name: "postgresql://はPostgresになること", url: "postgresql://u:p@db/app", dialect: Postgres, dsn: "postgresql://u:p@db/app"},
		{name: "psycopg2形式はpostgres://に変換されること", url: "postgresql+psycopg2://u:p@db/app", dialect: Postgres, dsn: "postgres://u:p@db/app"},
		{name: "sqliteの絶対パスを解釈できること", url: "sqlite:///data/case.db", dialect: SQLite, dsn: "/data/case.db"},
		{name: "sqliteのメモリDBを解釈できること", url: "sqlite://:memory:", dialect: SQLite, dsn: ":memory:"},
		{name: "未対応のスキームはエラーになること", url: "mysql://db/app", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dialect, dsn, err := parseURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("エラーが返されるべきだが、nilが返った")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseURL()でエラーが発生: %v", err)
			}
			if dialect != tt.dialect || dsn != tt.dsn {
				t.Errorf("parseURL(%q) = (%q, %q), want (%q, %q)", tt.url, dialect, dsn, tt.dialect, tt.dsn)
			}
		})
	}
}

// TestRebind はプレースホルダの変換を検証する。
func TestRebind(t *testing.T) {
	t.Parallel()

	t.Run("Postgresでは連番に変換されること", func(t *testing.T) {
		t.Parallel()
		got := Rebind(Postgres, "SELECT * FROM cases WHERE id = ? AND status = ?")
		want := "SELECT * FROM cases WHERE id = $1 AND status = $2"
		if got != want {
			t.Errorf("Rebind() = %q, want %q", got, want)
		}
	})

	t.Run("文字列リテラル内の?は変換しないこと", func(t *testing.T) {
		t.Parallel()
		got := Rebind(Postgres, "SELECT '?' FROM t WHERE a = ?")
		want := "SELECT '?' FROM t WHERE a = $1"
		if got != want {
			t.Errorf("Rebind() = %q, want %q", got, want)
		}
	})

	t.Run("SQLiteでは変換しないこと", func(t *testing.T) {
		t.Parallel()
		q := "SELECT * FROM t WHERE a = ?"
		if got := Rebind(SQLite, q); got != q {
			t.Errorf("Rebind() = %q, want %q", got, q)
		}
	})
}

// TestOpen はインメモリSQLiteに接続できることを検証する。
func TestOpen(t *testing.T) {
	t.Parallel()

	db, err := Open(context.Background(), "sqlite://:memory:")
	if err != nil {
		t.Fatalf("Open()でエラーが発生: %v", err)
	}
	defer func() { _ = db.Close() }()

	if db.Dialect != SQLite {
		t.Errorf("Dialect = %q, want %q", db.Dialect, SQLite)
	}
	var one int
	if err := db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one); err != nil {
		t.Fatalf("クエリ実行に失敗: %v", err)
	}
	if one != 1 {
		t.Errorf("SELECT 1 = %d, want 1", one)
	}
}
