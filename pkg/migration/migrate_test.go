package migration

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), "sqlite://:memory:")
	if err != nil {
		t.Fatalf("DB接続に失敗: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestRun はマイグレーションが順序通りに一度だけ適用されることを検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_index.up.sql": {Data: []byte(
			"-- インデックス追加\nCREATE INDEX IF NOT EXISTS idx_items_name ON items(name);\n",
		)},
		"migrations/000001_create_items.up.sql": {Data: []byte(
			"CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL);\nCREATE TABLE tags (id TEXT PRIMARY KEY);\n",
		)},
		"migrations/000001_create_items.down.sql": {Data: []byte("DROP TABLE items;")},
		"migrations/README.md":                    {Data: []byte("無視される")},
	}

	t.Run("全マイグレーションが適用されること", func(t *testing.T) {
		t.Parallel()
		db := setupDB(t)
		ctx := context.Background()

		if err := Run(ctx, db, fsys, "migrations"); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの参照に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用済み件数 = %d, want 2", count)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO tags (id) VALUES ('t1')"); err != nil {
			t.Errorf("複数文のマイグレーションが適用されていない: %v", err)
		}
	})

	t.Run("2回目の実行では何も適用されないこと", func(t *testing.T) {
		t.Parallel()
		db := setupDB(t)
		ctx := context.Background()

		if err := Run(ctx, db, fsys, "migrations"); err != nil {
			t.Fatalf("1回目のRun()でエラーが発生: %v", err)
		}
		if err := Run(ctx, db, fsys, "migrations"); err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
	})
}

// TestSplitStatements はSQLの分割を検証する。
func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := splitStatements("-- コメント\nCREATE TABLE a (id TEXT);\n\nCREATE TABLE b (id TEXT);\n")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (%q)", len(got), got)
	}
	if got[0] != "CREATE TABLE a (id TEXT)" {
		t.Errorf("got[0] = %q", got[0])
	}
}
