package cases

import (
	"context"
	"embed"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// idempotencyTable は冪等性キーを記録するテーブル。
const idempotencyTable = "idempotency_keys"

// initSchema はマイグレーションを適用する。
func initSchema(ctx context.Context, db *database.DB) error {
	return migration.Run(ctx, db, migrations, "migrations")
}
