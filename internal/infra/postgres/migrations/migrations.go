package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations must be registered from files named <version>_<name>.go;
// bun derives the migration name from the registering file.
var Migrations = migrate.NewMigrations()

func exec(query string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, query)
		return err
	}
}
