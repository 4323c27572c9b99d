package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

func init() {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("mysql"); err != nil {
		panic(err)
	}
}

// Migrate runs a goose command against the embedded migrations.
// version is only read by down-to.
func Migrate(ctx context.Context, db *sql.DB, command string, version int64) error {
	switch command {
	case "up":
		return goose.UpContext(ctx, db, migrationsDir)
	case "down":
		return goose.DownContext(ctx, db, migrationsDir)
	case "down-to":
		return goose.DownToContext(ctx, db, migrationsDir, version)
	case "reset":
		return goose.ResetContext(ctx, db, migrationsDir)
	case "status":
		return goose.StatusContext(ctx, db, migrationsDir)
	case "version":
		return goose.VersionContext(ctx, db, migrationsDir)
	}
	return fmt.Errorf("unknown migrate command %q", command)
}
