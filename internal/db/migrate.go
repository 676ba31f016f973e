package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	gooseOnce     sync.Once
	gooseSetupErr error
)

// Migrate brings the schema up to date. Every migration is written with
// IF NOT EXISTS so it can be re-run against a restored snapshot that carries
// no goose version table.
func Migrate(ctx context.Context, sqdb *sql.DB) error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations)
		goose.SetLogger(goose.NopLogger())
		gooseSetupErr = goose.SetDialect("sqlite3")
	})
	if gooseSetupErr != nil {
		return fmt.Errorf("goose dialect: %w", gooseSetupErr)
	}
	if err := goose.UpContext(ctx, sqdb, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
