package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

func prepare(db *sql.DB) error {
	if db == nil {
		return errors.New("nil database provided")
	}
	goose.SetBaseFS(migrationsFS)
	return goose.SetDialect("postgres")
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := prepare(db); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, migrationsDir)
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, db *sql.DB) error {
	if err := prepare(db); err != nil {
		return err
	}
	return goose.DownContext(ctx, db, migrationsDir)
}

// Status prints the applied state of every migration through goose's logger.
func Status(ctx context.Context, db *sql.DB) error {
	if err := prepare(db); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, migrationsDir)
}
