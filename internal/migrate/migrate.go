// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/songbook/migrations"
)

// Up runs all pending migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string) error {
	return run(ctx, dsn, func(db *sql.DB) error { return goose.UpContext(ctx, db, ".") })
}

// Status logs the applied state of every migration.
func Status(ctx context.Context, dsn string) error {
	return run(ctx, dsn, func(db *sql.DB) error { return goose.StatusContext(ctx, db, ".") })
}

func run(ctx context.Context, dsn string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn(db)
}
