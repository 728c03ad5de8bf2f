// Package storage opens the local sqlite database, applies migrations, and
// wires up the repositories.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"bookfeed/internal/migrations"
	"bookfeed/internal/repositories/records"
	"bookfeed/internal/repositories/settings"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Records  records.Repository
	Settings settings.Repository

	db *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and serializes
	// writers, which sqlite wants anyway.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Records:  records.NewSQLiteRepository(db),
		Settings: settings.NewSQLiteRepository(db),
		db:       db,
	}, nil
}

func (r *Repositories) Close() error {
	return r.db.Close()
}
