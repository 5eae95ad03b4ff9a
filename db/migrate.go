package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	zlog "github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies pending schema migrations against dsn.
func Migrate(ctx context.Context, dsn string) error {
	return withDB(dsn, func(db *sql.DB) error {
		goose.SetBaseFS(migrations)
		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("db: configure goose: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		zlog.Info().Msg("applying migrations")
		if err := goose.UpContext(runCtx, db, "migrations"); err != nil {
			return fmt.Errorf("db: apply migrations: %w", err)
		}
		zlog.Info().Msg("migrations applied")
		return nil
	})
}

func withDB(dsn string, fn func(*sql.DB) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("db: open sql connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("db: ping sql connection: %w", err)
	}
	return fn(db)
}
