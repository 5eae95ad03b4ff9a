package infra

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dreamkeys/db"
)

// ApplyMigrations runs the embedded goose migrations against dsn and returns
// a pool on the migrated schema. When isolate is true, a per-run schema is
// created and dropped via the returned teardown func so shared databases stay
// clean.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	cleanup := func(context.Context) error { return nil }

	if isolate {
		schema := fmt.Sprintf("it_run_%d", time.Now().UnixNano())
		ident := pgx.Identifier{schema}.Sanitize()

		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect for schema: %w", err)
		}
		if _, err := conn.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
			conn.Close(ctx)
			return nil, nil, fmt.Errorf("create schema %s: %w", schema, err)
		}
		conn.Close(ctx)

		scoped, err := withSearchPath(dsn, schema)
		if err != nil {
			return nil, nil, err
		}
		baseDSN := dsn
		dsn = scoped

		cleanup = func(ctx context.Context) error {
			dropConn, err := pgx.Connect(ctx, baseDSN)
			if err != nil {
				return err
			}
			defer dropConn.Close(ctx)
			_, err = dropConn.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
			return err
		}
	}

	if err := db.Migrate(ctx, dsn); err != nil {
		_ = cleanup(ctx)
		return nil, nil, err
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		_ = cleanup(ctx)
		return nil, nil, fmt.Errorf("connect pool: %w", err)
	}

	return pool, cleanup, nil
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
