package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns the lifecycle of the test database and pgx pool.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness resolves a database (dsn, TEST_DATABASE_URL, a Postgres 16
// container, or a local server, in that order) and applies migrations.
func NewHarness(ctx context.Context, dsn string) (*Harness, error) {
	var (
		pgC *PGContainer
		err error
	)
	switch {
	case dsn != "":
		pgC = &PGContainer{}
	case os.Getenv("TEST_DATABASE_URL") != "":
		pgC, dsn = &PGContainer{}, os.Getenv("TEST_DATABASE_URL")
	case dockerAvailable(ctx):
		pgC, dsn, err = StartPostgres16(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
	default:
		dsn, err = InitLocalDatabase(ctx)
		if err != nil {
			return nil, fmt.Errorf("init local database: %w", err)
		}
		pgC = &PGContainer{}
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, pgC.Shared())
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, err
	}

	return &Harness{container: pgC, pool: pool, dsn: dsn, teardown: teardown}, nil
}

// Open returns a migrated harness for t, or skips t unless integration tests
// are enabled with DREAMKEYS_IT=1 or TEST_DATABASE_URL.
func Open(t *testing.T) *Harness {
	t.Helper()
	if os.Getenv("DREAMKEYS_IT") == "" && os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("integration tests disabled; set DREAMKEYS_IT=1 or TEST_DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h, err := NewHarness(ctx, "")
	if err != nil {
		t.Fatalf("harness: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections (e.g., chaos).
func (h *Harness) DSN() string {
	return h.dsn
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	if h.container != nil {
		_ = h.container.Terminate(ctx)
	}
}

// Reset truncates mutable tables to provide a clean slate.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"outbox",
		"wishlist",
		"bids",
		"property_reports",
		"properties",
		"users",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}
