package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend kills a random backend of the test database now and
// then. When appName is set only backends with that application_name are
// candidates.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, appName string, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) != 0 {
				continue
			}
			_, _ = pool.Exec(ctx, `
				SELECT pg_terminate_backend(pid) FROM pg_stat_activity
				WHERE datname = current_database()
				  AND pid <> pg_backend_pid()
				  AND ($1 = '' OR application_name = $1)
				ORDER BY random() LIMIT 1`, appName)
		}
	}
}

// HoldListingLock takes a row lock on a random listing and keeps it for a
// while, so verification and advertising calls queue behind it.
func HoldListingLock(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			tx, err := pool.Begin(ctx)
			if err != nil {
				continue
			}
			var id string
			err = tx.QueryRow(ctx, `SELECT id::text FROM properties ORDER BY random() LIMIT 1 FOR UPDATE`).Scan(&id)
			if err == nil {
				time.Sleep(time.Duration(100+rand.Intn(400)) * time.Millisecond)
			}
			_ = tx.Rollback(ctx)
		}
	}
}
