package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// RetryBackoff is the pause before the second attempt of a transient failure.
var RetryBackoff = 50 * time.Millisecond

// Transient reports whether err is a storage failure worth one more attempt:
// a serialization failure, a deadlock, or a connection error raised before
// anything reached the server.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return pgconn.SafeToRetry(err)
}

// RetryOnce runs fn, and runs it once more after RetryBackoff when the first
// attempt fails with a transient error. fn must be safe to repeat.
func RetryOnce(ctx context.Context, fn func() error) error {
	err := fn()
	if !Transient(err) {
		return err
	}
	t := time.NewTimer(RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-t.C:
	}
	return fn()
}
