package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type unsentErr struct{}

func (unsentErr) Error() string { return "dial tcp: connection refused" }

func (unsentErr) SafeToRetry() bool { return true }

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("bid: accept: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"unsent", fmt.Errorf("property: create: begin tx: %w", unsentErr{}), true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := Transient(tc.err); got != tc.want {
			t.Fatalf("%s: Transient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryOnce(t *testing.T) {
	prev := RetryBackoff
	RetryBackoff = time.Millisecond
	defer func() { RetryBackoff = prev }()

	calls := 0
	err := RetryOnce(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("transient then ok: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = RetryOnce(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	if err == nil || calls != 2 {
		t.Fatalf("retries once only: err=%v calls=%d", err, calls)
	}

	calls = 0
	boom := errors.New("boom")
	if err := RetryOnce(context.Background(), func() error { calls++; return boom }); !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("permanent error: err=%v calls=%d", err, calls)
	}
}

func TestRetryOnce_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryOnce(ctx, func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	if err == nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
