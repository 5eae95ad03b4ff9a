package outbox

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"dreamkeys/db"
	"dreamkeys/metrics"
)

const (
	defaultBatch       = 20
	defaultInterval    = 500 * time.Millisecond
	defaultMaxAttempts = 12
)

// computeNextRetry is 2^attempt seconds clamped to [5s, 30m] with +/-10% jitter.
func computeNextRetry(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	sec := math.Pow(2, float64(attempt))
	if sec < 5 {
		sec = 5
	}
	if sec > 1800 {
		sec = 1800
	}
	d := time.Duration(sec) * time.Second
	j := time.Duration(rand.Int63n(int64(d/5))) - d/10
	return d + j
}

// Relay moves pending outbox rows to a Publisher. Several relays may run
// against the same table; rows are claimed with SKIP LOCKED.
type Relay struct {
	pool        db.TxBeginner
	pub         Publisher
	batch       int
	interval    time.Duration
	maxAttempts int
	log         zerolog.Logger
}

type RelayOption func(*Relay)

func WithBatch(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithMaxAttempts(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func NewRelay(pool db.TxBeginner, pub Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		pool:        pool,
		pub:         pub,
		batch:       defaultBatch,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		log:         zlog.Logger.With().Str("component", "outbox_relay").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Repeated identical failures are logged
// at most every 10s.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var lastErr string
	var lastAt time.Time

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if err.Error() != lastErr || time.Since(lastAt) > 10*time.Second {
					r.log.Warn().Err(err).Msg("outbox batch failed")
					lastErr = err.Error()
					lastAt = time.Now()
				}
			} else {
				lastErr = ""
			}
		}
	}
}

// ProcessBatch claims up to batch due rows, publishes each, and records the
// outcome in the same transaction. It returns the number published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id::text, topic, payload, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		  AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC, created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batch)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim: %w", err)
	}

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox: scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox: claim rows: %w", err)
	}

	if len(msgs) == 0 {
		return 0, tx.Commit(ctx)
	}

	published := 0
	for _, m := range msgs {
		if err := r.pub.Publish(ctx, m.Topic, m.Payload); err != nil {
			if err := r.fail(ctx, tx, m, err); err != nil {
				return 0, err
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox
			SET status = 'processed', last_attempt = NOW(), last_error = NULL
			WHERE id = $1
		`, m.ID); err != nil {
			return 0, fmt.Errorf("outbox: mark processed: %w", err)
		}
		metrics.OutboxPublished.WithLabelValues("ok").Inc()
		r.log.Debug().Str("outbox_id", m.ID).Str("topic", m.Topic).Msg("published")
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox: commit: %w", err)
	}
	return published, nil
}

func (r *Relay) fail(ctx context.Context, tx pgx.Tx, m Message, cause error) error {
	next := m.Attempts + 1
	if next >= r.maxAttempts {
		if _, err := tx.Exec(ctx, `
			UPDATE outbox
			SET status = 'dead', attempts = $2, last_error = $3, last_attempt = NOW()
			WHERE id = $1
		`, m.ID, next, cause.Error()); err != nil {
			return fmt.Errorf("outbox: mark dead: %w", err)
		}
		metrics.OutboxPublished.WithLabelValues("dead").Inc()
		r.log.Error().Str("outbox_id", m.ID).Str("topic", m.Topic).Int("attempt", next).Err(cause).Msg("outbox moved to dead")
		return nil
	}

	delay := computeNextRetry(next)
	if _, err := tx.Exec(ctx, `
		UPDATE outbox
		SET attempts = $2,
		    next_retry_at = NOW() + $3::interval,
		    last_error = $4,
		    last_attempt = NOW()
		WHERE id = $1
	`, m.ID, next, fmt.Sprintf("%f seconds", delay.Seconds()), cause.Error()); err != nil {
		return fmt.Errorf("outbox: schedule retry: %w", err)
	}
	metrics.OutboxPublished.WithLabelValues("retry").Inc()
	r.log.Warn().Str("outbox_id", m.ID).Str("topic", m.Topic).Int("attempt", next).Dur("retry_in", delay).Err(cause).Msg("publish failed; scheduled retry")
	return nil
}
