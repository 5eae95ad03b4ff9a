package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dreamkeys/outbox"
	"dreamkeys/test/infra"
)

type recordingPublisher struct {
	mu   sync.Mutex
	fail bool
	got  []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, topic)
	return nil
}

func enqueue(t *testing.T, ctx context.Context, h *infra.Harness, topic string) {
	t.Helper()
	tx, err := h.Pool().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, outbox.Enqueue(ctx, tx, topic, map[string]any{"k": "v"}))
	require.NoError(t, tx.Commit(ctx))
}

func TestRelayPublishesAndMarksProcessed(t *testing.T) {
	h := infra.Open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, h.Reset(ctx))

	enqueue(t, ctx, h, outbox.TopicPropertyCreated)
	enqueue(t, ctx, h, outbox.TopicBidCreated)

	pub := &recordingPublisher{}
	relay := outbox.NewRelay(h.Pool(), pub, outbox.WithBatch(10))

	n, err := relay.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.ElementsMatch(t, []string{outbox.TopicPropertyCreated, outbox.TopicBidCreated}, pub.got)

	var pending int
	require.NoError(t, h.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE status = 'pending'`).Scan(&pending))
	require.Zero(t, pending)

	n, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRelayRetriesThenDeadLetters(t *testing.T) {
	h := infra.Open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, h.Reset(ctx))

	enqueue(t, ctx, h, outbox.TopicBidDecided)

	pub := &recordingPublisher{fail: true}
	relay := outbox.NewRelay(h.Pool(), pub, outbox.WithMaxAttempts(2))

	_, err := relay.ProcessBatch(ctx)
	require.NoError(t, err)

	var status string
	var attempts int
	require.NoError(t, h.Pool().QueryRow(ctx, `SELECT status, attempts FROM outbox`).Scan(&status, &attempts))
	require.Equal(t, "pending", status)
	require.Equal(t, 1, attempts)

	// Retry is scheduled in the future; pull it forward.
	_, err = h.Pool().Exec(ctx, `UPDATE outbox SET next_retry_at = NOW() - INTERVAL '1 second'`)
	require.NoError(t, err)

	_, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Pool().QueryRow(ctx, `SELECT status, attempts FROM outbox`).Scan(&status, &attempts))
	require.Equal(t, "dead", status)
	require.Equal(t, 2, attempts)
}
