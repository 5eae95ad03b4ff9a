// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to a message broker.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	TopicPropertyCreated             = "property.created"
	TopicPropertyVerificationChanged = "property.verification_changed"
	TopicPropertyAdvertisingChanged  = "property.advertising_changed"
	TopicPropertyDeleted             = "property.deleted"
	TopicPropertiesPurged            = "property.purged"
	TopicBidCreated                  = "bid.created"
	TopicBidDecided                  = "bid.decided"
)

// Status is the delivery state of an outbox row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusDead      Status = "dead"
)

// Message is a claimed outbox row.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// Publisher delivers a message body under a routing key.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Writer appends an event inside the caller's transaction.
type Writer interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// PGWriter is the Postgres outbox writer.
type PGWriter struct{}

func (PGWriter) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return Enqueue(ctx, tx, topic, payload)
}

// Enqueue inserts one pending row. It must run on the transaction that
// performs the state change so both commit or neither does.
func Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: enqueue: empty topic")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	return nil
}
