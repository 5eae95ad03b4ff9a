package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_bid_decision_stamped",
			SQL: `SELECT id, status, decided_by, decided_at FROM bids
                  WHERE (status = 'pending') <> (decided_at IS NULL)
                     OR (status = 'pending') <> (decided_by IS NULL)`,
		},
		{
			Name: "O2_single_decision_event",
			SQL: `SELECT payload->>'bid_id', COUNT(*) FROM outbox
                  WHERE topic = 'bid.decided'
                  GROUP BY payload->>'bid_id' HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_decision_event_matches_bid",
			SQL: `SELECT b.id, b.status, o.payload->>'status' FROM bids b
                  JOIN outbox o ON o.topic = 'bid.decided' AND o.payload->>'bid_id' = b.id::text
                  WHERE o.payload->>'status' <> b.status`,
		},
		{
			Name: "O4_decided_without_event",
			SQL: `SELECT b.id FROM bids b
                  WHERE b.status <> 'pending'
                    AND NOT EXISTS (SELECT 1 FROM outbox o
                                    WHERE o.topic = 'bid.decided' AND o.payload->>'bid_id' = b.id::text)`,
		},
		{
			Name: "O5_verification_stamped",
			SQL: `SELECT id, verification_status FROM properties
                  WHERE verification_status <> 'pending' AND verified_at IS NULL`,
		},
		{
			Name: "O6_self_bid",
			SQL:  `SELECT id FROM bids WHERE lower(agent_email) = lower(buyer_email)`,
		},
		{
			Name: "O7_outbox_stale",
			SQL: `SELECT id::text FROM outbox
                  WHERE status NOT IN ('processed','dead')
                    AND now()-created_at > interval '5 minutes'`,
		},
		{
			Name: "O8_outbox_attempt_recorded",
			SQL: `SELECT id::text, status, attempts FROM outbox
                  WHERE (status = 'processed' AND last_attempt IS NULL)
                     OR (status = 'dead' AND (attempts = 0 OR last_error IS NULL))`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
