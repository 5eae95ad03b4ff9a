package bid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, b Bid) (Bid, error)
	Get(ctx context.Context, id string) (Bid, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Bid, error)
	ListByBuyer(ctx context.Context, email string) ([]View, error)
	ListByAgent(ctx context.Context, email string) ([]View, error)
	// Decide moves a pending bid to status. A bid that is no longer
	// pending yields ErrAlreadyDecided.
	Decide(ctx context.Context, tx pgx.Tx, id string, status Status, actor string, at time.Time) (Bid, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const bidColumns = `id::text, property_id::text, property_title, agent_email, buyer_email, buyer_name,
	offer_amount, buying_date, status, decided_by, decided_at, created_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, b Bid) (Bid, error) {
	const query = `
		INSERT INTO bids (property_id, property_title, agent_email, buyer_email, buyer_name,
			offer_amount, buying_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + bidColumns

	created, err := scanBid(tx.QueryRow(ctx, query,
		b.PropertyID,
		b.PropertyTitle,
		b.AgentEmail,
		b.BuyerEmail,
		b.BuyerName,
		b.OfferAmount,
		b.BuyingDate,
		b.Status,
		b.CreatedAt,
	))
	if err != nil {
		return Bid{}, fmt.Errorf("bid: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	return one(r.pool.QueryRow(ctx, query, id), "get")
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1 FOR UPDATE`
	return one(tx.QueryRow(ctx, query, id), "get for update")
}

func (r *PGRepository) ListByBuyer(ctx context.Context, email string) ([]View, error) {
	return r.listViews(ctx, "lower(b.buyer_email) = lower($1)", email)
}

func (r *PGRepository) ListByAgent(ctx context.Context, email string) ([]View, error) {
	return r.listViews(ctx, "lower(b.agent_email) = lower($1)", email)
}

// listViews left-joins listings so bids on deleted listings still appear.
func (r *PGRepository) listViews(ctx context.Context, where string, arg any) ([]View, error) {
	query := `
		SELECT b.id::text, b.property_id::text, b.property_title, b.agent_email, b.buyer_email, b.buyer_name,
			b.offer_amount, b.buying_date, b.status, b.decided_by, b.decided_at, b.created_at,
			p.id::text, p.title, p.location, p.image_url, p.agent_name, p.price_min, p.price_max, p.verification_status
		FROM bids b
		LEFT JOIN properties p ON p.id = b.property_id
		WHERE ` + where + `
		ORDER BY b.created_at DESC`

	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("bid: query views: %w", err)
	}
	defer rows.Close()

	views := []View{}
	for rows.Next() {
		var (
			v                                           View
			pid, title, location, image, name, vstatus *string
			pmin, pmax                                  *int64
		)
		if err := rows.Scan(
			&v.ID, &v.PropertyID, &v.PropertyTitle, &v.AgentEmail, &v.BuyerEmail, &v.BuyerName,
			&v.OfferAmount, &v.BuyingDate, &v.Status, &v.DecidedBy, &v.DecidedAt, &v.CreatedAt,
			&pid, &title, &location, &image, &name, &pmin, &pmax, &vstatus,
		); err != nil {
			return nil, fmt.Errorf("bid: scan view: %w", err)
		}
		if pid != nil {
			v.Property = &Summary{
				ID:                 *pid,
				Title:              deref(title),
				Location:           deref(location),
				ImageURL:           deref(image),
				AgentName:          deref(name),
				VerificationStatus: deref(vstatus),
			}
			if pmin != nil {
				v.Property.PriceMin = *pmin
			}
			if pmax != nil {
				v.Property.PriceMax = *pmax
			}
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bid: view rows: %w", err)
	}
	return views, nil
}

func (r *PGRepository) Decide(ctx context.Context, tx pgx.Tx, id string, status Status, actor string, at time.Time) (Bid, error) {
	const query = `
		UPDATE bids
		SET status = $2,
		    decided_by = $3,
		    decided_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + bidColumns

	b, err := scanBid(tx.QueryRow(ctx, query, id, status, actor, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bid{}, ErrAlreadyDecided
		}
		return Bid{}, fmt.Errorf("bid: decide: %w", err)
	}
	return b, nil
}

func one(row pgx.Row, op string) (Bid, error) {
	b, err := scanBid(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bid{}, ErrNotFound
		}
		return Bid{}, fmt.Errorf("bid: %s: %w", op, err)
	}
	return b, nil
}

func scanBid(row pgx.Row) (Bid, error) {
	var b Bid
	err := row.Scan(
		&b.ID,
		&b.PropertyID,
		&b.PropertyTitle,
		&b.AgentEmail,
		&b.BuyerEmail,
		&b.BuyerName,
		&b.OfferAmount,
		&b.BuyingDate,
		&b.Status,
		&b.DecidedBy,
		&b.DecidedAt,
		&b.CreatedAt,
	)
	return b, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
