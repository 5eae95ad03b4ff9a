// Package wishlist keeps per-user saved listings. Each entry is a snapshot of
// the listing at the time it was saved.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dreamkeys/apperr"
	"dreamkeys/auth"
	"dreamkeys/policy"
	"dreamkeys/property"
)

var (
	ErrNotFound  = apperr.New(apperr.KindNotFound, "wishlist_not_found", "property not found in wishlist")
	ErrInvalidID = apperr.New(apperr.KindInvalidArgument, "invalid_wishlist_id", "invalid wishlist id")
	ErrDuplicate = apperr.New(apperr.KindConflict, "wishlist_exists", "property already in wishlist")
)

type Entry struct {
	ID                 string    `json:"id"`
	UserEmail          string    `json:"userEmail"`
	PropertyID         string    `json:"propertyId"`
	Title              string    `json:"title"`
	Location           string    `json:"location"`
	ImageURL           string    `json:"imageUrl"`
	AgentEmail         string    `json:"agentEmail"`
	AgentName          string    `json:"agentName"`
	AgentImage         string    `json:"agentImage"`
	PriceMin           int64     `json:"priceMin"`
	PriceMax           int64     `json:"priceMax"`
	VerificationStatus string    `json:"verificationStatus"`
	AddedAt            time.Time `json:"addedAt"`
}

type Repository interface {
	Add(ctx context.Context, e Entry) (Entry, error)
	ListByUser(ctx context.Context, email string) ([]Entry, error)
	GetOwned(ctx context.Context, id, email string) (Entry, error)
	RemoveOwned(ctx context.Context, id, email string) error
}

type Authorizer interface {
	Check(ctx context.Context, req *policy.Request, guards ...policy.Guard) (auth.Claims, error)
}

type PropertyReader interface {
	Get(ctx context.Context, id string) (property.Property, error)
}

// Service scopes every operation to the authenticated subject. Entries of
// other users are reported as not found.
type Service struct {
	repo       Repository
	properties PropertyReader
	authz      Authorizer
	now        func() time.Time
}

func NewService(repo Repository, properties PropertyReader, authz Authorizer) *Service {
	return &Service{repo: repo, properties: properties, authz: authz, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Add(ctx context.Context, req *policy.Request, propertyID string) (Entry, error) {
	claims, err := s.authz.Check(ctx, req, policy.Authenticated())
	if err != nil {
		return Entry{}, err
	}
	p, err := s.properties.Get(ctx, propertyID)
	if err != nil {
		return Entry{}, err
	}
	return s.repo.Add(ctx, Entry{
		UserEmail:          claims.Email,
		PropertyID:         p.ID,
		Title:              p.Title,
		Location:           p.Location,
		ImageURL:           p.ImageURL,
		AgentEmail:         p.AgentEmail,
		AgentName:          p.AgentName,
		AgentImage:         p.AgentImage,
		PriceMin:           p.PriceMin,
		PriceMax:           p.PriceMax,
		VerificationStatus: string(p.VerificationStatus),
		AddedAt:            s.now().UTC(),
	})
}

func (s *Service) List(ctx context.Context, req *policy.Request) ([]Entry, error) {
	claims, err := s.authz.Check(ctx, req, policy.Authenticated())
	if err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, claims.Email)
}

func (s *Service) Get(ctx context.Context, req *policy.Request, id string) (Entry, error) {
	claims, err := s.authz.Check(ctx, req, policy.Authenticated())
	if err != nil {
		return Entry{}, err
	}
	if err := validateID(id); err != nil {
		return Entry{}, err
	}
	return s.repo.GetOwned(ctx, id, claims.Email)
}

func (s *Service) Remove(ctx context.Context, req *policy.Request, id string) error {
	claims, err := s.authz.Check(ctx, req, policy.Authenticated())
	if err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	return s.repo.RemoveOwned(ctx, id, claims.Email)
}

func validateID(id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return ErrInvalidID
	}
	return nil
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `id::text, user_email, property_id::text, title, location, image_url, agent_email,
	agent_name, agent_image, price_min, price_max, verification_status, added_at`

func (r *PGRepository) Add(ctx context.Context, e Entry) (Entry, error) {
	const query = `
		INSERT INTO wishlist (user_email, property_id, title, location, image_url, agent_email,
			agent_name, agent_image, price_min, price_max, verification_status, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + entryColumns

	created, err := scanEntry(r.pool.QueryRow(ctx, query,
		e.UserEmail, e.PropertyID, e.Title, e.Location, e.ImageURL, e.AgentEmail,
		e.AgentName, e.AgentImage, e.PriceMin, e.PriceMax, e.VerificationStatus, e.AddedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, ErrDuplicate
		}
		return Entry{}, fmt.Errorf("wishlist: add: %w", err)
	}
	return created, nil
}

func (r *PGRepository) ListByUser(ctx context.Context, email string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM wishlist WHERE lower(user_email) = lower($1) ORDER BY added_at DESC`
	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("wishlist: query list: %w", err)
	}
	defer rows.Close()

	list := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("wishlist: scan: %w", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wishlist: list rows: %w", err)
	}
	return list, nil
}

func (r *PGRepository) GetOwned(ctx context.Context, id, email string) (Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM wishlist WHERE id = $1 AND lower(user_email) = lower($2)`
	e, err := scanEntry(r.pool.QueryRow(ctx, query, id, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("wishlist: get: %w", err)
	}
	return e, nil
}

func (r *PGRepository) RemoveOwned(ctx context.Context, id, email string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM wishlist WHERE id = $1 AND lower(user_email) = lower($2)`, id, email)
	if err != nil {
		return fmt.Errorf("wishlist: remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.UserEmail,
		&e.PropertyID,
		&e.Title,
		&e.Location,
		&e.ImageURL,
		&e.AgentEmail,
		&e.AgentName,
		&e.AgentImage,
		&e.PriceMin,
		&e.PriceMax,
		&e.VerificationStatus,
		&e.AddedAt,
	)
	return e, err
}
