package bid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dreamkeys/apperr"
	"dreamkeys/audit"
	"dreamkeys/auth"
	"dreamkeys/db"
	"dreamkeys/metrics"
	"dreamkeys/outbox"
	"dreamkeys/policy"
	"dreamkeys/property"
)

type Authorizer interface {
	Check(ctx context.Context, req *policy.Request, guards ...policy.Guard) (auth.Claims, error)
}

// PropertyReader looks up the listing a bid is placed on.
type PropertyReader interface {
	Get(ctx context.Context, id string) (property.Property, error)
}

type Service struct {
	pool       db.TxBeginner
	repo       Repository
	properties PropertyReader
	authz      Authorizer
	outbox     outbox.Writer
	audit      *audit.Logger
	now        func() time.Time
}

func NewService(pool db.TxBeginner, repo Repository, properties PropertyReader, authz Authorizer, ob outbox.Writer) *Service {
	if ob == nil {
		ob = outbox.PGWriter{}
	}
	return &Service{
		pool:       pool,
		repo:       repo,
		properties: properties,
		authz:      authz,
		outbox:     ob,
		audit:      audit.Default(),
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithAudit(a *audit.Logger) *Service {
	s.audit = a
	return s
}

// Create places a pending bid. The buyer is always the authenticated
// subject; title and agent are copied from the listing.
func (s *Service) Create(ctx context.Context, req *policy.Request, params CreateParams) (Bid, error) {
	claims, err := s.authz.Check(ctx, req, policy.Authenticated(), policy.InGoodStanding())
	if err != nil {
		return Bid{}, err
	}
	if params.OfferAmount <= 0 {
		return Bid{}, ErrInvalidOffer.WithMessage("offer amount must be positive")
	}

	listing, err := s.properties.Get(ctx, params.PropertyID)
	if err != nil {
		return Bid{}, err
	}
	if strings.EqualFold(listing.AgentEmail, claims.Email) {
		return Bid{}, ErrSelfBid
	}
	if !listing.InRange(params.OfferAmount) {
		return Bid{}, ErrInvalidOffer.WithMessage("offer must be between %d and %d", listing.PriceMin, listing.PriceMax)
	}

	b := Bid{
		PropertyID:    listing.ID,
		PropertyTitle: listing.Title,
		AgentEmail:    listing.AgentEmail,
		BuyerEmail:    claims.Email,
		BuyerName:     strings.TrimSpace(params.BuyerName),
		OfferAmount:   params.OfferAmount,
		BuyingDate:    params.BuyingDate,
		Status:        StatusPending,
		CreatedAt:     s.now().UTC(),
	}

	var created Bid
	err = s.inTx(ctx, "create", func(tx pgx.Tx) error {
		var err error
		created, err = s.repo.Create(ctx, tx, b)
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, outbox.TopicBidCreated, map[string]any{
			"bid_id":       created.ID,
			"property_id":  created.PropertyID,
			"agent_email":  created.AgentEmail,
			"offer_amount": created.OfferAmount,
		})
	})
	if err != nil {
		return Bid{}, err
	}
	metrics.Transitions.WithLabelValues("bid", string(StatusPending)).Inc()
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Bid, error) {
	if err := validateID(id); err != nil {
		return Bid{}, err
	}
	return s.repo.Get(ctx, id)
}

// ListForBuyer returns the buyer's bids with their listings. Only the buyer
// or an admin may read them.
func (s *Service) ListForBuyer(ctx context.Context, req *policy.Request, email string) ([]View, error) {
	if _, err := s.authz.Check(ctx, req.WithOwner(email), policy.OwnerOrAdmin()...); err != nil {
		return nil, err
	}
	return s.repo.ListByBuyer(ctx, strings.TrimSpace(email))
}

// ListForAgent returns bids placed with the agent. Only that agent or an
// admin may read them.
func (s *Service) ListForAgent(ctx context.Context, req *policy.Request, email string) ([]View, error) {
	if _, err := s.authz.Check(ctx, req.WithOwner(email), policy.OwnerOrAdmin()...); err != nil {
		return nil, err
	}
	return s.repo.ListByAgent(ctx, strings.TrimSpace(email))
}

func (s *Service) Accept(ctx context.Context, req *policy.Request, id string) (Bid, error) {
	return s.decide(ctx, req, id, StatusAccepted)
}

func (s *Service) Reject(ctx context.Context, req *policy.Request, id string) (Bid, error) {
	return s.decide(ctx, req, id, StatusRejected)
}

// decide is allowed for the agent the bid was placed with, or an admin.
// Repeating a decision is a no-op; reversing one is a conflict. Other bids
// on the same listing are not touched.
func (s *Service) decide(ctx context.Context, req *policy.Request, id string, to Status) (Bid, error) {
	if _, err := s.authz.Check(ctx, req, policy.Authenticated()); err != nil {
		return Bid{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Bid{}, err
	}
	claims, err := s.authz.Check(ctx, req.WithOwner(current.AgentEmail), policy.OwnerOrAdmin()...)
	if err != nil {
		return Bid{}, err
	}

	var (
		decided Bid
		changed bool
	)
	err = s.inTx(ctx, "decide", func(tx pgx.Tx) error {
		locked, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		switch locked.Status {
		case to:
			decided = locked
			return nil
		case StatusPending:
		default:
			return ErrAlreadyDecided.WithMessage("bid already %s", locked.Status)
		}

		decided, err = s.repo.Decide(ctx, tx, id, to, claims.Email, s.now().UTC())
		if err != nil {
			return err
		}
		changed = true
		return s.outbox.Enqueue(ctx, tx, outbox.TopicBidDecided, map[string]any{
			"bid_id":      id,
			"property_id": decided.PropertyID,
			"buyer_email": decided.BuyerEmail,
			"status":      to,
			"actor":       claims.Email,
		})
	})
	if err != nil {
		return Bid{}, err
	}
	if changed {
		metrics.Transitions.WithLabelValues("bid", string(to)).Inc()
		s.audit.BidDecided(ctx, claims.Email, id, string(to))
	}
	return decided, nil
}

func (s *Service) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return db.RetryOnce(ctx, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("bid: %s: begin tx: %w", op, err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				return err
			}
			return fmt.Errorf("bid: %s: %w", op, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("bid: %s: commit tx: %w", op, err)
		}
		return nil
	})
}

func validateID(id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return ErrInvalidID
	}
	return nil
}
