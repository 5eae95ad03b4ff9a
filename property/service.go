package property

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
)

// Authorizer is satisfied by *policy.Evaluator.
type Authorizer interface {
	Check(ctx context.Context, req *policy.Request, guards ...policy.Guard) (auth.Claims, error)
}

// Service owns the listing lifecycle: creation in pending, admin
// verification, advertising, edits and removal. Every mutation commits
// together with its outbox event.
type Service struct {
	pool   db.TxBeginner
	repo   Repository
	authz  Authorizer
	outbox outbox.Writer
	audit  *audit.Logger
	now    func() time.Time

	requireVerifiedToAdvertise bool
}

func NewService(pool db.TxBeginner, repo Repository, authz Authorizer, ob outbox.Writer) *Service {
	if ob == nil {
		ob = outbox.PGWriter{}
	}
	return &Service{
		pool:   pool,
		repo:   repo,
		authz:  authz,
		outbox: ob,
		audit:  audit.Default(),
		now:    time.Now,
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

// WithVerifiedAdvertising makes SetAdvertised(true) refuse listings that are
// not verified.
func (s *Service) WithVerifiedAdvertising(required bool) *Service {
	s.requireVerifiedToAdvertise = required
	return s
}

// Create lists a new property owned by the calling agent. The owner is
// always the authenticated subject.
func (s *Service) Create(ctx context.Context, req *policy.Request, params CreateParams) (Property, error) {
	claims, err := s.authz.Check(ctx, req, policy.AgentInGoodStanding()...)
	if err != nil {
		return Property{}, err
	}

	params.Title = strings.TrimSpace(params.Title)
	params.Location = strings.TrimSpace(params.Location)
	if params.Title == "" {
		return Property{}, ErrInvalidListing.WithMessage("title is required")
	}
	if params.Location == "" {
		return Property{}, ErrInvalidListing.WithMessage("location is required")
	}
	if err := validatePrice(params.PriceMin, params.PriceMax); err != nil {
		return Property{}, err
	}

	now := s.now().UTC()
	p := Property{
		AgentEmail:         claims.Email,
		AgentName:          params.AgentName,
		AgentImage:         params.AgentImage,
		Title:              params.Title,
		Location:           params.Location,
		ImageURL:           params.ImageURL,
		PriceMin:           params.PriceMin,
		PriceMax:           params.PriceMax,
		Description:        params.Description,
		VerificationStatus: StatusPending,
		IsAdvertised:       false,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var created Property
	err = s.inTx(ctx, "create", func(tx pgx.Tx) error {
		var err error
		created, err = s.repo.Create(ctx, tx, p)
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, outbox.TopicPropertyCreated, map[string]any{
			"property_id": created.ID,
			"agent_email": created.AgentEmail,
			"status":      created.VerificationStatus,
		})
	})
	if err != nil {
		return Property{}, err
	}
	metrics.Transitions.WithLabelValues("property", string(StatusPending)).Inc()
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Property, error) {
	if err := validateID(id); err != nil {
		return Property{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Property, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.InvalidArgument("invalid status filter %q", filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Owner returns the agent email that owns id.
func (s *Service) Owner(ctx context.Context, id string) (string, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.AgentEmail, nil
}

// authorizeOwner authenticates req before the listing is looked up, then
// requires owner or admin.
func (s *Service) authorizeOwner(ctx context.Context, req *policy.Request, id string) (auth.Claims, error) {
	if _, err := s.authz.Check(ctx, req, policy.Authenticated()); err != nil {
		return auth.Claims{}, err
	}
	owner, err := s.Owner(ctx, id)
	if err != nil {
		return auth.Claims{}, err
	}
	return s.authz.Check(ctx, req.WithOwner(owner), policy.OwnerOrAdmin()...)
}

// Update edits listing details. Only the owning agent or an admin may edit.
func (s *Service) Update(ctx context.Context, req *policy.Request, id string, params UpdateParams) (Property, error) {
	if _, err := s.authorizeOwner(ctx, req, id); err != nil {
		return Property{}, err
	}
	if params.empty() {
		return Property{}, ErrInvalidListing.WithMessage("no changes supplied")
	}
	if params.Title != nil && strings.TrimSpace(*params.Title) == "" {
		return Property{}, ErrInvalidListing.WithMessage("title is required")
	}
	if params.Location != nil && strings.TrimSpace(*params.Location) == "" {
		return Property{}, ErrInvalidListing.WithMessage("location is required")
	}

	var updated Property
	err := s.inTx(ctx, "update", func(tx pgx.Tx) error {
		current, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		lo, hi := current.PriceMin, current.PriceMax
		if params.PriceMin != nil {
			lo = *params.PriceMin
		}
		if params.PriceMax != nil {
			hi = *params.PriceMax
		}
		if err := validatePrice(lo, hi); err != nil {
			return err
		}
		updated, err = s.repo.Update(ctx, tx, id, params, s.now().UTC())
		return err
	})
	if err != nil {
		return Property{}, err
	}
	return updated, nil
}

// Verify records an admin's verification decision. Without an expected
// status the write is last-write-wins; with one, a mismatch is a conflict.
func (s *Service) Verify(ctx context.Context, req *policy.Request, id string, outcome Status, opts VerifyOptions) (Property, error) {
	claims, err := s.authz.Check(ctx, req, policy.AdminOnly()...)
	if err != nil {
		return Property{}, err
	}
	if outcome != StatusVerified && outcome != StatusRejected {
		return Property{}, ErrInvalidOutcome
	}
	if opts.Expected != nil && !opts.Expected.Valid() {
		return Property{}, apperr.InvalidArgument("invalid expected status %q", *opts.Expected)
	}
	if err := validateID(id); err != nil {
		return Property{}, err
	}

	var updated Property
	err = s.inTx(ctx, "verify", func(tx pgx.Tx) error {
		current, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if opts.Expected != nil && current.VerificationStatus != *opts.Expected {
			return ErrStatusConflict.WithMessage("expected %s, found %s", *opts.Expected, current.VerificationStatus)
		}
		updated, err = s.repo.SetVerification(ctx, tx, id, outcome, s.now().UTC())
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, outbox.TopicPropertyVerificationChanged, map[string]any{
			"property_id": id,
			"from":        current.VerificationStatus,
			"to":          outcome,
			"actor":       claims.Email,
		})
	})
	if err != nil {
		return Property{}, err
	}
	metrics.Transitions.WithLabelValues("property", string(outcome)).Inc()
	s.audit.PropertyVerified(ctx, claims.Email, id, string(outcome))
	return updated, nil
}

// SetAdvertised toggles the advertised flag. Switching it on stamps
// updated_at; switching it off leaves the timestamp alone.
func (s *Service) SetAdvertised(ctx context.Context, req *policy.Request, id string, advertised bool) (Property, error) {
	claims, err := s.authz.Check(ctx, req, policy.AdminOnly()...)
	if err != nil {
		return Property{}, err
	}
	if err := validateID(id); err != nil {
		return Property{}, err
	}

	var updated Property
	err = s.inTx(ctx, "set advertised", func(tx pgx.Tx) error {
		current, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if advertised && s.requireVerifiedToAdvertise && current.VerificationStatus != StatusVerified {
			return ErrNotVerified
		}
		updated, err = s.repo.SetAdvertised(ctx, tx, id, advertised, s.now().UTC())
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, outbox.TopicPropertyAdvertisingChanged, map[string]any{
			"property_id": id,
			"advertised":  advertised,
			"actor":       claims.Email,
		})
	})
	if err != nil {
		return Property{}, err
	}
	to := "unadvertised"
	if advertised {
		to = "advertised"
	}
	metrics.Transitions.WithLabelValues("property", to).Inc()
	s.audit.AdvertisingChanged(ctx, claims.Email, id, advertised)
	return updated, nil
}

// Delete removes a listing. Bids that reference it are left in place.
func (s *Service) Delete(ctx context.Context, req *policy.Request, id string) (Property, error) {
	claims, err := s.authorizeOwner(ctx, req, id)
	if err != nil {
		return Property{}, err
	}

	var deleted Property
	err = s.inTx(ctx, "delete", func(tx pgx.Tx) error {
		var err error
		deleted, err = s.repo.Delete(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, outbox.TopicPropertyDeleted, map[string]any{
			"property_id": id,
			"agent_email": deleted.AgentEmail,
			"actor":       claims.Email,
		})
	})
	if err != nil {
		return Property{}, err
	}
	metrics.Transitions.WithLabelValues("property", "deleted").Inc()
	return deleted, nil
}

// DeleteAllByAgent removes every listing owned by agentEmail.
func (s *Service) DeleteAllByAgent(ctx context.Context, req *policy.Request, agentEmail string) (int64, error) {
	claims, err := s.authz.Check(ctx, req, policy.AdminOnly()...)
	if err != nil {
		return 0, err
	}
	agentEmail = strings.TrimSpace(agentEmail)
	if agentEmail == "" {
		return 0, apperr.InvalidArgument("agent email is required")
	}

	var n int64
	err = s.inTx(ctx, "delete by agent", func(tx pgx.Tx) error {
		var err error
		n, err = s.repo.DeleteByAgent(ctx, tx, agentEmail)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNoAgentProperties
		}
		return s.outbox.Enqueue(ctx, tx, outbox.TopicPropertiesPurged, map[string]any{
			"agent_email": agentEmail,
			"count":       n,
			"actor":       claims.Email,
		})
	})
	if err != nil {
		return 0, err
	}
	s.audit.PropertiesPurged(ctx, claims.Email, agentEmail, n)
	return n, nil
}

// Report files a complaint against a listing. The reporter is the
// authenticated subject; the listing status is not changed.
func (s *Service) Report(ctx context.Context, req *policy.Request, id string, params ReportParams) (Report, error) {
	claims, err := s.authz.Check(ctx, req, policy.Authenticated())
	if err != nil {
		return Report{}, err
	}
	params.Description = strings.TrimSpace(params.Description)
	if params.Description == "" {
		return Report{}, apperr.InvalidArgument("report description is required")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}

	var created Report
	err = s.inTx(ctx, "report", func(tx pgx.Tx) error {
		var err error
		created, err = s.repo.CreateReport(ctx, tx, Report{
			PropertyID:    p.ID,
			PropertyTitle: p.Title,
			AgentEmail:    p.AgentEmail,
			ReporterEmail: claims.Email,
			ReporterName:  params.ReporterName,
			Description:   params.Description,
			CreatedAt:     s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return Report{}, err
	}
	return created, nil
}

func (s *Service) ListReports(ctx context.Context, req *policy.Request) ([]Report, error) {
	if _, err := s.authz.Check(ctx, req, policy.AdminOnly()...); err != nil {
		return nil, err
	}
	return s.repo.ListReports(ctx)
}

// inTx runs fn in one transaction, retried once on a transient storage
// failure. Domain errors pass through unchanged; anything else is wrapped
// with the operation name.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return db.RetryOnce(ctx, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("property: %s: begin tx: %w", op, err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				return err
			}
			return fmt.Errorf("property: %s: %w", op, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("property: %s: commit tx: %w", op, err)
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

func validatePrice(lo, hi int64) error {
	if hi <= 0 {
		return ErrInvalidListing.WithMessage("price is required")
	}
	if lo < 0 {
		return ErrInvalidListing.WithMessage("minimum price cannot be negative")
	}
	if lo > hi {
		return ErrInvalidListing.WithMessage("minimum price %d exceeds maximum %d", lo, hi)
	}
	return nil
}
