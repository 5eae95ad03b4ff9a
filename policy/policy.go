// Package policy decides whether a request may perform an operation. Guards
// are composed per operation and evaluated in order; the first denial wins.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"dreamkeys/apperr"
	"dreamkeys/auth"
	"dreamkeys/metrics"
)

var (
	ErrUnauthorized = apperr.New(apperr.KindUnauthorized, "unauthorized", "unauthorized access")
	ErrForbidden    = apperr.New(apperr.KindForbidden, "forbidden", "forbidden access")
)

type TokenVerifier interface {
	Verify(raw string) (auth.Claims, error)
}

type StandingResolver interface {
	Resolve(ctx context.Context, email string) (auth.Standing, error)
}

// Request is the subject side of an authorization decision. Claims is filled
// by the first successful authentication and reused by later guards.
type Request struct {
	Token  string
	Claims *auth.Claims
	// Owner is the owner email of the target resource, empty when none.
	Owner string

	standing *auth.Standing
}

func NewRequest(token string) *Request {
	return &Request{Token: token}
}

// WithOwner returns a copy of r targeting a resource owned by owner.
func (r *Request) WithOwner(owner string) *Request {
	if r == nil {
		return &Request{Owner: owner}
	}
	cp := *r
	cp.Owner = owner
	return &cp
}

// Subject is the authenticated email, or "" before authentication.
func (r *Request) Subject() string {
	if r == nil || r.Claims == nil {
		return ""
	}
	return r.Claims.Email
}

type Guard struct {
	name  string
	check func(ctx context.Context, e *Evaluator, req *Request) error
}

func (g Guard) Name() string { return g.name }

type Evaluator struct {
	tokens TokenVerifier
	dir    StandingResolver
	log    zerolog.Logger
}

func NewEvaluator(tokens TokenVerifier, dir StandingResolver) *Evaluator {
	return &Evaluator{
		tokens: tokens,
		dir:    dir,
		log:    zlog.Logger.With().Str("component", "policy").Logger(),
	}
}

// Check runs guards in order and returns the authenticated claims on allow.
// Denials are Unauthorized or Forbidden; directory failures surface as
// internal errors.
func (e *Evaluator) Check(ctx context.Context, req *Request, guards ...Guard) (auth.Claims, error) {
	if req == nil {
		req = &Request{}
	}
	for _, g := range guards {
		if err := g.check(ctx, e, req); err != nil {
			e.deny(g.name, req, err)
			return auth.Claims{}, err
		}
	}
	if req.Claims == nil {
		return auth.Claims{}, nil
	}
	return *req.Claims, nil
}

func (e *Evaluator) deny(guard string, req *Request, err error) {
	kind := apperr.KindOf(err)
	metrics.GuardDenials.WithLabelValues(guard, kind.String()).Inc()
	e.log.Debug().
		Str("guard", guard).
		Str("subject", req.Subject()).
		Str("kind", kind.String()).
		Err(err).
		Msg("access denied")
}

func (e *Evaluator) authenticate(req *Request) error {
	if req.Claims != nil {
		return nil
	}
	if strings.TrimSpace(req.Token) == "" {
		return ErrUnauthorized
	}
	claims, err := e.tokens.Verify(req.Token)
	if err != nil {
		return ErrUnauthorized.WithCause(err)
	}
	req.Claims = &claims
	return nil
}

func (e *Evaluator) standing(ctx context.Context, req *Request) (auth.Standing, error) {
	if req.standing != nil {
		return *req.standing, nil
	}
	s, err := e.dir.Resolve(ctx, req.Claims.Email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return auth.Standing{}, ErrForbidden.WithCause(err)
		}
		return auth.Standing{}, fmt.Errorf("policy: resolve standing: %w", err)
	}
	req.standing = &s
	return s, nil
}

// Authenticated requires a bearer token that verifies.
func Authenticated() Guard {
	return Guard{
		name: "authenticated",
		check: func(ctx context.Context, e *Evaluator, req *Request) error {
			return e.authenticate(req)
		},
	}
}

// RoleAtLeast requires the subject's current role, as held by the
// directory, to rank at or above min.
func RoleAtLeast(min auth.Role) Guard {
	return Guard{
		name: "role_at_least_" + string(min),
		check: func(ctx context.Context, e *Evaluator, req *Request) error {
			if err := e.authenticate(req); err != nil {
				return err
			}
			s, err := e.standing(ctx, req)
			if err != nil {
				return err
			}
			if s.Role.Rank() < min.Rank() {
				return ErrForbidden.WithCause(fmt.Errorf("role %s below %s", s.Role, min))
			}
			return nil
		},
	}
}

// HasRole requires the subject's current directory role to be exactly role.
func HasRole(role auth.Role) Guard {
	return Guard{
		name: "has_role_" + string(role),
		check: func(ctx context.Context, e *Evaluator, req *Request) error {
			if err := e.authenticate(req); err != nil {
				return err
			}
			s, err := e.standing(ctx, req)
			if err != nil {
				return err
			}
			if s.Role != role {
				return ErrForbidden.WithCause(fmt.Errorf("role %s is not %s", s.Role, role))
			}
			return nil
		},
	}
}

// Owns requires the subject to be the owner of the target resource.
func Owns() Guard {
	return Guard{
		name: "owns",
		check: func(ctx context.Context, e *Evaluator, req *Request) error {
			if err := e.authenticate(req); err != nil {
				return err
			}
			owner := strings.ToLower(strings.TrimSpace(req.Owner))
			if owner == "" || owner != strings.ToLower(req.Claims.Email) {
				return ErrForbidden.WithCause(errors.New("not the owner"))
			}
			return nil
		},
	}
}

// InGoodStanding rejects subjects flagged as fraudulent.
func InGoodStanding() Guard {
	return Guard{
		name: "in_good_standing",
		check: func(ctx context.Context, e *Evaluator, req *Request) error {
			if err := e.authenticate(req); err != nil {
				return err
			}
			s, err := e.standing(ctx, req)
			if err != nil {
				return err
			}
			if s.IsFraud {
				return ErrForbidden.WithCause(errors.New("subject flagged as fraud"))
			}
			return nil
		},
	}
}

// All allows only when every guard allows.
func All(guards ...Guard) Guard {
	return Guard{
		name: combinedName("all", guards),
		check: func(ctx context.Context, e *Evaluator, req *Request) error {
			for _, g := range guards {
				if err := g.check(ctx, e, req); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Any allows when one guard allows. An internal error from any branch is
// returned as is; otherwise an unauthenticated request stays Unauthorized
// and everything else is Forbidden.
func Any(guards ...Guard) Guard {
	return Guard{
		name: combinedName("any", guards),
		check: func(ctx context.Context, e *Evaluator, req *Request) error {
			var first error
			for _, g := range guards {
				err := g.check(ctx, e, req)
				if err == nil {
					return nil
				}
				if apperr.KindOf(err) == apperr.KindInternal {
					return err
				}
				if first == nil {
					first = err
				}
			}
			if first != nil && apperr.KindOf(first) == apperr.KindUnauthorized {
				return first
			}
			return ErrForbidden
		},
	}
}

func AdminOnly() []Guard {
	return []Guard{Authenticated(), RoleAtLeast(auth.RoleAdmin)}
}

func OwnerOrAdmin() []Guard {
	return []Guard{Authenticated(), Any(Owns(), RoleAtLeast(auth.RoleAdmin))}
}

func AgentInGoodStanding() []Guard {
	return []Guard{Authenticated(), HasRole(auth.RoleAgent), InGoodStanding()}
}

func combinedName(op string, guards []Guard) string {
	names := make([]string, 0, len(guards))
	for _, g := range guards {
		names = append(names, g.name)
	}
	return op + "(" + strings.Join(names, ",") + ")"
}
