// Package policytest builds a policy.Evaluator over in-memory tokens and
// standings for service tests.
package policytest

import (
	"context"
	"strings"
	"sync"

	"dreamkeys/auth"
	"dreamkeys/policy"
)

// Subject is a caller known to the fake token verifier and directory. The
// bearer token is Token; an empty Role leaves the subject out of the
// directory so role checks deny.
type Subject struct {
	Token string
	Email string
	Role  auth.Role
	Fraud bool
}

var (
	Admin = Subject{Token: "t-admin", Email: "admin@example.com", Role: auth.RoleAdmin}
	Agent = Subject{Token: "t-agent", Email: "agent@example.com", Role: auth.RoleAgent}
	Other = Subject{Token: "t-other", Email: "other@example.com", Role: auth.RoleAgent}
	Buyer = Subject{Token: "t-buyer", Email: "buyer@example.com", Role: auth.RoleUser}
	Fraud = Subject{Token: "t-fraud", Email: "fraud@example.com", Role: auth.RoleAgent, Fraud: true}
)

// Request returns a policy request carrying the subject's token.
func (s Subject) Request() *policy.Request {
	return policy.NewRequest(s.Token)
}

type Tokens map[string]auth.Claims

func (t Tokens) Verify(raw string) (auth.Claims, error) {
	c, ok := t[raw]
	if !ok {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return c, nil
}

type Directory struct {
	mu        sync.Mutex
	standings map[string]auth.Standing
	Err       error
}

func (d *Directory) Resolve(_ context.Context, email string) (auth.Standing, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return auth.Standing{}, d.Err
	}
	s, ok := d.standings[strings.ToLower(email)]
	if !ok {
		return auth.Standing{}, auth.ErrUserNotFound
	}
	return s, nil
}

// SetRole changes a subject's role between calls.
func (d *Directory) SetRole(email string, role auth.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(email)
	s := d.standings[key]
	s.Email = email
	s.Role = role
	d.standings[key] = s
}

// New returns an evaluator that knows subjects, plus the directory so tests
// can change standings. With no subjects the default cast is used.
func New(subjects ...Subject) (*policy.Evaluator, *Directory) {
	if len(subjects) == 0 {
		subjects = []Subject{Admin, Agent, Other, Buyer, Fraud}
	}
	tokens := Tokens{}
	dir := &Directory{standings: map[string]auth.Standing{}}
	for _, s := range subjects {
		tokens[s.Token] = auth.Claims{Email: s.Email}
		if s.Role != "" {
			dir.standings[strings.ToLower(s.Email)] = auth.Standing{Email: s.Email, Role: s.Role, IsFraud: s.Fraud}
		}
	}
	return policy.NewEvaluator(tokens, dir), dir
}
