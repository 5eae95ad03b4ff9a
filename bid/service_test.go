package bid

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dreamkeys/apperr"
	"dreamkeys/db/dbtest"
	"dreamkeys/outbox"
	"dreamkeys/policy"
	"dreamkeys/policy/policytest"
	"dreamkeys/property"
)

type fakeProperties map[string]property.Property

func (f fakeProperties) Get(ctx context.Context, id string) (property.Property, error) {
	p, ok := f[id]
	if !ok {
		return property.Property{}, property.ErrNotFound
	}
	return p, nil
}

func newTestService() (*Service, *fakeRepository, *dbtest.Pool, property.Property) {
	authz, _ := policytest.New()
	listing := property.Property{
		ID:         uuid.NewString(),
		AgentEmail: policytest.Agent.Email,
		Title:      "Garden Villa",
		PriceMin:   100,
		PriceMax:   500,
	}
	repo := newFakeRepository()
	repo.listings = fakeProperties{listing.ID: listing}
	pool := &dbtest.Pool{}
	svc := NewService(pool, repo, repo.listings, authz, nil).
		WithClock(func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) })
	return svc, repo, pool, listing
}

func TestCreate_BuyerFromTokenAndSnapshot(t *testing.T) {
	svc, _, pool, listing := newTestService()

	b, err := svc.Create(context.Background(), policytest.Buyer.Request(), CreateParams{
		PropertyID:  listing.ID,
		OfferAmount: 250,
		BuyerName:   " Bea ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.BuyerEmail != policytest.Buyer.Email {
		t.Fatalf("buyer = %q, want token subject", b.BuyerEmail)
	}
	if b.AgentEmail != listing.AgentEmail || b.PropertyTitle != listing.Title {
		t.Fatalf("listing snapshot missing: %+v", b)
	}
	if b.Status != StatusPending || b.BuyerName != "Bea" {
		t.Fatalf("unexpected bid %+v", b)
	}
	if pool.Committed() != 1 {
		t.Fatalf("expected commit")
	}
	if topic := pool.Last().Execs[0].Args[0]; topic != outbox.TopicBidCreated {
		t.Fatalf("topic = %v", topic)
	}
}

func TestCreate_Rejections(t *testing.T) {
	svc, _, _, listing := newTestService()
	ctx := context.Background()

	cases := []struct {
		name   string
		req    *policy.Request
		params CreateParams
		want   error
	}{
		{"anonymous", policy.NewRequest(""), CreateParams{PropertyID: listing.ID, OfferAmount: 200}, policy.ErrUnauthorized},
		{"fraud buyer", policytest.Fraud.Request(), CreateParams{PropertyID: listing.ID, OfferAmount: 200}, policy.ErrForbidden},
		{"zero offer", policytest.Buyer.Request(), CreateParams{PropertyID: listing.ID}, ErrInvalidOffer},
		{"below range", policytest.Buyer.Request(), CreateParams{PropertyID: listing.ID, OfferAmount: 50}, ErrInvalidOffer},
		{"above range", policytest.Buyer.Request(), CreateParams{PropertyID: listing.ID, OfferAmount: 501}, ErrInvalidOffer},
		{"missing listing", policytest.Buyer.Request(), CreateParams{PropertyID: uuid.NewString(), OfferAmount: 200}, property.ErrNotFound},
		{"own listing", policytest.Agent.Request(), CreateParams{PropertyID: listing.ID, OfferAmount: 200}, ErrSelfBid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req, tc.params)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecide_AgentOrAdminOnly(t *testing.T) {
	svc, repo, _, listing := newTestService()
	ctx := context.Background()
	b := repo.seed(listing, policytest.Buyer.Email)

	for _, who := range []policytest.Subject{policytest.Buyer, policytest.Other} {
		if _, err := svc.Accept(ctx, who.Request(), b.ID); !errors.Is(err, policy.ErrForbidden) {
			t.Fatalf("%s: expected forbidden, got %v", who.Email, err)
		}
	}
	if _, err := svc.Accept(ctx, policy.NewRequest(""), b.ID); !errors.Is(err, policy.ErrUnauthorized) {
		t.Fatalf("anonymous: expected unauthorized, got %v", err)
	}

	got, err := svc.Accept(ctx, policytest.Agent.Request(), b.ID)
	if err != nil {
		t.Fatalf("agent accept: %v", err)
	}
	if got.Status != StatusAccepted || got.DecidedBy == nil || *got.DecidedBy != policytest.Agent.Email {
		t.Fatalf("unexpected decision %+v", got)
	}

	other := repo.seed(listing, policytest.Buyer.Email)
	if _, err := svc.Reject(ctx, policytest.Admin.Request(), other.ID); err != nil {
		t.Fatalf("admin reject: %v", err)
	}
}

func TestDecide_IdempotentAndConflict(t *testing.T) {
	svc, repo, pool, listing := newTestService()
	ctx := context.Background()
	b := repo.seed(listing, policytest.Buyer.Email)
	sibling := repo.seed(listing, policytest.Buyer.Email)

	if _, err := svc.Accept(ctx, policytest.Agent.Request(), b.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	writes := repo.decisions

	again, err := svc.Accept(ctx, policytest.Agent.Request(), b.ID)
	if err != nil || again.Status != StatusAccepted {
		t.Fatalf("repeat accept should be a no-op, got %v %v", again.Status, err)
	}
	if repo.decisions != writes {
		t.Fatalf("repeat accept wrote again")
	}
	if n := len(pool.Last().Execs); n != 0 {
		t.Fatalf("repeat accept emitted %d outbox rows", n)
	}

	_, err = svc.Reject(ctx, policytest.Agent.Request(), b.ID)
	if !errors.Is(err, ErrAlreadyDecided) || apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("reverse decision: expected conflict, got %v", err)
	}

	if repo.bids[sibling.ID].Status != StatusPending {
		t.Fatalf("accepting one bid must not touch siblings")
	}
}

func TestDecide_UnknownAndMalformed(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Accept(ctx, policytest.Admin.Request(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Reject(ctx, policytest.Admin.Request(), "123"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestDecide_AnonymousLearnsNothingAboutID(t *testing.T) {
	svc, repo, pool, listing := newTestService()
	ctx := context.Background()
	placed := repo.seed(listing, policytest.Buyer.Email)

	for _, id := range []string{placed.ID, uuid.NewString(), "123"} {
		if _, err := svc.Accept(ctx, policy.NewRequest(""), id); apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("id %q: expected unauthorized, got %v", id, err)
		}
	}
	if len(pool.Txs) != 0 {
		t.Fatalf("anonymous decisions must not open a transaction")
	}
}

func TestListings_OwnerOrAdmin(t *testing.T) {
	svc, repo, _, listing := newTestService()
	ctx := context.Background()
	repo.seed(listing, policytest.Buyer.Email)

	dangling := listing
	dangling.ID = uuid.NewString()
	repo.seed(dangling, policytest.Buyer.Email)

	views, err := svc.ListForBuyer(ctx, policytest.Buyer.Request(), policytest.Buyer.Email)
	if err != nil || len(views) != 2 {
		t.Fatalf("buyer views = %d, %v", len(views), err)
	}
	var partial int
	for _, v := range views {
		if v.Property == nil {
			partial++
		}
	}
	if partial != 1 {
		t.Fatalf("bid on a missing listing should be a partial view, got %d", partial)
	}

	if _, err := svc.ListForBuyer(ctx, policytest.Other.Request(), policytest.Buyer.Email); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("stranger: expected forbidden, got %v", err)
	}
	if _, err := svc.ListForAgent(ctx, policytest.Buyer.Request(), policytest.Agent.Email); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("buyer reading agent bids: expected forbidden, got %v", err)
	}
	agentViews, err := svc.ListForAgent(ctx, policytest.Agent.Request(), strings.ToUpper(policytest.Agent.Email))
	if err != nil || len(agentViews) != 2 {
		t.Fatalf("agent views = %d, %v", len(agentViews), err)
	}
	if _, err := svc.ListForAgent(ctx, policytest.Admin.Request(), policytest.Agent.Email); err != nil {
		t.Fatalf("admin: %v", err)
	}
}

type fakeRepository struct {
	mu        sync.Mutex
	bids      map[string]Bid
	listings  fakeProperties
	decisions int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{bids: map[string]Bid{}}
}

func (f *fakeRepository) seed(listing property.Property, buyer string) Bid {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := Bid{
		ID:            uuid.NewString(),
		PropertyID:    listing.ID,
		PropertyTitle: listing.Title,
		AgentEmail:    listing.AgentEmail,
		BuyerEmail:    buyer,
		OfferAmount:   listing.PriceMin,
		Status:        StatusPending,
	}
	f.bids[b.ID] = b
	return b
}

func (f *fakeRepository) Create(ctx context.Context, tx pgx.Tx, b Bid) (Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = uuid.NewString()
	f.bids[b.ID] = b
	return b, nil
}

func (f *fakeRepository) Get(ctx context.Context, id string) (Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[id]
	if !ok {
		return Bid{}, ErrNotFound
	}
	return b, nil
}

func (f *fakeRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Bid, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepository) views(match func(Bid) bool) []View {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []View
	for _, b := range f.bids {
		if !match(b) {
			continue
		}
		v := View{Bid: b}
		if p, ok := f.listings[b.PropertyID]; ok {
			v.Property = &Summary{ID: p.ID, Title: p.Title, PriceMin: p.PriceMin, PriceMax: p.PriceMax}
		}
		out = append(out, v)
	}
	return out
}

func (f *fakeRepository) ListByBuyer(ctx context.Context, email string) ([]View, error) {
	return f.views(func(b Bid) bool { return strings.EqualFold(b.BuyerEmail, email) }), nil
}

func (f *fakeRepository) ListByAgent(ctx context.Context, email string) ([]View, error) {
	return f.views(func(b Bid) bool { return strings.EqualFold(b.AgentEmail, email) }), nil
}

func (f *fakeRepository) Decide(ctx context.Context, tx pgx.Tx, id string, status Status, actor string, at time.Time) (Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bids[id]
	if !ok {
		return Bid{}, ErrNotFound
	}
	if b.Status != StatusPending {
		return Bid{}, ErrAlreadyDecided
	}
	b.Status = status
	b.DecidedBy = &actor
	b.DecidedAt = &at
	f.bids[id] = b
	f.decisions++
	return b, nil
}
