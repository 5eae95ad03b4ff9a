package property

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
	"dreamkeys/auth"
	"dreamkeys/db/dbtest"
	"dreamkeys/outbox"
	"dreamkeys/policy"
	"dreamkeys/policy/policytest"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time         { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService() (*Service, *fakeRepository, *dbtest.Pool, *policytest.Directory, *clock) {
	authz, dir := policytest.New()
	repo := newFakeRepository()
	pool := &dbtest.Pool{}
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(pool, repo, authz, nil).WithClock(clk.now)
	return svc, repo, pool, dir, clk
}

func validParams() CreateParams {
	return CreateParams{Title: "Lake House", Location: "Dhaka", PriceMin: 100, PriceMax: 200}
}

func lastTopic(t *testing.T, pool *dbtest.Pool) string {
	t.Helper()
	tx := pool.Last()
	if tx == nil || len(tx.Execs) == 0 {
		t.Fatalf("expected an outbox write")
	}
	return tx.Execs[len(tx.Execs)-1].Args[0].(string)
}

func TestCreate_StartsPendingAndOwnedByCaller(t *testing.T) {
	svc, _, pool, _, _ := newTestService()

	p, err := svc.Create(context.Background(), policytest.Agent.Request(), validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.VerificationStatus != StatusPending || p.IsAdvertised {
		t.Fatalf("expected pending and not advertised, got %s advertised=%v", p.VerificationStatus, p.IsAdvertised)
	}
	if p.AgentEmail != policytest.Agent.Email {
		t.Fatalf("owner = %q, want %q", p.AgentEmail, policytest.Agent.Email)
	}
	if pool.Committed() != 1 {
		t.Fatalf("expected one committed tx, got %d", pool.Committed())
	}
	if got := lastTopic(t, pool); got != outbox.TopicPropertyCreated {
		t.Fatalf("topic = %q", got)
	}
}

func TestCreate_Denials(t *testing.T) {
	cases := []struct {
		name string
		req  *policy.Request
		kind apperr.Kind
	}{
		{"anonymous", policy.NewRequest(""), apperr.KindUnauthorized},
		{"bad token", policy.NewRequest("forged"), apperr.KindUnauthorized},
		{"plain user", policytest.Buyer.Request(), apperr.KindForbidden},
		{"admin", policytest.Admin.Request(), apperr.KindForbidden},
		{"fraud agent", policytest.Fraud.Request(), apperr.KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, pool, _, _ := newTestService()
			_, err := svc.Create(context.Background(), tc.req, validParams())
			if got := apperr.KindOf(err); got != tc.kind {
				t.Fatalf("kind = %s, want %s (err %v)", got, tc.kind, err)
			}
			if len(repo.items) != 0 || len(pool.Txs) != 0 {
				t.Fatalf("denied create must not touch storage")
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	bad := []CreateParams{
		{Location: "x", PriceMin: 1, PriceMax: 2},
		{Title: "x", PriceMin: 1, PriceMax: 2},
		{Title: "x", Location: "y"},
		{Title: "x", Location: "y", PriceMin: 300, PriceMax: 200},
		{Title: "x", Location: "y", PriceMin: -1, PriceMax: 200},
	}
	for i, params := range bad {
		_, err := svc.Create(ctx, policytest.Agent.Request(), params)
		if !errors.Is(err, ErrInvalidListing) {
			t.Fatalf("case %d: expected ErrInvalidListing, got %v", i, err)
		}
	}
}

func TestVerify_AdminOnly(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Agent.Email, StatusPending)

	for _, who := range []policytest.Subject{policytest.Agent, policytest.Buyer} {
		_, err := svc.Verify(ctx, who.Request(), p.ID, StatusVerified, VerifyOptions{})
		if !errors.Is(err, policy.ErrForbidden) {
			t.Fatalf("%s: expected forbidden, got %v", who.Email, err)
		}
	}
	if _, err := svc.Verify(ctx, policy.NewRequest(""), p.ID, StatusVerified, VerifyOptions{}); !errors.Is(err, policy.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if repo.items[p.ID].VerificationStatus != StatusPending {
		t.Fatalf("denied verify changed status")
	}

	got, err := svc.Verify(ctx, policytest.Admin.Request(), p.ID, StatusVerified, VerifyOptions{})
	if err != nil {
		t.Fatalf("admin verify: %v", err)
	}
	if got.VerificationStatus != StatusVerified || got.VerifiedAt == nil {
		t.Fatalf("expected verified with timestamp, got %+v", got)
	}
}

func TestVerify_RoleComesFromDirectory(t *testing.T) {
	svc, repo, _, dir, _ := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Other.Email, StatusPending)

	if _, err := svc.Verify(ctx, policytest.Agent.Request(), p.ID, StatusRejected, VerifyOptions{}); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("expected forbidden before promotion, got %v", err)
	}
	dir.SetRole(policytest.Agent.Email, auth.RoleAdmin)
	if _, err := svc.Verify(ctx, policytest.Agent.Request(), p.ID, StatusRejected, VerifyOptions{}); err != nil {
		t.Fatalf("expected allow after promotion, got %v", err)
	}
}

func TestVerify_InvalidOutcomeAndID(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Agent.Email, StatusPending)

	if _, err := svc.Verify(ctx, policytest.Admin.Request(), p.ID, StatusPending, VerifyOptions{}); !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
	if _, err := svc.Verify(ctx, policytest.Admin.Request(), "not-a-uuid", StatusVerified, VerifyOptions{}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := svc.Verify(ctx, policytest.Admin.Request(), uuid.NewString(), StatusVerified, VerifyOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := ParseOutcome("Verified"); err != nil {
		t.Fatalf("ParseOutcome should accept case-insensitive outcome: %v", err)
	}
	if _, err := ParseOutcome("pending"); !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("ParseOutcome(pending) = %v", err)
	}
}

func TestVerify_LastWriteWinsAndRestamps(t *testing.T) {
	svc, repo, _, _, clk := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Agent.Email, StatusPending)

	first, err := svc.Verify(ctx, policytest.Admin.Request(), p.ID, StatusRejected, VerifyOptions{})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	clk.advance(time.Minute)
	second, err := svc.Verify(ctx, policytest.Admin.Request(), p.ID, StatusRejected, VerifyOptions{})
	if err != nil {
		t.Fatalf("re-reject: %v", err)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("re-verify should re-stamp updated_at")
	}
	third, err := svc.Verify(ctx, policytest.Admin.Request(), p.ID, StatusVerified, VerifyOptions{})
	if err != nil || third.VerificationStatus != StatusVerified {
		t.Fatalf("rejected -> verified should be allowed, got %v %v", third.VerificationStatus, err)
	}
}

func TestVerify_ConditionalConflict(t *testing.T) {
	svc, repo, pool, _, _ := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Agent.Email, StatusVerified)

	expected := StatusPending
	_, err := svc.Verify(ctx, policytest.Admin.Request(), p.ID, StatusRejected, VerifyOptions{Expected: &expected})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict kind")
	}
	if pool.Committed() != 0 || !pool.Last().Rolled {
		t.Fatalf("conflict must roll back")
	}
	if repo.items[p.ID].VerificationStatus != StatusVerified {
		t.Fatalf("status changed despite conflict")
	}

	expected = StatusVerified
	if _, err := svc.Verify(ctx, policytest.Admin.Request(), p.ID, StatusRejected, VerifyOptions{Expected: &expected}); err != nil {
		t.Fatalf("matching expectation: %v", err)
	}
}

func TestSetAdvertised_StampsOnlyWhenTurningOn(t *testing.T) {
	svc, repo, pool, _, clk := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Agent.Email, StatusPending)
	before := repo.items[p.ID].UpdatedAt

	clk.advance(time.Hour)
	on, err := svc.SetAdvertised(ctx, policytest.Admin.Request(), p.ID, true)
	if err != nil {
		t.Fatalf("advertise: %v", err)
	}
	if !on.IsAdvertised || !on.UpdatedAt.After(before) {
		t.Fatalf("advertise should set flag and stamp updated_at: %+v", on)
	}
	if got := lastTopic(t, pool); got != outbox.TopicPropertyAdvertisingChanged {
		t.Fatalf("topic = %q", got)
	}

	clk.advance(time.Hour)
	off, err := svc.SetAdvertised(ctx, policytest.Admin.Request(), p.ID, false)
	if err != nil {
		t.Fatalf("remove advertise: %v", err)
	}
	if off.IsAdvertised || !off.UpdatedAt.Equal(on.UpdatedAt) {
		t.Fatalf("removing advertisement must leave updated_at alone: %+v", off)
	}

	if _, err := svc.SetAdvertised(ctx, policytest.Agent.Request(), p.ID, true); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("owner agent must not advertise, got %v", err)
	}
}

func TestSetAdvertised_StrictModeRequiresVerified(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	svc.WithVerifiedAdvertising(true)
	ctx := context.Background()

	pending := repo.seed(policytest.Agent.Email, StatusPending)
	if _, err := svc.SetAdvertised(ctx, policytest.Admin.Request(), pending.ID, true); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
	if _, err := svc.SetAdvertised(ctx, policytest.Admin.Request(), pending.ID, false); err != nil {
		t.Fatalf("unadvertising is always allowed: %v", err)
	}

	verified := repo.seed(policytest.Agent.Email, StatusVerified)
	if _, err := svc.SetAdvertised(ctx, policytest.Admin.Request(), verified.ID, true); err != nil {
		t.Fatalf("verified listing: %v", err)
	}
}

func TestDelete_OwnerOrAdmin(t *testing.T) {
	svc, repo, pool, _, _ := newTestService()
	ctx := context.Background()

	p := repo.seed(policytest.Agent.Email, StatusPending)
	if _, err := svc.Delete(ctx, policytest.Other.Request(), p.ID); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("non-owner agent: expected forbidden, got %v", err)
	}
	if _, err := svc.Delete(ctx, policytest.Agent.Request(), p.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, ok := repo.items[p.ID]; ok {
		t.Fatalf("property still present")
	}
	if got := lastTopic(t, pool); got != outbox.TopicPropertyDeleted {
		t.Fatalf("topic = %q", got)
	}

	q := repo.seed(policytest.Agent.Email, StatusVerified)
	if _, err := svc.Delete(ctx, policytest.Admin.Request(), q.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := svc.Delete(ctx, policytest.Admin.Request(), q.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
	if _, err := svc.Delete(ctx, policytest.Admin.Request(), "nope"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestDeleteAllByAgent(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	repo.seed(policytest.Agent.Email, StatusPending)
	repo.seed(strings.ToUpper(policytest.Agent.Email), StatusVerified)
	keep := repo.seed(policytest.Other.Email, StatusPending)

	if _, err := svc.DeleteAllByAgent(ctx, policytest.Agent.Request(), policytest.Agent.Email); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("non-admin: expected forbidden, got %v", err)
	}

	n, err := svc.DeleteAllByAgent(ctx, policytest.Admin.Request(), policytest.Agent.Email)
	if err != nil || n != 2 {
		t.Fatalf("purge = %d, %v; want 2", n, err)
	}
	if _, ok := repo.items[keep.ID]; !ok || len(repo.items) != 1 {
		t.Fatalf("other agent's listing must survive")
	}

	_, err = svc.DeleteAllByAgent(ctx, policytest.Admin.Request(), policytest.Agent.Email)
	if !errors.Is(err, ErrNoAgentProperties) || apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("empty purge: expected ErrNoAgentProperties, got %v", err)
	}
}

func TestReport(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Agent.Email, StatusVerified)

	params := ReportParams{ReporterName: "Bea", Description: "looks fake"}
	if _, err := svc.Report(ctx, policy.NewRequest(""), p.ID, params); !errors.Is(err, policy.ErrUnauthorized) {
		t.Fatalf("anonymous report: expected unauthorized, got %v", err)
	}
	if _, err := svc.Report(ctx, policytest.Buyer.Request(), uuid.NewString(), params); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing property: expected not found, got %v", err)
	}

	rep, err := svc.Report(ctx, policytest.Buyer.Request(), p.ID, params)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.ReporterEmail != policytest.Buyer.Email || rep.PropertyTitle != p.Title {
		t.Fatalf("unexpected report %+v", rep)
	}
	if repo.items[p.ID].VerificationStatus != StatusVerified {
		t.Fatalf("reporting must not change status")
	}

	if _, err := svc.ListReports(ctx, policytest.Buyer.Request()); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("non-admin list reports: %v", err)
	}
	reports, err := svc.ListReports(ctx, policytest.Admin.Request())
	if err != nil || len(reports) != 1 {
		t.Fatalf("list reports = %d, %v", len(reports), err)
	}
}

func TestOwnerGatedOps_AuthenticateBeforeLookup(t *testing.T) {
	svc, repo, pool, _, _ := newTestService()
	ctx := context.Background()
	existing := repo.seed(policytest.Agent.Email, StatusPending)
	title := "Renamed"

	for _, id := range []string{existing.ID, uuid.NewString(), "not-a-uuid"} {
		if _, err := svc.Delete(ctx, policy.NewRequest(""), id); apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("delete %q: expected unauthorized, got %v", id, err)
		}
		if _, err := svc.Update(ctx, policy.NewRequest("forged"), id, UpdateParams{Title: &title}); apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("update %q: expected unauthorized, got %v", id, err)
		}
	}
	if len(pool.Txs) != 0 || repo.items[existing.ID].Title != existing.Title {
		t.Fatalf("anonymous calls must not touch storage")
	}

	if _, err := svc.Delete(ctx, policytest.Other.Request(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("authenticated caller on missing id: expected not found, got %v", err)
	}
}

func TestScenario_ListingLifecycle(t *testing.T) {
	svc, _, _, _, clk := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, policytest.Agent.Request(), validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.VerificationStatus != StatusPending || created.IsAdvertised {
		t.Fatalf("new listing: %+v", created)
	}

	clk.advance(time.Minute)
	verified, err := svc.Verify(ctx, policytest.Admin.Request(), created.ID, StatusVerified, VerifyOptions{})
	if err != nil || verified.VerificationStatus != StatusVerified {
		t.Fatalf("verify: %+v, %v", verified, err)
	}

	clk.advance(time.Minute)
	advertised, err := svc.SetAdvertised(ctx, policytest.Admin.Request(), created.ID, true)
	if err != nil {
		t.Fatalf("advertise: %v", err)
	}
	if !advertised.IsAdvertised || !advertised.UpdatedAt.Equal(clk.now().UTC()) {
		t.Fatalf("advertise must set the flag and stamp updated_at: %+v", advertised)
	}

	if _, err := svc.Delete(ctx, policytest.Buyer.Request(), created.ID); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("buyer delete: expected forbidden, got %v", err)
	}
	if _, err := svc.Delete(ctx, policytest.Admin.Request(), created.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}

	if _, err := svc.Verify(ctx, policytest.Admin.Request(), created.ID, StatusRejected, VerifyOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("verify after delete: expected not found, got %v", err)
	}
	if _, err := svc.SetAdvertised(ctx, policytest.Admin.Request(), created.ID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("advertise after delete: expected not found, got %v", err)
	}
}

func TestUpdate_KeepsOwnerAndStatus(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()
	p := repo.seed(policytest.Agent.Email, StatusVerified)

	title := "Renamed"
	got, err := svc.Update(ctx, policytest.Agent.Request(), p.ID, UpdateParams{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != title || got.AgentEmail != p.AgentEmail || got.VerificationStatus != StatusVerified {
		t.Fatalf("unexpected update result %+v", got)
	}

	low := int64(500)
	if _, err := svc.Update(ctx, policytest.Agent.Request(), p.ID, UpdateParams{PriceMin: &low}); !errors.Is(err, ErrInvalidListing) {
		t.Fatalf("min above stored max: expected ErrInvalidListing, got %v", err)
	}
	if _, err := svc.Update(ctx, policytest.Other.Request(), p.ID, UpdateParams{Title: &title}); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("non-owner: expected forbidden, got %v", err)
	}
	if _, err := svc.Update(ctx, policytest.Agent.Request(), p.ID, UpdateParams{}); !errors.Is(err, ErrInvalidListing) {
		t.Fatalf("empty update: expected ErrInvalidListing, got %v", err)
	}
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	repo.seed(policytest.Agent.Email, StatusPending)

	if _, err := svc.List(context.Background(), ListFilter{Status: "sold"}); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	list, err := svc.List(context.Background(), ListFilter{AgentEmail: policytest.Agent.Email})
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %d, %v", len(list), err)
	}
}

type fakeRepository struct {
	mu      sync.Mutex
	items   map[string]Property
	reports []Report
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{items: map[string]Property{}}
}

func (f *fakeRepository) seed(agent string, status Status) Property {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Property{
		ID:                 uuid.NewString(),
		AgentEmail:         agent,
		Title:              "Seeded",
		Location:           "Somewhere",
		PriceMin:           100,
		PriceMax:           200,
		VerificationStatus: status,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}
	f.items[p.ID] = p
	return p
}

func (f *fakeRepository) Create(ctx context.Context, tx pgx.Tx, p Property) (Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.NewString()
	f.items[p.ID] = p
	return p, nil
}

func (f *fakeRepository) Get(ctx context.Context, id string) (Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return Property{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Property, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepository) List(ctx context.Context, filter ListFilter) ([]Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Property
	for _, p := range f.items {
		if filter.AgentEmail != "" && !strings.EqualFold(p.AgentEmail, filter.AgentEmail) {
			continue
		}
		if filter.Status != "" && p.VerificationStatus != filter.Status {
			continue
		}
		if filter.Advertised != nil && p.IsAdvertised != *filter.Advertised {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepository) mutate(id string, fn func(p *Property)) (Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return Property{}, ErrNotFound
	}
	fn(&p)
	f.items[id] = p
	return p, nil
}

func (f *fakeRepository) Update(ctx context.Context, tx pgx.Tx, id string, params UpdateParams, at time.Time) (Property, error) {
	return f.mutate(id, func(p *Property) {
		if params.Title != nil {
			p.Title = *params.Title
		}
		if params.Location != nil {
			p.Location = *params.Location
		}
		if params.ImageURL != nil {
			p.ImageURL = *params.ImageURL
		}
		if params.PriceMin != nil {
			p.PriceMin = *params.PriceMin
		}
		if params.PriceMax != nil {
			p.PriceMax = *params.PriceMax
		}
		if params.Description != nil {
			p.Description = *params.Description
		}
		p.UpdatedAt = at
	})
}

func (f *fakeRepository) SetVerification(ctx context.Context, tx pgx.Tx, id string, status Status, at time.Time) (Property, error) {
	return f.mutate(id, func(p *Property) {
		p.VerificationStatus = status
		stamp := at
		p.VerifiedAt = &stamp
		p.UpdatedAt = at
	})
}

func (f *fakeRepository) SetAdvertised(ctx context.Context, tx pgx.Tx, id string, advertised bool, at time.Time) (Property, error) {
	return f.mutate(id, func(p *Property) {
		p.IsAdvertised = advertised
		if advertised {
			p.UpdatedAt = at
		}
	})
}

func (f *fakeRepository) Delete(ctx context.Context, tx pgx.Tx, id string) (Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return Property{}, ErrNotFound
	}
	delete(f.items, id)
	return p, nil
}

func (f *fakeRepository) DeleteByAgent(ctx context.Context, tx pgx.Tx, agentEmail string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, p := range f.items {
		if strings.EqualFold(p.AgentEmail, agentEmail) {
			delete(f.items, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) CreateReport(ctx context.Context, tx pgx.Tx, r Report) (Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = uuid.NewString()
	f.reports = append(f.reports, r)
	return r, nil
}

func (f *fakeRepository) ListReports(ctx context.Context) ([]Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Report(nil), f.reports...), nil
}
