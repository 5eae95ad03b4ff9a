// Package actors drives the marketplace services concurrently for the stress
// test. Domain rejections and dropped connections are expected under
// contention; an actor only fails when a service reports success with a
// result that contradicts the request.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"dreamkeys/apperr"
	"dreamkeys/bid"
	"dreamkeys/outbox"
	"dreamkeys/policy/policytest"
	"dreamkeys/property"
)

// Listings is the shared set of property ids the actors fight over.
type Listings struct {
	mu  sync.RWMutex
	ids []string
}

func NewListings(ids ...string) *Listings {
	return &Listings{ids: ids}
}

func (l *Listings) Pick() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.ids) == 0 {
		return ""
	}
	return l.ids[rand.Intn(len(l.ids))]
}

func (l *Listings) Add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

// Bids records placed bid ids for the deciders.
type Bids struct {
	mu  sync.Mutex
	ids []string
}

func (b *Bids) Add(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, id)
}

func (b *Bids) Pick() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ids) == 0 {
		return ""
	}
	return b.ids[rand.Intn(len(b.ids))]
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pause(min, spread int) {
	time.Sleep(time.Duration(min+rand.Intn(spread)) * time.Millisecond)
}

// tolerated reports whether err is a domain rejection or a transient
// infrastructure failure. Every actor acts within its rights, so
// authorization denials are never tolerated.
func tolerated(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthorized, apperr.KindForbidden:
		return false
	}
	return true
}

// Verifier issues racing verification decisions. Half of them are
// conditional on the listing still being pending.
func Verifier(ctx context.Context, props *property.Service, listings *Listings, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := listings.Pick()
		outcome := property.StatusVerified
		if rand.Intn(3) == 0 {
			outcome = property.StatusRejected
		}
		var opts property.VerifyOptions
		if rand.Intn(2) == 0 {
			pending := property.StatusPending
			opts.Expected = &pending
		}

		p, err := props.Verify(ctx, policytest.Admin.Request(), id, outcome, opts)
		switch {
		case err == nil:
			if p.VerificationStatus != outcome || p.VerifiedAt == nil {
				return fmt.Errorf("verify %s: got %s (verified_at=%v), want %s", id, p.VerificationStatus, p.VerifiedAt, outcome)
			}
		case !tolerated(err):
			return fmt.Errorf("verify %s: %w", id, err)
		}
		pause(20, 40)
	}
}

// Advertiser toggles the advertised flag on random listings.
func Advertiser(ctx context.Context, props *property.Service, listings *Listings, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := listings.Pick()
		on := rand.Intn(2) == 0
		p, err := props.SetAdvertised(ctx, policytest.Admin.Request(), id, on)
		switch {
		case err == nil:
			if p.IsAdvertised != on {
				return fmt.Errorf("advertise %s: flag %v, want %v", id, p.IsAdvertised, on)
			}
		case errors.Is(err, property.ErrNotVerified):
		case !tolerated(err):
			return fmt.Errorf("advertise %s: %w", id, err)
		}
		pause(30, 50)
	}
}

// Bidder places in-range bids as the buyer.
func Bidder(ctx context.Context, props *property.Service, bids *bid.Service, listings *Listings, placed *Bids, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := listings.Pick()
		p, err := props.Get(ctx, id)
		if err != nil {
			if !tolerated(err) {
				return err
			}
			pause(10, 20)
			continue
		}
		offer := p.PriceMin + rand.Int63n(p.PriceMax-p.PriceMin+1)
		if offer <= 0 {
			offer = 1
		}
		b, err := bids.Create(ctx, policytest.Buyer.Request(), bid.CreateParams{PropertyID: id, OfferAmount: offer})
		switch {
		case err == nil:
			if b.Status != bid.StatusPending || b.BuyerEmail != policytest.Buyer.Email {
				return fmt.Errorf("bid %s: unexpected %+v", b.ID, b)
			}
			placed.Add(b.ID)
		case !tolerated(err):
			return fmt.Errorf("bid on %s: %w", id, err)
		}
		pause(10, 30)
	}
}

// Decider races accept and reject on the same bids. A successful call must
// return the requested status; the losing side sees a conflict.
func Decider(ctx context.Context, bids *bid.Service, placed *Bids, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := placed.Pick()
		if id == "" {
			pause(10, 10)
			continue
		}
		decide, want := bids.Accept, bid.StatusAccepted
		if rand.Intn(2) == 0 {
			decide, want = bids.Reject, bid.StatusRejected
		}
		actor := policytest.Agent
		if rand.Intn(4) == 0 {
			actor = policytest.Admin
		}
		b, err := decide(ctx, actor.Request(), id)
		switch {
		case err == nil:
			if b.Status != want || b.DecidedAt == nil {
				return fmt.Errorf("decide %s: got %s, want %s", id, b.Status, want)
			}
		case errors.Is(err, bid.ErrAlreadyDecided):
		case !tolerated(err):
			return fmt.Errorf("decide %s: %w", id, err)
		}
		pause(15, 25)
	}
}

// Lister keeps creating and occasionally deleting listings so bids outlive
// the listings they were placed on.
func Lister(ctx context.Context, props *property.Service, listings *Listings, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if rand.Intn(4) == 0 {
			if _, err := props.Delete(ctx, policytest.Agent.Request(), listings.Pick()); !tolerated(err) {
				return err
			}
		} else {
			p, err := props.Create(ctx, policytest.Agent.Request(), property.CreateParams{
				Title:    fmt.Sprintf("Stress %d", rand.Int63()),
				Location: "Dhaka",
				PriceMin: 100,
				PriceMax: 1000,
			})
			if err == nil {
				listings.Add(p.ID)
			} else if !tolerated(err) {
				return err
			}
		}
		pause(100, 100)
	}
}

// FlakyPublisher fails one publish in failEvery.
type FlakyPublisher struct {
	failEvery int
	mu        sync.Mutex
	published int
}

func NewFlakyPublisher(failEvery int) *FlakyPublisher {
	return &FlakyPublisher{failEvery: failEvery}
}

func (p *FlakyPublisher) Publish(_ context.Context, _ string, _ []byte) error {
	if p.failEvery > 0 && rand.Intn(p.failEvery) == 0 {
		return errors.New("broker unavailable")
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

func (p *FlakyPublisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// OutboxWorker drains the outbox through relay until stopped.
func OutboxWorker(ctx context.Context, relay *outbox.Relay, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		// Batch failures roll back and are retried on the next pass.
		_, _ = relay.ProcessBatch(ctx)
		pause(50, 50)
	}
}
