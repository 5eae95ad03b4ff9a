package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"dreamkeys/metrics"
)

// CachedRepository decorates a Repository with a Redis cache for standings.
//   - Read path: Redis -> DB fallback -> Redis set
//   - Write path (role, fraud): DB -> Redis set (best effort)
//   - Delete: DB -> Redis del
//
// Redis errors never fail a lookup.
type CachedRepository struct {
	inner   Repository
	rdb     *goredis.Client
	ttl     time.Duration
	keyPref string
}

func NewCachedRepository(inner Repository, rdb *goredis.Client, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		inner:   inner,
		rdb:     rdb,
		ttl:     ttl,
		keyPref: "standing:",
	}
}

func (c *CachedRepository) key(email string) string {
	return c.keyPref + email
}

func (c *CachedRepository) GetStanding(ctx context.Context, email string) (Standing, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, c.key(email)).Bytes()
		switch {
		case err == nil:
			var s Standing
			if jerr := json.Unmarshal(raw, &s); jerr == nil && s.Role.Valid() {
				metrics.RoleCacheLookups.WithLabelValues("hit").Inc()
				return s, nil
			}
			metrics.RoleCacheLookups.WithLabelValues("corrupt").Inc()
		case errors.Is(err, goredis.Nil):
			metrics.RoleCacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.RoleCacheLookups.WithLabelValues("error").Inc()
		}
	}

	s, err := c.inner.GetStanding(ctx, email)
	if err != nil {
		return Standing{}, err
	}
	c.store(ctx, s)
	return s, nil
}

func (c *CachedRepository) UpdateRole(ctx context.Context, userID string, role Role) (User, error) {
	u, err := c.inner.UpdateRole(ctx, userID, role)
	if err != nil {
		return User{}, err
	}
	c.store(ctx, u.Standing())
	return u, nil
}

func (c *CachedRepository) MarkFraud(ctx context.Context, userID string) (User, error) {
	u, err := c.inner.MarkFraud(ctx, userID)
	if err != nil {
		return User{}, err
	}
	c.store(ctx, u.Standing())
	return u, nil
}

func (c *CachedRepository) DeleteUser(ctx context.Context, userID string) (User, error) {
	u, err := c.inner.DeleteUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if c.rdb != nil {
		_ = c.rdb.Del(ctx, c.key(u.Email)).Err()
	}
	return u, nil
}

func (c *CachedRepository) store(ctx context.Context, s Standing) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, c.key(s.Email), raw, c.ttl).Err()
}

func (c *CachedRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	return c.inner.CreateUser(ctx, params)
}
func (c *CachedRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return c.inner.GetUserByEmail(ctx, email)
}
func (c *CachedRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	return c.inner.GetUserByID(ctx, userID)
}
func (c *CachedRepository) ListUsers(ctx context.Context) ([]User, error) {
	return c.inner.ListUsers(ctx)
}
func (c *CachedRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	return c.inner.CountByRole(ctx, role)
}
