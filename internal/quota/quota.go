// Package quota enforces dual-scoped rolling-hour request quotas
// (per-customer and global, per domain) backed by Redis.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const window = time.Hour

// ErrExceeded is returned by Check when a quota has been exceeded.
// Scope is "customer" or "global"; ResetIn is the TTL remaining on the
// backing counter, or -1 if it could not be determined.
type ErrExceeded struct {
	Scope   string
	Limit   int
	Used    int64
	ResetIn time.Duration
}

func (e *ErrExceeded) Error() string {
	return fmt.Sprintf("%s domain quota exceeded: used=%d limit=%d", e.Scope, e.Used, e.Limit)
}

// TierLimits is the per-customer and global hourly cap for a pricing tier.
type TierLimits struct {
	PerCustomerHour int
	GlobalHour      int
}

// Manager enforces TierLimits against Redis-backed rolling-hour counters.
type Manager struct {
	rdb    *redis.Client
	tiers  map[string]TierLimits
	fallback TierLimits
}

// New builds a Manager. tiers must contain a "default" entry; it is
// used as both the fallback tier and the tier for unrecognized names.
func New(rdb *redis.Client, tiers map[string]TierLimits) *Manager {
	return &Manager{rdb: rdb, tiers: tiers, fallback: tiers["default"]}
}

func (m *Manager) limitsFor(tier string) TierLimits {
	if l, ok := m.tiers[tier]; ok {
		return l
	}
	return m.fallback
}

// Check increments and checks the per-customer and global counters for
// domain under tier. It is fail-closed: any Redis error is returned as a
// plain wrapped error (not *ErrExceeded, so it carries no reset_in)
// rather than silently letting the request through.
func (m *Manager) Check(ctx context.Context, customerID, domain, tier string) error {
	limits := m.limitsFor(tier)

	custKey := fmt.Sprintf("quota:cust:%s:%s", customerID, domain)
	if err := m.checkScope(ctx, "customer", custKey, limits.PerCustomerHour); err != nil {
		return err
	}

	globKey := fmt.Sprintf("quota:global:%s", domain)
	if err := m.checkScope(ctx, "global", globKey, limits.GlobalHour); err != nil {
		return err
	}

	return nil
}

func (m *Manager) checkScope(ctx context.Context, scope, key string, limit int) error {
	count, err := m.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("quota: incr %s: %w", key, err)
	}
	if count == 1 {
		if err := m.rdb.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("quota: expire %s: %w", key, err)
		}
	}

	if int(count) > limit {
		resetIn := time.Duration(-1)
		if ttl, err := m.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			resetIn = ttl
		}
		return &ErrExceeded{Scope: scope, Limit: limit, Used: count, ResetIn: resetIn}
	}
	return nil
}

// Usage is a point-in-time snapshot of quota consumption for a
// customer+domain pair.
type Usage struct {
	CustomerUsed    int64
	CustomerLimit   int
	GlobalUsed      int64
	GlobalLimit     int
	CustomerResetIn time.Duration
	GlobalResetIn   time.Duration
}

// GetUsage returns the current counters without incrementing them.
func (m *Manager) GetUsage(ctx context.Context, customerID, domain, tier string) (Usage, error) {
	limits := m.limitsFor(tier)
	custKey := fmt.Sprintf("quota:cust:%s:%s", customerID, domain)
	globKey := fmt.Sprintf("quota:global:%s", domain)

	custUsed, err := m.getCount(ctx, custKey)
	if err != nil {
		return Usage{}, err
	}
	globUsed, err := m.getCount(ctx, globKey)
	if err != nil {
		return Usage{}, err
	}

	custTTL, _ := m.rdb.TTL(ctx, custKey).Result()
	globTTL, _ := m.rdb.TTL(ctx, globKey).Result()

	return Usage{
		CustomerUsed:    custUsed,
		CustomerLimit:   limits.PerCustomerHour,
		GlobalUsed:      globUsed,
		GlobalLimit:     limits.GlobalHour,
		CustomerResetIn: custTTL,
		GlobalResetIn:   globTTL,
	}, nil
}

func (m *Manager) getCount(ctx context.Context, key string) (int64, error) {
	v, err := m.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: get %s: %w", key, err)
	}
	return v, nil
}
