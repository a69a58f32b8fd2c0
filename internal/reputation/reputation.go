// Package reputation tracks per-domain bounce and false-positive
// history in Redis and derives a confidence cap from it.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	bounceTTL     = 1 * time.Hour
	falsePosTTL   = 7 * 24 * time.Hour
	degradeTTL    = 1 * time.Hour
	degradeAtFPs  = 10
	capAtBounces1 = 20 // bounces > 20 -> cap 70
	capAtBounces2 = 10 // bounces > 10 -> cap 80
)

// Monitor records bounce and false-positive signals for a domain and
// derives a confidence cap from them. It is fail-open: a Redis error
// yields an uncapped (100, not degraded) result rather than blocking
// verification.
type Monitor struct {
	rdb *redis.Client
}

// New builds a Monitor backed by rdb.
func New(rdb *redis.Client) *Monitor {
	return &Monitor{rdb: rdb}
}

func bounceKey(domain string) string    { return fmt.Sprintf("reputation:bounces:%s", domain) }
func falsePosKey(domain string) string  { return fmt.Sprintf("reputation:fp:%s", domain) }
func degradedKey(domain string) string  { return fmt.Sprintf("reputation:degraded:%s", domain) }

// RecordBounce increments domain's bounce counter with a 1 hour TTL.
func (m *Monitor) RecordBounce(ctx context.Context, domain string) error {
	key := bounceKey(domain)
	if err := m.rdb.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("reputation: incr %s: %w", key, err)
	}
	return m.rdb.Expire(ctx, key, bounceTTL).Err()
}

// RecordFalsePositive increments domain's false-positive counter with
// a 7 day TTL, and degrades the domain once the count reaches 10.
func (m *Monitor) RecordFalsePositive(ctx context.Context, domain string) error {
	key := falsePosKey(domain)
	count, err := m.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("reputation: incr %s: %w", key, err)
	}
	if err := m.rdb.Expire(ctx, key, falsePosTTL).Err(); err != nil {
		return fmt.Errorf("reputation: expire %s: %w", key, err)
	}
	if count >= degradeAtFPs {
		return m.Degrade(ctx, domain, "high_false_positive_rate")
	}
	return nil
}

// Degrade marks domain as degraded for 1 hour.
func (m *Monitor) Degrade(ctx context.Context, domain, reason string) error {
	return m.rdb.Set(ctx, degradedKey(domain), reason, degradeTTL).Err()
}

// IsDegraded reports whether domain currently carries an active
// degrade marker.
func (m *Monitor) IsDegraded(ctx context.Context, domain string) (bool, error) {
	_, err := m.rdb.Get(ctx, degradedKey(domain)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reputation: get %s: %w", degradedKey(domain), err)
	}
	return true, nil
}

func (m *Monitor) bounceCount(ctx context.Context, domain string) (int64, error) {
	v, err := m.rdb.Get(ctx, bounceKey(domain)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reputation: get %s: %w", bounceKey(domain), err)
	}
	return v, nil
}

// ConfidenceCap returns the maximum confidence allowed for domain: 50
// if degraded, else 70/80/100 depending on recent bounce volume. On
// any Redis error it fails open and returns 100 — an
// unreachable reputation store must never block verification.
func (m *Monitor) ConfidenceCap(ctx context.Context, domain string) int {
	degraded, err := m.IsDegraded(ctx, domain)
	if err != nil {
		return 100
	}
	if degraded {
		return 50
	}

	bounces, err := m.bounceCount(ctx, domain)
	if err != nil {
		return 100
	}
	switch {
	case bounces > capAtBounces1:
		return 70
	case bounces > capAtBounces2:
		return 80
	default:
		return 100
	}
}

// Snapshot is a point-in-time view of a domain's reputation state.
type Snapshot struct {
	Domain         string
	Degraded       bool
	Bounces        int64
	FalsePositives int64
	ConfidenceCap  int
}

// GetReputation returns a full snapshot for domain.
func (m *Monitor) GetReputation(ctx context.Context, domain string) (Snapshot, error) {
	degraded, err := m.IsDegraded(ctx, domain)
	if err != nil {
		return Snapshot{}, err
	}
	bounces, err := m.bounceCount(ctx, domain)
	if err != nil {
		return Snapshot{}, err
	}
	fps, err := m.rdb.Get(ctx, falsePosKey(domain)).Int64()
	if errors.Is(err, redis.Nil) {
		fps = 0
	} else if err != nil {
		return Snapshot{}, fmt.Errorf("reputation: get %s: %w", falsePosKey(domain), err)
	}

	return Snapshot{
		Domain:         domain,
		Degraded:       degraded,
		Bounces:        bounces,
		FalsePositives: fps,
		ConfidenceCap:  m.ConfidenceCap(ctx, domain),
	}, nil
}
