// Package iphealth tracks bounce counts per (egress IP, domain) pair in
// Redis and blocks an IP from a domain once it bounces too often. This is
// distinct from internal/reputation, which tracks domain-level receiving
// behavior rather than the health of the sending IPs rotating through
// internal/proxy.
package iphealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	bounceTTL      = time.Hour
	blockTTL       = time.Hour
	blockThreshold = 5
)

// Monitor is safe to use as a nil *Monitor — every method degrades to a
// no-op (MarkBounce, Block) or a permissive default (IsBlocked false,
// GetHealth healthy) so callers don't need to special-case a missing
// Redis connection.
type Monitor struct {
	rdb *redis.Client
}

// New builds a Monitor backed by rdb.
func New(rdb *redis.Client) *Monitor {
	return &Monitor{rdb: rdb}
}

func bounceKey(ip, domain string) string {
	return fmt.Sprintf("ip:bounces:%s:%s", ip, domain)
}

func blockKey(ip, domain string) string {
	return fmt.Sprintf("ip:blocked:%s:%s", ip, domain)
}

// MarkBounce records a bounce from ip against domain and blocks the pair
// once blockThreshold is reached within the last hour.
func (m *Monitor) MarkBounce(ctx context.Context, ip, domain string) error {
	if m == nil || m.rdb == nil || ip == "" {
		return nil
	}

	key := bounceKey(ip, domain)
	count, err := m.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("iphealth: incr bounce: %w", err)
	}
	if count == 1 {
		if err := m.rdb.Expire(ctx, key, bounceTTL).Err(); err != nil {
			return fmt.Errorf("iphealth: set bounce ttl: %w", err)
		}
	}

	if count >= blockThreshold {
		return m.Block(ctx, ip, domain, "too_many_bounces")
	}
	return nil
}

// Block marks ip as blocked against domain for blockTTL.
func (m *Monitor) Block(ctx context.Context, ip, domain, reason string) error {
	if m == nil || m.rdb == nil {
		return nil
	}
	if err := m.rdb.Set(ctx, blockKey(ip, domain), reason, blockTTL).Err(); err != nil {
		return fmt.Errorf("iphealth: block: %w", err)
	}
	return nil
}

// IsBlocked reports whether ip is currently blocked against domain. It
// fails open: a Redis error or a nil Monitor is treated as "not blocked"
// so a degraded health store cannot itself stall proxy rotation.
func (m *Monitor) IsBlocked(ctx context.Context, ip, domain string) bool {
	if m == nil || m.rdb == nil || ip == "" {
		return false
	}
	n, err := m.rdb.Exists(ctx, blockKey(ip, domain)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Health is the point-in-time status of one (ip, domain) pair.
type Health struct {
	IP          string
	Domain      string
	Bounces     int64
	Blocked     bool
	HealthScore int
}

// GetHealth reports bounce count, block status and a 0-100 health score
// (100 minus 15 per bounce, floored at 0) for ip against domain.
func (m *Monitor) GetHealth(ctx context.Context, ip, domain string) (Health, error) {
	if m == nil || m.rdb == nil {
		return Health{IP: ip, Domain: domain, HealthScore: 100}, nil
	}

	bounces, err := m.rdb.Get(ctx, bounceKey(ip, domain)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Health{}, fmt.Errorf("iphealth: get bounces: %w", err)
	}

	score := 100 - int(bounces)*15
	if score < 0 {
		score = 0
	}

	return Health{
		IP:          ip,
		Domain:      domain,
		Bounces:     bounces,
		Blocked:     m.IsBlocked(ctx, ip, domain),
		HealthScore: score,
	}, nil
}
