package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tiers := map[string]TierLimits{
		"default": {PerCustomerHour: 2, GlobalHour: 3},
	}
	return New(rdb, tiers), mr
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if err := m.Check(ctx, "cust1", "example.com", "default"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckRaisesOnCustomerLimitExceeded(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := m.Check(ctx, "cust1", "example.com", "default"); err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
	}
	err := m.Check(ctx, "cust1", "example.com", "default")
	var exceeded *ErrExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ErrExceeded, got %v", err)
	}
	if exceeded.Scope != "customer" {
		t.Errorf("scope = %q, want customer", exceeded.Scope)
	}
}

func TestCheckRaisesOnGlobalLimitExceeded(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	// different customers, same domain, exhaust the global cap of 3
	for i, cust := range []string{"c1", "c2", "c3"} {
		if err := m.Check(ctx, cust, "example.com", "default"); err != nil {
			t.Fatalf("unexpected error on customer %d: %v", i, err)
		}
	}
	if err := m.Check(ctx, "c4", "example.com", "default"); err == nil {
		t.Fatalf("expected global quota error on the 4th call")
	} else {
		var exceeded *ErrExceeded
		if !errors.As(err, &exceeded) || exceeded.Scope != "global" {
			t.Fatalf("expected global ErrExceeded, got %v", err)
		}
	}
}

func TestGetUsageReturnsZeroForUnseenKeys(t *testing.T) {
	m, _ := newTestManager(t)
	usage, err := m.GetUsage(context.Background(), "custX", "unseen.com", "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.CustomerUsed != 0 || usage.GlobalUsed != 0 {
		t.Errorf("usage = %+v, want zero counts", usage)
	}
}

func TestUnknownTierFallsBackToDefault(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Check(context.Background(), "cust1", "example.com", "nonexistent-tier")
	if err != nil {
		t.Fatalf("unexpected error using fallback tier: %v", err)
	}
}
