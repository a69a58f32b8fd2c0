package proxy

import (
	"context"
	"testing"

	"mailvetter/internal/iphealth"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestHealth(t *testing.T) *iphealth.Monitor {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return iphealth.New(rdb)
}

func TestNextForDomainIsStickyPerDomain(t *testing.T) {
	list := []string{
		"http://1.1.1.1:8000",
		"http://2.2.2.2:8000",
		"http://3.3.3.3:8000",
	}
	if err := Init(list, 0, false, nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx := context.Background()
	first := Global.NextForDomain(ctx, "example.com")
	for i := 0; i < 5; i++ {
		p := Global.NextForDomain(ctx, "example.com")
		if p.Host != first.Host {
			t.Errorf("NextForDomain(%q) = %s, want sticky %s", "example.com", p.Host, first.Host)
		}
	}

	// a different domain is free to hash to a different proxy, but must
	// itself be sticky across repeated calls.
	other := Global.NextForDomain(ctx, "other.example")
	for i := 0; i < 5; i++ {
		p := Global.NextForDomain(ctx, "other.example")
		if p.Host != other.Host {
			t.Errorf("NextForDomain(%q) = %s, want sticky %s", "other.example", p.Host, other.Host)
		}
	}
}

func TestNextForDomainSkipsBlockedIP(t *testing.T) {
	list := []string{
		"http://1.1.1.1:8000",
		"http://2.2.2.2:8000",
		"http://3.3.3.3:8000",
	}
	health := newTestHealth(t)
	if err := Init(list, 0, false, health); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx := context.Background()
	sticky := Global.NextForDomain(ctx, "example.com")
	health.Block(ctx, sticky.Hostname(), "example.com", "test")

	p := Global.NextForDomain(ctx, "example.com")
	if p.Host == sticky.Host {
		t.Errorf("NextForDomain should have skipped blocked proxy %s", sticky.Host)
	}
}

func TestNextForDomainFailsOpenWhenAllBlocked(t *testing.T) {
	list := []string{
		"http://1.1.1.1:8000",
		"http://2.2.2.2:8000",
	}
	health := newTestHealth(t)
	if err := Init(list, 0, false, health); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx := context.Background()
	for _, p := range Global.proxies {
		health.Block(ctx, p.Hostname(), "example.com", "test")
	}

	if p := Global.NextForDomain(ctx, "example.com"); p == nil {
		t.Error("NextForDomain should fail open and return a proxy even when all are blocked")
	}
}
