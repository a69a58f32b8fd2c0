package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailvetter/internal/breaker"
	"mailvetter/internal/classify"
	"mailvetter/internal/dnssig"
	"mailvetter/internal/fastpath"
	"mailvetter/internal/probe"
	"mailvetter/internal/quota"
	"mailvetter/internal/scoring"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testSets() *classify.Sets {
	return &classify.Sets{}
}

func testQuotaManager(t *testing.T) *quota.Manager {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return quota.New(rdb, map[string]quota.TierLimits{"default": {PerCustomerHour: 500, GlobalHour: 5000}})
}

func testProbeEngine() *probe.Engine {
	resolver := dnssig.NewResolver(2 * time.Second)
	return probe.NewEngine(resolver, "test.invalid", "verify@test.invalid", 2*time.Second, 0, nil)
}

// fakeProber lets tests force a specific probe.Engine.Verify outcome
// without a real DNS/SMTP round trip.
type fakeProber struct {
	result *probe.Result
	err    error
}

func (f fakeProber) Verify(ctx context.Context, email, domain string) (*probe.Result, error) {
	return f.result, f.err
}

func TestVerifyBadSyntaxShortCircuits(t *testing.T) {
	o := New(testSets(), breaker.New(3, time.Minute), testQuotaManager(t), nil, nil, testProbeEngine(), scoring.NewScorer(map[string]int{"default": 85}), 4)
	res := o.Verify(context.Background(), "cust1", "not-an-email")
	if res.Status != StatusInvalid || res.Reason != "bad_syntax" {
		t.Errorf("res = %+v", res)
	}
}

func TestVerifyBreakerOpenGates(t *testing.T) {
	br := breaker.New(1, time.Minute)
	br.RecordFailure("example.com")
	o := New(testSets(), br, testQuotaManager(t), nil, nil, testProbeEngine(), scoring.NewScorer(map[string]int{"default": 85}), 4)

	res := o.Verify(context.Background(), "cust1", "someone@example.com")
	if res.Status != StatusRisky || res.Reason != "circuit_breaker_open" {
		t.Errorf("res = %+v", res)
	}
	if res.RetryAfter <= 0 {
		t.Errorf("expected positive RetryAfter, got %d", res.RetryAfter)
	}
}

func TestVerifyQuotaExceededGates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	// tier with a 0 customer limit exhausts immediately
	qm := quota.New(rdb, map[string]quota.TierLimits{"default": {PerCustomerHour: 0, GlobalHour: 0}})

	o := New(testSets(), breaker.New(3, time.Minute), qm, nil, nil, testProbeEngine(), scoring.NewScorer(map[string]int{"default": 85}), 4)

	res := o.Verify(context.Background(), "cust1", "someone@example.com")
	if res.Status != StatusRisky || res.Reason != "quota_exceeded" {
		t.Errorf("res = %+v", res)
	}
}

func TestVerifyFastPathValidShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_valid":true,"status":"deliverable"}`))
	}))
	defer srv.Close()

	fp := fastpath.NewClient(srv.URL, "key")
	o := New(testSets(), breaker.New(3, time.Minute), testQuotaManager(t), nil, fp, testProbeEngine(), scoring.NewScorer(map[string]int{"default": 85}), 4)

	res := o.Verify(context.Background(), "cust1", "someone@example.com")
	if res.Status != StatusValid || res.Source != SourceOmkar || res.Confidence != 90 {
		t.Errorf("res = %+v", res)
	}
}

func TestVerifyFastPathInvalidShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_valid":false,"status":"rejected"}`))
	}))
	defer srv.Close()

	fp := fastpath.NewClient(srv.URL, "key")
	o := New(testSets(), breaker.New(3, time.Minute), testQuotaManager(t), nil, fp, testProbeEngine(), scoring.NewScorer(map[string]int{"default": 85}), 4)

	res := o.Verify(context.Background(), "cust1", "someone@example.com")
	if res.Status != StatusInvalid || res.Source != SourceOmkar || res.Confidence != 10 {
		t.Errorf("res = %+v", res)
	}
}

func TestVerifyFallsThroughToProbeOnCatchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"catch_all"}`))
	}))
	defer srv.Close()

	fp := fastpath.NewClient(srv.URL, "key")
	o := New(testSets(), breaker.New(3, time.Minute), testQuotaManager(t), nil, fp, testProbeEngine(), scoring.NewScorer(map[string]int{"default": 85}), 4)

	// no network/DNS available for "nonexistent-domain-for-test.invalid" in
	// the test sandbox, so the probe engine's MX lookup itself fails (as
	// opposed to succeeding with zero records) and this resolves to the
	// generic probe_engine_error branch rather than an SMTP round trip.
	res := o.Verify(context.Background(), "cust1", "someone@nonexistent-domain-for-test.invalid")
	if res.Status != StatusUnknown || res.Reason != "probe_engine_error" {
		t.Errorf("res = %+v", res)
	}
}

func TestVerifyNoMXShortCircuitsToInvalid(t *testing.T) {
	br := breaker.New(1, time.Minute)
	fp := fakeProber{err: probe.ErrNoMX}
	o := New(testSets(), br, testQuotaManager(t), nil, nil, fp, scoring.NewScorer(map[string]int{"default": 85}), 4)

	res := o.Verify(context.Background(), "cust1", "someone@no-mx.example")
	if res.Status != StatusInvalid || res.Reason != "no_mx" || res.Confidence != 0 {
		t.Errorf("res = %+v", res)
	}
	// no_mx is a definitive DNS answer, not a probe failure — it must not
	// count against the breaker.
	if br.IsOpen("no-mx.example") {
		t.Errorf("no_mx should not open the circuit breaker")
	}
	if br.RecentFailureCount("no-mx.example") != 0 {
		t.Errorf("no_mx should not record a breaker failure")
	}
}

func TestVerifyBatchPreservesOrderAndLength(t *testing.T) {
	o := New(testSets(), breaker.New(3, time.Minute), testQuotaManager(t), nil, nil, testProbeEngine(), scoring.NewScorer(map[string]int{"default": 85}), 4)
	addrs := []string{"not-an-email", "also-bad", "still-bad"}
	results := o.VerifyBatch(context.Background(), "cust1", addrs)
	if len(results) != len(addrs) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(addrs))
	}
	for i, r := range results {
		if r.Email != addrs[i] {
			t.Errorf("result[%d].Email = %q, want %q", i, r.Email, addrs[i])
		}
	}
}
