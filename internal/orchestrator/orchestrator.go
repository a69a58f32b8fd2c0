// Package orchestrator runs the per-address verification pipeline:
// classify, gate on the breaker and quota, consult the fast-path
// verifier, and fall back to the probe engine on catch-all or
// failure.
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"mailvetter/internal/breaker"
	"mailvetter/internal/classify"
	"mailvetter/internal/fastpath"
	"mailvetter/internal/probe"
	"mailvetter/internal/quota"
	"mailvetter/internal/reputation"
	"mailvetter/internal/scoring"
)

// Status is the final disposition of a verified address.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusRisky   Status = "risky"
	StatusUnknown Status = "unknown"
)

// Source identifies which stage of the pipeline produced a result.
type Source string

const (
	SourceOmkar     Source = "omkar"
	SourceProbe     Source = "probe_engine"
	SourceSystem    Source = "system"
	SourceCache     Source = "cache"
)

// VerifyResult is the per-address outcome returned to the caller.
type VerifyResult struct {
	Email       string
	Status      Status
	Deliverable *bool
	Confidence  int
	CatchAll    *bool
	RetryAfter  int
	QuotaLimit  int
	QuotaUsed   int64
	Source      Source
	Reason      string
	Signals     *scoring.Signals
}

// prober is the subset of *probe.Engine the orchestrator depends on. It
// exists so tests can substitute a fake that returns probe.ErrNoMX (and
// other errors) without needing real DNS/SMTP.
type prober interface {
	Verify(ctx context.Context, email, domain string) (*probe.Result, error)
}

// Orchestrator wires the breaker, quota, reputation, fast-path and
// probe engine into the verification pipeline.
type Orchestrator struct {
	sets        *classify.Sets
	breaker     *breaker.Breaker
	quota       *quota.Manager
	reputation  *reputation.Monitor
	fastpath    *fastpath.Client
	probe       prober
	scorer      *scoring.Scorer
	maxWorkers  int
}

// New builds an Orchestrator. maxWorkers <= 0 falls back to 24
// (the default MAX_WORKERS).
func New(
	sets *classify.Sets,
	br *breaker.Breaker,
	qm *quota.Manager,
	rep *reputation.Monitor,
	fp *fastpath.Client,
	pe prober,
	scorer *scoring.Scorer,
	maxWorkers int,
) *Orchestrator {
	if maxWorkers <= 0 {
		maxWorkers = 24
	}
	return &Orchestrator{
		sets:       sets,
		breaker:    br,
		quota:      qm,
		reputation: rep,
		fastpath:   fp,
		probe:      pe,
		scorer:     scorer,
		maxWorkers: maxWorkers,
	}
}

// VerifyBatch runs Verify for every address concurrently, bounded by
// maxWorkers. Result order matches the order of addresses.
func (o *Orchestrator) VerifyBatch(ctx context.Context, customerID string, addresses []string) []VerifyResult {
	results := make([]VerifyResult, len(addresses))

	sem := make(chan struct{}, o.maxWorkers)
	var wg sync.WaitGroup

	for i, addr := range addresses {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, addr string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.Verify(ctx, customerID, addr)
		}(i, addr)
	}
	wg.Wait()

	return results
}

// Verify runs the full per-address pipeline and never returns an
// error — every failure mode becomes a VerifyResult.
func (o *Orchestrator) Verify(ctx context.Context, customerID, rawAddress string) VerifyResult {
	email := classify.Normalize(rawAddress)

	if !classify.IsValidSyntax(email) {
		return VerifyResult{Email: email, Status: StatusInvalid, Confidence: 0, Source: SourceSystem, Reason: "bad_syntax"}
	}

	_, domain := classify.Split(email)
	if domain == "" {
		return VerifyResult{Email: email, Status: StatusInvalid, Confidence: 0, Source: SourceSystem, Reason: "bad_syntax"}
	}

	if o.breaker.IsOpen(domain) {
		return VerifyResult{
			Email:      email,
			Status:     StatusRisky,
			Confidence: 0,
			Source:     SourceSystem,
			Reason:     "circuit_breaker_open",
			RetryAfter: o.breaker.TimeUntilRetry(domain),
		}
	}

	if err := o.quota.Check(ctx, customerID, domain, "default"); err != nil {
		var exceeded *quota.ErrExceeded
		retryAfter := -1
		var limit int
		var used int64
		if errors.As(err, &exceeded) {
			retryAfter = int(exceeded.ResetIn.Seconds())
			limit = exceeded.Limit
			used = exceeded.Used
		}
		return VerifyResult{
			Email:      email,
			Status:     StatusRisky,
			Confidence: 0,
			Source:     SourceSystem,
			Reason:     "quota_exceeded",
			RetryAfter: retryAfter,
			QuotaLimit: limit,
			QuotaUsed:  used,
		}
	}

	if o.fastpath != nil {
		if res, err := o.fastpath.Verify(ctx, email); err != nil {
			o.breaker.RecordFailure(domain)
		} else if !res.CatchAll {
			o.breaker.RecordSuccess(domain)
			return fastpathResult(email, res)
		}
	}

	return o.probeResult(ctx, email, domain)
}

func fastpathResult(email string, res fastpath.Result) VerifyResult {
	if res.IsValid != nil && *res.IsValid {
		deliverable := true
		catchAll := false
		return VerifyResult{
			Email:       email,
			Status:      StatusValid,
			Deliverable: &deliverable,
			Confidence:  90,
			CatchAll:    &catchAll,
			Source:      SourceOmkar,
			Reason:      "fast_path_verified",
		}
	}
	deliverable := false
	catchAll := false
	return VerifyResult{
		Email:       email,
		Status:      StatusInvalid,
		Deliverable: &deliverable,
		Confidence:  10,
		CatchAll:    &catchAll,
		Source:      SourceOmkar,
		Reason:      "fast_path_rejected",
	}
}

func (o *Orchestrator) probeResult(ctx context.Context, email, domain string) VerifyResult {
	probeRes, err := o.probe.Verify(ctx, email, domain)
	if err != nil {
		// A domain with no MX record cannot accept mail at all — this is a
		// definitive DNS answer, not a probe failure, so it neither counts
		// against the breaker nor falls into the generic unknown branch.
		if errors.Is(err, probe.ErrNoMX) {
			return VerifyResult{
				Email:      email,
				Status:     StatusInvalid,
				Confidence: 0,
				Source:     SourceProbe,
				Reason:     "no_mx",
			}
		}
		o.breaker.RecordFailure(domain)
		return VerifyResult{
			Email:      email,
			Status:     StatusUnknown,
			Confidence: 0,
			Source:     SourceProbe,
			Reason:     "probe_engine_error",
		}
	}

	repCap := 100
	if o.reputation != nil {
		repCap = o.reputation.ConfidenceCap(ctx, domain)
	}
	confidence, status := o.scorer.Score(probeRes.Signals, domain, repCap)
	o.breaker.RecordSuccess(domain)

	catchAll := status == scoring.StatusRisky && (probeRes.Signals.FakeRejected == nil || !*probeRes.Signals.FakeRejected)
	deliverable := status == scoring.StatusValid

	return VerifyResult{
		Email:       email,
		Status:      mapScoringStatus(status),
		Deliverable: &deliverable,
		Confidence:  confidence,
		CatchAll:    &catchAll,
		Source:      SourceProbe,
		Reason:      "probe_analysis",
		Signals:     &probeRes.Signals,
	}
}

func mapScoringStatus(s scoring.Status) Status {
	if s == scoring.StatusValid {
		return StatusValid
	}
	return StatusRisky
}
