// Package scoring fuses probe signals into a bounded confidence score,
// and holds the static provider-cap table.
package scoring

import (
	"strings"

	"mailvetter/internal/queueid"
	"mailvetter/internal/timing"
)

// Status is the final verification status a score maps to.
type Status string

const (
	StatusValid Status = "valid"
	StatusRisky Status = "risky"
)

// Signals is the subset of probe output the scorer needs to fuse a
// confidence value.
type Signals struct {
	FakeRejected *bool
	QueueID      queueid.Result
	Timing       timing.Result
	SPFStrict    bool
}

// Scorer fuses Signals into a confidence score bounded by the static
// provider-cap table and a caller-supplied reputation cap.
type Scorer struct {
	providerCaps map[string]int
}

// NewScorer builds a Scorer from a provider -> cap table.
// Domain keys are matched exact-lowercase; "default" is used when a
// domain has no explicit entry.
func NewScorer(providerCaps map[string]int) *Scorer {
	return &Scorer{providerCaps: providerCaps}
}

// ProviderCap returns the static confidence cap for domain.
func (s *Scorer) ProviderCap(domain string) int {
	if cap, ok := s.providerCaps[strings.ToLower(domain)]; ok {
		return cap
	}
	return s.providerCaps["default"]
}

// Score fuses sig into a confidence in [0,100] and derives a status,
// applying the provider cap and the caller's reputation cap in order.
//
// fake_rejected short-circuits to a pre-cap score of 95 — the domain
// discriminates between real and fake recipients, so it is not a
// catch-all regardless of any other signal.
func (s *Scorer) Score(sig Signals, domain string, reputationCap int) (int, Status) {
	var raw int
	if sig.FakeRejected != nil && *sig.FakeRejected {
		raw = 95
	} else {
		raw = 50
		if sig.QueueID.Detected {
			raw += 20
		}
		if sig.Timing.Ratio > 1.4 {
			raw += 15
		} else if sig.Timing.Ratio < 0.8 {
			raw -= 10
		}
		if sig.SPFStrict {
			raw += 5
		}
	}

	confidence := raw
	if cap := s.ProviderCap(domain); confidence > cap {
		confidence = cap
	}
	if confidence > reputationCap {
		confidence = reputationCap
	}
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}

	status := StatusRisky
	if confidence >= 80 {
		status = StatusValid
	}
	return confidence, status
}
