// Package dnssig implements §4.2 DNS Signals: MX resolution (cached),
// SPF/DMARC lookups, and the DNS-policy reputation sub-score.
package dnssig

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"mailvetter/internal/cache"
)

const (
	mxCacheCapacity = 50000
	mxCacheTTL      = 3600 * time.Second
)

// MXHost is one MX record: hostname and preference.
type MXHost struct {
	Host string
	Pref uint16
}

// SPFResult is the outcome of an SPF TXT lookup.
type SPFResult struct {
	Present bool
	Strict  bool
	Text    string
}

// DMARCResult is the outcome of a DMARC TXT lookup.
type DMARCResult struct {
	Present bool
	Text    string
}

// Resolver resolves MX/SPF/DMARC records with an in-memory, TTL-expiring,
// capacity-bounded MX cache. Resolver is safe for concurrent use.
type Resolver struct {
	resolver *net.Resolver
	dialTO   time.Duration
	mxCache  *cache.Store
}

// NewResolver builds a Resolver using Go's context-aware net.Resolver
// with a direct (non-proxy) UDP dialer — SOCKS5 proxies do not carry UDP
// DNS traffic.
func NewResolver(dialTimeout time.Duration) *Resolver {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			return d.DialContext(ctx, network, address)
		},
	}
	return &Resolver{
		resolver: r,
		dialTO:   dialTimeout,
		mxCache:  cache.New(mxCacheCapacity),
	}
}

// MX resolves and sorts MX records for domain ascending by preference.
// Results are cached in-process for mxCacheTTL. Failures (NXDOMAIN,
// timeout) yield an empty result and are not negatively cached.
func (r *Resolver) MX(ctx context.Context, domain string) ([]MXHost, error) {
	domain = strings.ToLower(domain)

	if cached, ok := r.mxCache.Get(domain); ok {
		return cached.([]MXHost), nil
	}

	records, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	hosts := make([]MXHost, 0, len(records))
	for _, rec := range records {
		hosts = append(hosts, MXHost{
			Host: strings.TrimSuffix(rec.Host, "."),
			Pref: rec.Pref,
		})
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Pref < hosts[j].Pref })

	r.mxCache.Set(domain, hosts, mxCacheTTL)
	return hosts, nil
}

// StartCacheCleanup launches a background goroutine that sweeps expired
// MX cache entries on interval until ctx is cancelled.
func (r *Resolver) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	r.mxCache.StartCleanup(ctx, interval)
}

// Primary returns the lowest-preference MX host, or "" if none exist.
func Primary(hosts []MXHost) string {
	if len(hosts) == 0 {
		return ""
	}
	return hosts[0].Host
}

// SPF looks up the domain's SPF TXT record. strict = true when the record
// contains a hard-fail "-all" mechanism.
func (r *Resolver) SPF(ctx context.Context, domain string) SPFResult {
	txts, err := r.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return SPFResult{}
	}
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=spf1") {
			return SPFResult{
				Present: true,
				Strict:  strings.Contains(txt, "-all"),
				Text:    txt,
			}
		}
	}
	return SPFResult{}
}

// DMARC looks up the domain's DMARC TXT record at _dmarc.<domain>.
func (r *Resolver) DMARC(ctx context.Context, domain string) DMARCResult {
	txts, err := r.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return DMARCResult{}
	}
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=DMARC1") {
			return DMARCResult{Present: true, Text: txt}
		}
	}
	return DMARCResult{}
}

// ReputationScore computes the DNS-policy reputation sub-score per
// base 50, +15 SPF present, +10 SPF strict, +15 DMARC
// present, +10 if MX present and count > 1, capped at 100.
func ReputationScore(spf SPFResult, dmarc DMARCResult, mxCount int) int {
	score := 50
	if spf.Present {
		score += 15
	}
	if spf.Strict {
		score += 10
	}
	if dmarc.Present {
		score += 15
	}
	if mxCount > 1 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}
