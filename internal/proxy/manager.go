package proxy

import (
	"context"
	"fmt"
	"hash/fnv"
	"net"
	"net/url"

	"mailvetter/internal/iphealth"
)

type Manager struct {
	proxies []*url.URL
	health  *iphealth.Monitor
}

var Global *Manager
var Semaphore chan struct{}
var SMTPEnabled bool

// Init loads the proxies, sets the dynamic concurrency limit, and wires
// in health so NextForDomain can skip IPs blocked against a given domain.
func Init(proxyList []string, limit int, enableSMTP bool, health *iphealth.Monitor) error {
	var parsed []*url.URL

	for _, p := range proxyList {
		if p == "" {
			continue
		}
		u, err := url.Parse(p)
		if err != nil {
			return fmt.Errorf("invalid proxy URL '%s': %w", p, err)
		}

		// --- Pre-Resolve the Proxy Hostname to an IP ---
		// This prevents the Go DNS resolver from crashing under high concurrency
		host := u.Hostname()
		port := u.Port()

		// If it's a hostname (not already an IP address), resolve it
		if net.ParseIP(host) == nil {
			ips, err := net.LookupIP(host)
			if err == nil && len(ips) > 0 {
				// Prefer IPv4
				resolvedIP := ips[0].String()
				for _, ip := range ips {
					if ip.To4() != nil {
						resolvedIP = ip.String()
						break
					}
				}
				// Reconstruct the URL with the raw IP address
				if port != "" {
					u.Host = net.JoinHostPort(resolvedIP, port)
				} else {
					u.Host = resolvedIP
				}
			}
		}

		parsed = append(parsed, u)
	}

	if limit <= 0 {
		limit = len(parsed)
		if limit == 0 {
			limit = 10
		}
	}

	Semaphore = make(chan struct{}, limit)
	SMTPEnabled = enableSMTP

	Global = &Manager{
		proxies: parsed,
		health:  health,
	}
	return nil
}

// domainSeed hashes domain into a starting index so repeated probes
// against the same domain tend to reuse the same egress IP — mail
// servers that greylist or rate-limit by source IP see a more
// consistent sender across a domain's multi-RCPT probe session.
func domainSeed(domain string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(domain))
	return int(h.Sum32()) % n
}

// NextForDomain picks a proxy for domain using a stable per-domain
// starting point, skipping any proxy whose IP is currently blocked
// against domain. If every proxy is blocked it fails open and returns
// the sticky pick anyway, since a domain with no healthy egress IP
// left is better probed than not probed at all.
func (m *Manager) NextForDomain(ctx context.Context, domain string) *url.URL {
	if m == nil || len(m.proxies) == 0 {
		return nil
	}
	n := len(m.proxies)
	start := domainSeed(domain, n)

	for i := 0; i < n; i++ {
		p := m.proxies[(start+i)%n]
		if !m.health.IsBlocked(ctx, p.Hostname(), domain) {
			return p
		}
	}
	return m.proxies[start]
}

func Enabled() bool {
	return Global != nil && len(Global.proxies) > 0
}
