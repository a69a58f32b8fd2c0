// Package probe drives the SMTP catch-all probe sequence: resolve MX,
// connect, fingerprint the banner, RCPT the real address, then RCPT
// two fake addresses on the same domain and compare.
package probe

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mailvetter/internal/banner"
	"mailvetter/internal/dnssig"
	"mailvetter/internal/iphealth"
	"mailvetter/internal/proxy"
	"mailvetter/internal/queueid"
	"mailvetter/internal/scoring"
	"mailvetter/internal/timing"
)

const (
	smtpPort         = "25"
	fakeLocalLength  = 12
	fakeAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	rateLimitBurst   = 1
	defaultRateLimit = 2 // probe sessions/sec per domain, independent of ProbePause dwell
)

// Result is the full outcome of one probe run: the fused Signals the
// scorer needs, plus the raw detail a caller may want to log.
type Result struct {
	Signals      scoring.Signals
	RealCode     int
	FakeCodes    []int
	RealTimeMs   float64
	FakeTimesMs  []float64
	MTA          banner.MTAInfo
}

// Engine runs probes against a resolver, pacing requests per domain
// and dialing through the shared proxy pool when one is configured and
// SMTP proxying is enabled.
type Engine struct {
	resolver    *dnssig.Resolver
	heloDomain  string
	mailFrom    string
	timeout     time.Duration
	pause       time.Duration
	health      *iphealth.Monitor
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
}

// NewEngine builds an Engine. heloDomain and mailFrom are sent in
// EHLO/MAIL FROM; timeout bounds the whole SMTP session; pause is the
// dwell inserted between probe rounds (PROBE_PAUSE). health records a
// bounce against the chosen egress IP when the proxied dial fails; a nil
// health is safe and simply never blocks an IP.
func NewEngine(resolver *dnssig.Resolver, heloDomain, mailFrom string, timeout, pause time.Duration, health *iphealth.Monitor) *Engine {
	return &Engine{
		resolver:   resolver,
		heloDomain: heloDomain,
		mailFrom:   mailFrom,
		timeout:    timeout,
		pause:      pause,
		health:     health,
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (e *Engine) limiterFor(domain string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(defaultRateLimit), rateLimitBurst)
		e.limiters[domain] = l
	}
	return l
}

// ErrNoMX is returned when a domain has no resolvable MX host.
var ErrNoMX = fmt.Errorf("probe: no mx record")

// Verify runs the probe sequence for email and returns a fused Result.
// Any connection or protocol failure returns (nil, err) — the caller
// treats this as "probe inconclusive", not "invalid".
func (e *Engine) Verify(ctx context.Context, email, domain string) (*Result, error) {
	if err := e.limiterFor(domain).Wait(ctx); err != nil {
		return nil, fmt.Errorf("probe: rate limit wait: %w", err)
	}

	hosts, err := e.resolver.MX(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("probe: mx lookup: %w", err)
	}
	mxHost := dnssig.Primary(hosts)
	if mxHost == "" {
		return nil, ErrNoMX
	}

	spf := e.resolver.SPF(ctx, domain)

	conn, err := e.dial(ctx, mxHost, domain)
	if err != nil {
		return nil, fmt.Errorf("probe: dial %s: %w", mxHost, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(e.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	tp := textproto.NewConn(conn)
	_, bannerText, err := tp.ReadResponse(220)
	if err != nil {
		return nil, fmt.Errorf("probe: banner read: %w", err)
	}
	mta := banner.Fingerprint(bannerText)

	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		return nil, fmt.Errorf("probe: client handshake: %w", err)
	}
	defer client.Close()

	if err := client.Hello(e.heloDomain); err != nil {
		return nil, fmt.Errorf("probe: HELO: %w", err)
	}
	if err := client.Mail(e.mailFrom); err != nil {
		return nil, fmt.Errorf("probe: MAIL FROM: %w", err)
	}

	start := time.Now()
	realCode, realMsg := rcpt(client, email)
	realTimeMs := float64(time.Since(start).Microseconds()) / 1000.0

	e.sleepPause(ctx)
	if err := client.Reset(); err != nil {
		return nil, fmt.Errorf("probe: RSET: %w", err)
	}
	if err := client.Mail(e.mailFrom); err != nil {
		return nil, fmt.Errorf("probe: MAIL FROM (fake round): %w", err)
	}

	var fakeTimesMs []float64
	var fakeCodes []int
	var fakeRejected *bool

	for i := 0; i < 2; i++ {
		fakeEmail, err := randomFakeEmail(domain)
		if err != nil {
			return nil, fmt.Errorf("probe: generate fake address: %w", err)
		}

		fakeStart := time.Now()
		fakeCode, _ := rcpt(client, fakeEmail)
		fakeTimesMs = append(fakeTimesMs, float64(time.Since(fakeStart).Microseconds())/1000.0)
		fakeCodes = append(fakeCodes, fakeCode)

		if i == 0 {
			rejected := fakeCode != 250
			fakeRejected = &rejected
		}

		if i < 1 {
			e.sleepPause(ctx)
			if err := client.Reset(); err != nil {
				return nil, fmt.Errorf("probe: RSET: %w", err)
			}
			if err := client.Mail(e.mailFrom); err != nil {
				return nil, fmt.Errorf("probe: MAIL FROM (fake round 2): %w", err)
			}
		}
	}

	_ = client.Quit()

	timingResult := timing.Analyze(realTimeMs, fakeTimesMs)
	qid := queueid.Detect(realMsg)

	return &Result{
		Signals: scoring.Signals{
			FakeRejected: fakeRejected,
			QueueID:      qid,
			Timing:       timingResult,
			SPFStrict:    spf.Strict,
		},
		RealCode:    realCode,
		FakeCodes:   fakeCodes,
		RealTimeMs:  realTimeMs,
		FakeTimesMs: fakeTimesMs,
		MTA:         mta,
	}, nil
}

func (e *Engine) dial(ctx context.Context, mxHost, domain string) (net.Conn, error) {
	addr := net.JoinHostPort(mxHost, smtpPort)
	var p *url.URL
	if proxy.SMTPEnabled {
		p = proxy.Global.NextForDomain(ctx, domain)
	}
	conn, err := proxy.DialContext(ctx, "tcp", addr, e.timeout, p)
	if err != nil && p != nil {
		e.health.MarkBounce(ctx, p.Hostname(), domain)
	}
	return conn, err
}

func (e *Engine) sleepPause(ctx context.Context) {
	if e.pause <= 0 {
		return
	}
	select {
	case <-time.After(e.pause):
	case <-ctx.Done():
	}
}

// rcpt issues RCPT TO and returns the response code and text, tolerant
// of a textproto.Error (the non-2xx response we expect for fakes).
func rcpt(client *smtp.Client, addr string) (int, string) {
	if strings.ContainsAny(addr, "\r\n") {
		return 0, "smtp: address must not contain CR or LF"
	}
	id, err := client.Text.Cmd("RCPT TO:<%s>", addr)
	if err != nil {
		return 0, err.Error()
	}
	client.Text.StartResponse(id)
	defer client.Text.EndResponse(id)
	code, msg, err := client.Text.ReadResponse(25)
	if code == 0 && err != nil {
		return 0, err.Error()
	}
	return code, msg
}

func randomFakeEmail(domain string) (string, error) {
	buf := make([]byte, fakeLocalLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	local := make([]byte, fakeLocalLength)
	for i, b := range buf {
		local[i] = fakeAlphabet[int(b)%len(fakeAlphabet)]
	}
	return string(local) + "@" + domain, nil
}
