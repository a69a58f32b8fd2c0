// Package fastpath calls an external bulk-verification API as a cheap
// first pass before the SMTP probe engine.
package fastpath

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailvetter/internal/classify"
	"mailvetter/internal/proxy"
)

const defaultTimeout = 10 * time.Second

type domainCtxKey struct{}

// Result is the normalized outcome of a fast-path lookup.
type Result struct {
	IsValid    *bool
	Status     string
	CatchAll   bool
	IsFreeMail bool
	Reason     string
	Score      int
}

// Client calls the external verification API over HTTPS.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds a Client against baseURL, authenticating with
// apiKey via the API-Key header. The request dials through the shared
// proxy pool (proxy.Global), the same domain-sticky selection used by
// the probe engine's SMTP dial, when one is configured. addr is always
// the API host, not the probed domain, so Verify stashes the domain in
// the request context for this closure to read back.
func NewClient(baseURL, apiKey string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			domain, _ := ctx.Value(domainCtxKey{}).(string)
			return proxy.DialContext(ctx, network, addr, defaultTimeout, proxy.Global.NextForDomain(ctx, domain))
		},
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout, Transport: transport},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type apiResponse struct {
	IsValid    *bool  `json:"is_valid"`
	Status     string `json:"status"`
	CatchAll   bool   `json:"catch_all"`
	IsFreeMail bool   `json:"is_free_email"`
	Reason     string `json:"reason"`
	Score      int    `json:"score"`
}

// Verify calls the fast-path API for email. A non-200 response or any
// transport error returns a zero-value Result and an error — the
// caller falls through to the probe engine rather than treating this
// as a verdict.
func (c *Client) Verify(ctx context.Context, email string) (Result, error) {
	_, domain := classify.Split(email)
	ctx = context.WithValue(ctx, domainCtxKey{}, domain)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return Result{}, fmt.Errorf("fastpath: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("email", email)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("fastpath: build request: %w", err)
	}
	req.Header.Set("API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fastpath: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fastpath: api returned status %d", resp.StatusCode)
	}

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Result{}, fmt.Errorf("fastpath: decode response: %w", err)
	}

	return Result{
		IsValid:    data.IsValid,
		Status:     data.Status,
		CatchAll:   data.CatchAll || strings.Contains(strings.ToLower(data.Status), "catch"),
		IsFreeMail: data.IsFreeMail,
		Reason:     data.Reason,
		Score:      data.Score,
	}, nil
}
