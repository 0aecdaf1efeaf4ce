// Package httpclient implements the shared rate-limited, retrying HTTP
// client used by every source adapter (C2), the metadata enricher (C8),
// and the quality filter's optional liveness checks (C9).
//
// It is grounded on the teacher repo's internal/fetch package (timeout
// plumbing, context-scoped redirect policy, transient-error classification)
// generalized from a single-purpose page fetcher into a general catalog-API
// client with per-adapter token-bucket pacing, user-agent rotation, and
// proxy rotation, per spec §4.1.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/citescout/cdcs/internal/cdcserr"
	"github.com/citescout/cdcs/internal/pressure"
)

// Kind classifies an error the way adapters need to branch on, instead of
// matching error strings (Design Note in spec §9).
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindRateLimited
	KindServerError
	KindMalformed
	KindNetwork
)

// Error is the typed error returned by Client.Request.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("httpclient: %v (status=%d)", e.Err, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// userAgents is a fixed rotation pool, grounded on
// original_source/engine/utils/api_citations/base.py's USER_AGENTS.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Proxy is a parsed entry from PROXY_LIST.
type Proxy struct {
	Host, Port, User, Pass string
}

func (p Proxy) url() (*url.URL, error) {
	if p.User != "" {
		return url.Parse(fmt.Sprintf("http://%s:%s@%s:%s", p.User, p.Pass, p.Host, p.Port))
	}
	return url.Parse(fmt.Sprintf("http://%s:%s", p.Host, p.Port))
}

// id identifies a proxy for pressure-manager health tracking, independent of
// credentials.
func (p Proxy) id() string { return p.Host + ":" + p.Port }

// ParseProxyList parses the PROXY_LIST environment convention:
// "host:port[:user:pass]" entries separated by commas.
func ParseProxyList(env string) []Proxy {
	env = strings.TrimSpace(env)
	if env == "" {
		return nil
	}
	var out []Proxy
	for _, entry := range strings.Split(env, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		switch len(parts) {
		case 2:
			out = append(out, Proxy{Host: parts[0], Port: parts[1]})
		case 4:
			out = append(out, Proxy{Host: parts[0], Port: parts[1], User: parts[2], Pass: parts[3]})
		}
	}
	return out
}

// Client paces requests per adapter under a token bucket, retries transient
// failures with jittered exponential backoff, and rotates user-agents and
// (when configured) proxies.
type Client struct {
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
	Proxies     []Proxy
	// Pressure, when set, steers proxy selection away from proxies the
	// manager has marked degraded instead of a bare random pick.
	Pressure *pressure.Manager

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient builds a Client with sane defaults matching spec §4.1.
func NewClient() *Client {
	return &Client{
		HTTPClient:  &http.Client{},
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Timeout:     15 * time.Second,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// limiterFor returns (creating if needed) the token bucket for an adapter at
// the given requests-per-second rate.
func (c *Client) limiterFor(adapter string, rps float64) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[adapter]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rps), 1)
		c.limiters[adapter] = l
	}
	return l
}

// Request issues method against url with the given headers, honoring the
// adapter's configured RPS unless a proxy pool is configured (in which case
// batch-level pacing relaxes in favor of per-proxy isolation, per spec §4.1).
func (c *Client) Request(ctx context.Context, adapter string, rps float64, method, target string, headers map[string]string) ([]byte, error) {
	return c.RequestWithBody(ctx, adapter, rps, method, target, headers, nil)
}

// RequestWithBody is Request with an optional request body, for POST/PUT
// calls such as the SERP-fallback adapter's DataForSEO payload.
func (c *Client) RequestWithBody(ctx context.Context, adapter string, rps float64, method, target string, headers map[string]string, body []byte) ([]byte, error) {
	if len(c.Proxies) == 0 {
		if err := c.limiterFor(adapter, rps).Wait(ctx); err != nil {
			return nil, &Error{Kind: KindNetwork, Err: err}
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		respBody, err := c.tryOnce(ctx, method, target, headers, body)
		if err == nil {
			return respBody, nil
		}
		var herr *Error
		if !errors.As(err, &herr) || (herr.Kind != KindRateLimited && herr.Kind != KindServerError && herr.Kind != KindNetwork) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		delay := backoff(c.BaseDelay, c.MaxDelay, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base * time.Duration(1<<uint(attempt))
	if d > max {
		d = max
	}
	jitter := time.Duration(float64(d) * (0.75 + 0.5*rand.Float64()))
	if jitter > max {
		jitter = max
	}
	return jitter
}

func (c *Client) tryOnce(ctx context.Context, method, target string, headers map[string]string, body []byte) ([]byte, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, bodyReader)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Err: err}
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := c.clientFor()
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, StatusCode: resp.StatusCode, Err: errors.New("rate limited")}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, StatusCode: resp.StatusCode, Err: errors.New("not found")}
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: KindServerError, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &Error{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("client error %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func (c *Client) clientFor() *http.Client {
	if len(c.Proxies) == 0 {
		return c.HTTPClient
	}
	p := c.pickProxy()
	proxyURL, err := p.url()
	if err != nil {
		return c.HTTPClient
	}
	base := *c.HTTPClient
	transport := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	base.Transport = transport
	return &base
}

// pickProxy selects a proxy from c.Proxies, consulting the pressure manager
// for degraded-proxy avoidance when one is configured.
func (c *Client) pickProxy() Proxy {
	if c.Pressure == nil {
		return c.Proxies[rand.Intn(len(c.Proxies))]
	}
	ids := make([]string, len(c.Proxies))
	byID := make(map[string]Proxy, len(c.Proxies))
	for i, p := range c.Proxies {
		ids[i] = p.id()
		byID[p.id()] = p
	}
	return byID[c.Pressure.HealthyProxy(ids)]
}

// GetJSON issues a GET request and decodes the response as JSON into out.
func (c *Client) GetJSON(ctx context.Context, adapter string, rps float64, target string, headers map[string]string, out any) error {
	body, err := c.Request(ctx, adapter, rps, http.MethodGet, target, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("decode json: %w", err)}
	}
	return nil
}

// PostJSON issues a POST request with payload marshaled to JSON and decodes
// the response as JSON into out.
func (c *Client) PostJSON(ctx context.Context, adapter string, rps float64, target string, headers map[string]string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("encode json: %w", err)}
	}
	merged := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		merged[k] = v
	}
	body, err := c.RequestWithBody(ctx, adapter, rps, http.MethodPost, target, merged, encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("decode json: %w", err)}
	}
	return nil
}

// AsCDCSError maps a Kind to the closed error taxonomy used by callers that
// want the §7 vocabulary (TransientAPIError/PermanentAPIError) instead of
// this package's lower-level Kind.
func AsCDCSError(adapter string, err error) error {
	var herr *Error
	if !errors.As(err, &herr) {
		return &cdcserr.NetworkError{Op: adapter, Err: err}
	}
	switch herr.Kind {
	case KindRateLimited, KindServerError, KindNetwork:
		return &cdcserr.TransientAPIError{Adapter: adapter, Err: herr}
	default:
		return &cdcserr.PermanentAPIError{Adapter: adapter, Err: herr}
	}
}
