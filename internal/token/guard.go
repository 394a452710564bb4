package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"veribatch/internal/config"
)

// ErrTokenUnavailable indicates the CSRF token could not be fetched from the
// service landing page.
var ErrTokenUnavailable = errors.New("csrf token unavailable")

// fetchAttempts bounds how many times a single refresh tries the landing page.
const fetchAttempts = 2

// Token is a cached CSRF token with its fetch time.
type Token struct {
	Value     string
	FetchedAt time.Time
}

// Guard caches the service CSRF token, refreshing it when the TTL elapses
// or after Invalidate. Concurrent callers needing a refresh share a single
// in-flight fetch.
type Guard struct {
	baseURL     string
	landingPath string
	ttl         time.Duration
	httpClient  *http.Client
	extract     Extractor
	now         func() time.Time

	mu       sync.Mutex
	current  *Token
	inflight *fetchCall
}

type fetchCall struct {
	done chan struct{}
	tok  *Token
	err  error
}

// Option customizes Guard construction.
type Option func(*Guard)

// WithHTTPClient overrides the HTTP client used for landing page fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Guard) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithExtractor overrides how the token is pulled out of the landing page body.
func WithExtractor(extract Extractor) Option {
	return func(g *Guard) {
		if extract != nil {
			g.extract = extract
		}
	}
}

// WithClock overrides the time source. Tests use this to age the cache.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard builds a Guard from service configuration.
func NewGuard(cfg *config.Config, opts ...Option) (*Guard, error) {
	if cfg == nil {
		return nil, errors.New("token: config is required")
	}
	g := &Guard{
		baseURL:     cfg.Service.BaseURL,
		landingPath: cfg.Token.LandingPath,
		ttl:         time.Duration(cfg.Token.TTL) * time.Second,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		extract:     ExtractFromHTML,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Current returns the cached token without triggering a fetch. The second
// return reports whether a still-valid token was cached.
func (g *Guard) Current() (Token, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil || g.now().Sub(g.current.FetchedAt) >= g.ttl {
		return Token{}, false
	}
	return *g.current, true
}

// Token returns a valid CSRF token value, fetching or refreshing as needed.
// When several callers need a refresh at once they wait on one shared fetch.
func (g *Guard) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.current != nil && g.now().Sub(g.current.FetchedAt) < g.ttl {
		value := g.current.Value
		g.mu.Unlock()
		return value, nil
	}
	call := g.inflight
	if call == nil {
		call = &fetchCall{done: make(chan struct{})}
		g.inflight = call
		go g.runFetch(call)
	}
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-call.done:
	}
	if call.err != nil {
		return "", call.err
	}
	return call.tok.Value, nil
}

// Invalidate drops the cached token so the next Token call refetches.
// Called when the service rejects a request with a CSRF error.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	g.current = nil
	g.mu.Unlock()
}

// runFetch is detached from any single caller's context so one cancelled
// waiter does not abort the fetch the others share.
func (g *Guard) runFetch(call *fetchCall) {
	budget := g.httpClient.Timeout
	if budget <= 0 {
		budget = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(fetchAttempts)*budget)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		tok, err := g.fetch(ctx)
		if err == nil {
			call.tok = tok
			break
		}
		lastErr = err
	}
	if call.tok == nil {
		call.err = fmt.Errorf("%w: %v", ErrTokenUnavailable, lastErr)
	}

	g.mu.Lock()
	if call.tok != nil {
		g.current = call.tok
	}
	g.inflight = nil
	g.mu.Unlock()
	close(call.done)
}

func (g *Guard) fetch(ctx context.Context) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+g.landingPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build landing request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch landing page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("landing page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read landing page: %w", err)
	}

	value, err := g.extract(string(body))
	if err != nil {
		return nil, err
	}
	return &Token{Value: value, FetchedAt: g.now()}, nil
}
