package onekey

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"veribatch/internal/config"
	"veribatch/internal/identifier"
	"veribatch/internal/logging"
)

// Client talks to the verification service. It holds no per-batch state and
// is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	programID  string
	useLucky   bool
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// Option customizes Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Batch submissions stream their
// response, so the client's timeout bounds the whole stream.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryDelay overrides the initial retry delay. Tests use this to avoid
// real sleeps.
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// New builds a Client from service configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("onekey: config is required")
	}
	c := &Client{
		baseURL:   cfg.Service.BaseURL,
		apiKey:    cfg.Service.APIKey,
		programID: cfg.Service.ProgramID,
		useLucky:  cfg.Service.UseLucky,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Service.RequestTimeout) * time.Second,
		},
		logger:     logging.NewComponentLogger(logger, "onekey"),
		maxRetries: cfg.Service.MaxRetries,
		retryDelay: time.Duration(cfg.Service.RetryDelay) * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SubmitBatch posts the identifiers and consumes the service's event stream
// until it closes, returning the last-known state per identifier.
func (c *Client) SubmitBatch(ctx context.Context, ids []identifier.Identifier, csrf string) (*SubmitResult, error) {
	payload := submitRequest{
		VerificationIDs: make([]string, 0, len(ids)),
		HCaptchaToken:   c.apiKey,
		UseLucky:        c.useLucky,
		ProgramID:       c.programID,
	}
	for _, id := range ids {
		payload.VerificationIDs = append(payload.VerificationIDs, id.String())
	}

	resp, err := c.post(ctx, "/api/batch", payload, csrf, "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	results := make(map[identifier.Identifier]Result, len(ids))
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Debug("skipping malformed stream event", logging.String("data", data))
			continue
		}
		if ev.VerificationID == "" {
			continue
		}
		id := identifier.Identifier(strings.ToLower(ev.VerificationID))
		results[id] = Result{
			ID:         id,
			Outcome:    parseStep(ev.CurrentStep),
			Message:    ev.Message,
			CheckToken: ev.CheckToken,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: submission stream interrupted: %v", ErrTransport, err)
	}

	return &SubmitResult{Results: results}, nil
}

// CheckStatus polls the service for the identifier behind one check token.
func (c *Client) CheckStatus(ctx context.Context, checkToken, csrf string) (*Result, error) {
	resp, err := c.post(ctx, "/api/check-status", checkStatusRequest{CheckToken: checkToken}, csrf, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ev event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", ErrTransport, err)
	}
	return &Result{
		ID:         identifier.Identifier(strings.ToLower(ev.VerificationID)),
		Outcome:    parseStep(ev.CurrentStep),
		Message:    ev.Message,
		CheckToken: ev.CheckToken,
	}, nil
}

// Cancel asks the service to stop work on one identifier. Local job state is
// authoritative; callers treat this as a best-effort hint.
func (c *Client) Cancel(ctx context.Context, id identifier.Identifier, csrf string) (*CancelResult, error) {
	resp, err := c.post(ctx, "/api/cancel", cancelRequest{VerificationID: id.String()}, csrf, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body cancelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode cancel response: %v", ErrTransport, err)
	}
	return &CancelResult{Cancelled: body.Success, Message: body.Message}, nil
}

// post sends a JSON request, retrying transport failures and 5xx responses
// with doubling delays. 4xx responses are never retried: a CSRF rejection
// maps to ErrCsrfRejected, the rest to *APIError.
func (c *Client) post(ctx context.Context, path string, payload any, csrf, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	delay := c.retryDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				logging.String("path", path),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", accept)
		req.Header.Set("X-CSRF-Token", csrf)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransport, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusForbidden:
			drain(resp)
			return nil, fmt.Errorf("%w: %s", ErrCsrfRejected, path)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: readBodyPrefix(resp)}
			drain(resp)
			return nil, apiErr
		default:
			lastErr = fmt.Errorf("%w: status %d from %s", ErrTransport, resp.StatusCode, path)
			drain(resp)
		}
	}
	return nil, lastErr
}

func readBodyPrefix(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
