// Package client talks to a running veribatch daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"veribatch/internal/api"
)

var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Client is a thin JSON client for the daemon API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for the daemon listening on bind. The token is sent as
// a bearer credential when non-empty.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("daemon address is required")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Submit asks the daemon to run one batch and returns the job identifier.
func (c *Client) Submit(ctx context.Context, requester string, ids []string) (string, error) {
	var resp api.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/batches", nil,
		api.SubmitRequest{Requester: requester, IDs: ids}, &resp)
	return resp.JobID, err
}

// Job fetches the current snapshot of one job.
func (c *Client) Job(ctx context.Context, jobID string) (api.JobSnapshot, error) {
	var snap api.JobSnapshot
	err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(jobID), nil, nil, &snap)
	return snap, err
}

// Jobs lists retained jobs, newest first.
func (c *Client) Jobs(ctx context.Context) ([]api.JobSnapshot, error) {
	var resp api.JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/batches", nil, nil, &resp)
	return resp.Jobs, err
}

// Cancel flags a whole job (no ids) or a subset of its identifiers.
func (c *Client) Cancel(ctx context.Context, jobID string, ids ...string) error {
	return c.do(ctx, http.MethodPost, "/api/batches/"+url.PathEscape(jobID)+"/cancel", nil,
		api.CancelRequest{IDs: ids}, nil)
}

// Stats returns counters for one requester, or global totals when requester
// is empty.
func (c *Client) Stats(ctx context.Context, requester string) (api.StatsResponse, error) {
	values := url.Values{}
	if requester = strings.TrimSpace(requester); requester != "" {
		values.Set("requester", requester)
	}
	var resp api.StatsResponse
	err := c.do(ctx, http.MethodGet, "/api/stats", values, nil, &resp)
	return resp, err
}

// Status reports daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var resp api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, payload, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsAPIUnavailable reports whether err indicates the daemon is not reachable.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
