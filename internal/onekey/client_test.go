package onekey_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"veribatch/internal/config"
	"veribatch/internal/identifier"
	"veribatch/internal/logging"
	"veribatch/internal/onekey"
)

const (
	idOne = identifier.Identifier("5f2a9c1b3e4d6a7b8c9d0e1f")
	idTwo = identifier.Identifier("aaaaaaaaaaaaaaaaaaaaaaaa")
)

func newClient(t *testing.T, baseURL string, opts ...onekey.Option) *onekey.Client {
	t.Helper()
	cfg := config.Default()
	cfg.Service.BaseURL = baseURL
	cfg.Service.APIKey = "hcaptcha-key"
	opts = append([]onekey.Option{onekey.WithRetryDelay(time.Millisecond)}, opts...)
	client, err := onekey.New(&cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSubmitBatchConsumesStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-CSRF-Token"); got != "csrf-1" {
			t.Errorf("missing csrf header, got %q", got)
		}
		var req struct {
			VerificationIDs []string `json:"verificationIds"`
			HCaptchaToken   string   `json:"hCaptchaToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.VerificationIDs) != 2 || req.HCaptchaToken != "hcaptcha-key" {
			t.Errorf("unexpected payload: %+v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"verificationId\":%q,\"currentStep\":\"pending\",\"checkToken\":\"ck-1\"}\n\n", idOne)
		fmt.Fprintf(w, "data: not-json\n\n")
		fmt.Fprintf(w, "data: {\"verificationId\":%q,\"currentStep\":\"success\",\"message\":\"done\"}\n\n", idTwo)
		fmt.Fprintf(w, "data: {\"verificationId\":%q,\"currentStep\":\"pending\",\"checkToken\":\"ck-2\"}\n\n", idOne)
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	res, err := client.SubmitBatch(context.Background(), []identifier.Identifier{idOne, idTwo}, "csrf-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	one, ok := res.Results[idOne]
	if !ok {
		t.Fatal("missing result for first id")
	}
	if one.Outcome != onekey.OutcomePending || one.CheckToken != "ck-2" {
		t.Fatalf("later event should win: %+v", one)
	}
	two := res.Results[idTwo]
	if two.Outcome != onekey.OutcomeSuccess || two.Message != "done" {
		t.Fatalf("unexpected terminal result: %+v", two)
	}
	if two.Outcome.Terminal() != true || one.Outcome.Terminal() {
		t.Fatal("terminal classification wrong")
	}
}

func TestSubmitBatchCsrfRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad csrf", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	_, err := client.SubmitBatch(context.Background(), []identifier.Identifier{idOne}, "stale")
	if !errors.Is(err, onekey.ErrCsrfRejected) {
		t.Fatalf("expected ErrCsrfRejected, got %v", err)
	}
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"verificationId": idOne.String(),
			"currentStep":    "success",
		})
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	res, err := client.CheckStatus(context.Background(), "ck-1", "csrf-1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if res.Outcome != onekey.OutcomeSuccess {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestPostExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	_, err := client.CheckStatus(context.Background(), "ck-1", "csrf-1")
	if !errors.Is(err, onekey.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	// Default config allows 2 retries: 3 calls total.
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such batch", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	_, err := client.CheckStatus(context.Background(), "ck-1", "csrf-1")
	var apiErr *onekey.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not retry, got %d calls", calls.Load())
	}
}

func TestCheckStatusUnknownStep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"verificationId": idOne.String(),
			"currentStep":    "warming-up",
			"checkToken":     "ck-next",
		})
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	res, err := client.CheckStatus(context.Background(), "ck-1", "csrf-1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if res.Outcome != onekey.OutcomeUnknown {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
	if res.Outcome.Terminal() {
		t.Fatal("unknown outcome must not be terminal")
	}
	if res.CheckToken != "ck-next" {
		t.Fatalf("check token not carried: %+v", res)
	}
}

func TestCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cancel" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			VerificationID string `json:"verificationId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VerificationID != idOne.String() {
			t.Errorf("unexpected cancel payload: %+v err=%v", req, err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "cancelled"})
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	res, err := client.Cancel(context.Background(), idOne, "csrf-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !res.Cancelled {
		t.Fatalf("unexpected cancel result: %+v", res)
	}
}
