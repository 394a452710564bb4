package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"veribatch/internal/api"
	"veribatch/internal/client"
)

func TestSubmitSendsPayloadAndBearerToken(t *testing.T) {
	var gotAuth string
	var gotReq api.SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/batches" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.SubmitResponse{JobID: "job-1"})
	}))
	defer server.Close()

	c, err := client.New(strings.TrimPrefix(server.URL, "http://"), "sekrit")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	jobID, err := c.Submit(context.Background(), "alice", []string{"5f2a9c1b3e4d6a7b8c9d0e1f"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("unexpected job id %q", jobID)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotReq.Requester != "alice" || len(gotReq.IDs) != 1 {
		t.Fatalf("unexpected payload: %+v", gotReq)
	}
}

func TestErrorResponseSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "batch exceeds maximum size"})
	}))
	defer server.Close()

	c, err := client.New(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Submit(context.Background(), "alice", []string{"5f2a9c1b3e4d6a7b8c9d0e1f"})
	if err == nil || !strings.Contains(err.Error(), "batch exceeds maximum size") {
		t.Fatalf("expected api error message, got %v", err)
	}
}

func TestCancelTargetsJobPath(t *testing.T) {
	var gotPath string
	var gotReq api.CancelRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := client.New(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Cancel(context.Background(), "job-9", "5f2a9c1b3e4d6a7b8c9d0e1f"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gotPath != "/api/batches/job-9/cancel" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if len(gotReq.IDs) != 1 {
		t.Fatalf("unexpected cancel payload: %+v", gotReq)
	}
}

func TestStatsQueryParameter(t *testing.T) {
	var gotRequester string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequester = r.URL.Query().Get("requester")
		json.NewEncoder(w).Encode(api.StatsResponse{Requester: gotRequester, Submissions: 3})
	}))
	defer server.Close()

	c, err := client.New(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	stats, err := c.Stats(context.Background(), "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if gotRequester != "alice" || stats.Submissions != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestUnreachableDaemonDetected(t *testing.T) {
	c, err := client.New("127.0.0.1:1", "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Status(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !client.IsAPIUnavailable(err) {
		t.Fatalf("expected IsAPIUnavailable to match, got %v", err)
	}
}
