package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"veribatch/internal/api"
	"veribatch/internal/config"
	"veribatch/internal/logging"
	"veribatch/internal/registry"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("paths.api_bind is required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/batches", authMiddleware(token, srv.handleBatches))
	mux.HandleFunc("/api/batches/", authMiddleware(token, srv.handleBatch))
	mux.HandleFunc("/api/stats", authMiddleware(token, srv.handleStats))
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleBatches serves POST /api/batches (submit) and GET /api/batches (list).
func (s *apiServer) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, api.JobListResponse{
			Jobs: api.FromSnapshots(s.daemon.registry.List()),
		})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	requester := strings.TrimSpace(req.Requester)
	if requester == "" {
		requester = "anonymous"
	}

	jobID, err := s.daemon.registry.Submit(r.Context(), requester, req.IDs)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidBatch):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, registry.ErrNotRunning):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: jobID})
}

// handleBatch serves GET /api/batches/{id} and POST /api/batches/{id}/cancel.
func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	jobID, action, _ := strings.Cut(rest, "/")
	if jobID == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		snap, err := s.daemon.registry.Job(jobID)
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
	case action == "cancel" && r.Method == http.MethodPost:
		var req api.CancelRequest
		if r.Body != nil {
			// An empty body means cancel the whole job.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		err := s.daemon.registry.Cancel(jobID, req.IDs...)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, registry.ErrInvalidBatch):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		default:
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
		}
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	store := s.daemon.stats
	if store == nil {
		s.writeError(w, http.StatusNotFound, "stats disabled")
		return
	}

	if requester := strings.TrimSpace(r.URL.Query().Get("requester")); requester != "" {
		rs, err := store.ForRequester(r.Context(), requester)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.StatsResponse{
			Requester:        rs.Requester,
			Submissions:      rs.Submissions,
			Identifiers:      rs.Identifiers,
			SubmissionsInDay: rs.SubmissionsInDay,
			Outcomes:         rs.Outcomes,
		})
		return
	}

	totals, err := store.Totals(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	top, err := store.TopRequesters(r.Context(), 10, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := api.StatsResponse{
		Submissions:      totals.Submissions,
		Identifiers:      totals.Identifiers,
		Requesters:       totals.Requesters,
		SubmissionsInDay: totals.SubmissionsInDay,
		Outcomes:         totals.Outcomes,
	}
	for _, rc := range top {
		resp.TopRequesters = append(resp.TopRequesters, api.TopRequester{
			Requester:   rc.Requester,
			Submissions: rc.Submissions,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		ActiveJobs:   status.ActiveJobs,
		RetainedJobs: status.RetainedJobs,
		StatsDBPath:  status.StatsDBPath,
		LockFilePath: status.LockFilePath,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
