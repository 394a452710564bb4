// Package registry owns batch job lifetime: submission validation, the
// orchestrator goroutines, progress snapshots, and retention eviction.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"veribatch/internal/batch"
	"veribatch/internal/config"
	"veribatch/internal/identifier"
	"veribatch/internal/logging"
)

var (
	// ErrInvalidBatch rejects a submission before any network call.
	ErrInvalidBatch = errors.New("invalid batch")
	// ErrNotFound indicates the job ID is unknown or already evicted.
	ErrNotFound = errors.New("job not found")
	// ErrNotRunning indicates the registry has not been started or was stopped.
	ErrNotRunning = errors.New("registry not running")
)

// SubmissionRecorder receives one event per accepted batch submission.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, requester string, idCount int, at time.Time) error
}

// Registry tracks all jobs, running each through the orchestrator and
// evicting finished ones after the retention window.
type Registry struct {
	orchestrator  *batch.Orchestrator
	recorder      SubmissionRecorder
	logger        *slog.Logger
	maxSize       int
	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.RWMutex
	jobs    map[string]*batch.Job
	running bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes registry construction.
type Option func(*Registry)

// WithSweepInterval overrides how often the eviction sweep runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(r *Registry) {
		if interval > 0 {
			r.sweepInterval = interval
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a registry. recorder may be nil when stats are disabled.
func New(cfg *config.Config, orchestrator *batch.Orchestrator, recorder SubmissionRecorder, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		orchestrator:  orchestrator,
		recorder:      recorder,
		logger:        logging.NewComponentLogger(logger, "registry"),
		maxSize:       cfg.Batch.MaxSize,
		retention:     time.Duration(cfg.Batch.RetentionMinutes) * time.Minute,
		sweepInterval: time.Minute,
		now:           time.Now,
		jobs:          make(map[string]*batch.Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start makes the registry accept submissions and launches the eviction
// sweep. Jobs run until they finish or ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.runCtx, r.cancel = context.WithCancel(ctx)
	r.running = true

	r.wg.Add(1)
	go r.sweepLoop(r.runCtx)
}

// Stop rejects new submissions and waits for running jobs to wind down.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// Submit validates the raw identifiers, creates the job, and starts its
// orchestrator run. It returns the job ID immediately; progress is available
// through Job from the moment it returns.
func (r *Registry) Submit(ctx context.Context, requester string, rawIDs []string) (string, error) {
	ids, err := r.parseBatch(rawIDs)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	job := batch.NewJob(jobID, requester, ids, r.now())

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return "", ErrNotRunning
	}
	r.jobs[jobID] = job
	runCtx := r.runCtx
	r.wg.Add(1)
	r.mu.Unlock()

	if r.recorder != nil {
		if err := r.recorder.RecordSubmission(ctx, requester, len(ids), r.now()); err != nil {
			r.logger.Warn("recording submission failed", logging.Error(err))
		}
	}

	r.logger.Info("batch accepted",
		logging.String("job_id", jobID),
		logging.String("requester", requester),
		logging.Int("ids", len(ids)))

	go func() {
		defer r.wg.Done()
		r.orchestrator.Run(runCtx, job)
	}()

	return jobID, nil
}

func (r *Registry) parseBatch(rawIDs []string) ([]identifier.Identifier, error) {
	if len(rawIDs) == 0 {
		return nil, fmt.Errorf("%w: no identifiers given", ErrInvalidBatch)
	}

	seen := make(map[identifier.Identifier]struct{}, len(rawIDs))
	ids := make([]identifier.Identifier, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := identifier.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a verification identifier", ErrInvalidBatch, raw)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) > r.maxSize {
		return nil, fmt.Errorf("%w: %d identifiers exceeds the limit of %d", ErrInvalidBatch, len(ids), r.maxSize)
	}
	return ids, nil
}

// Job returns an immutable snapshot of one job.
func (r *Registry) Job(jobID string) (batch.Snapshot, error) {
	r.mu.RLock()
	job, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return batch.Snapshot{}, ErrNotFound
	}
	return job.Snapshot(), nil
}

// List returns snapshots of every retained job, newest first.
func (r *Registry) List() []batch.Snapshot {
	r.mu.RLock()
	snaps := make([]batch.Snapshot, 0, len(r.jobs))
	for _, job := range r.jobs {
		snaps = append(snaps, job.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].JobID < snaps[j].JobID
		}
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps
}

// Cancel requests cancellation of a whole job (no identifiers) or a subset.
// The orchestrator honors it at the next poll boundary.
func (r *Registry) Cancel(jobID string, rawIDs ...string) error {
	r.mu.RLock()
	job, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	if len(rawIDs) == 0 {
		job.RequestCancel()
		return nil
	}

	ids := make([]identifier.Identifier, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := identifier.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %q is not a verification identifier", ErrInvalidBatch, raw)
		}
		ids = append(ids, id)
	}
	job.RequestCancel(ids...)
	return nil
}

// ActiveCount returns how many retained jobs are not yet terminal.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active := 0
	for _, job := range r.jobs {
		if !job.State().Terminal() {
			active++
		}
	}
	return active
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

func (r *Registry) evictExpired() {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	for jobID, job := range r.jobs {
		finished := job.FinishedAt()
		if finished.IsZero() || finished.After(cutoff) {
			continue
		}
		delete(r.jobs, jobID)
		r.logger.Info("job evicted", logging.String("job_id", jobID))
	}
}
