package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"veribatch/internal/config"
	"veribatch/internal/identifier"
	"veribatch/internal/logging"
	"veribatch/internal/onekey"
)

// ErrPollTimeout indicates the poll attempt budget ran out before every
// identifier reached a terminal outcome.
var ErrPollTimeout = errors.New("poll attempt budget exhausted")

// TokenSource supplies CSRF tokens and accepts invalidation after a
// rejection.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Verifier is the upstream service surface the orchestrator drives.
type Verifier interface {
	SubmitBatch(ctx context.Context, ids []identifier.Identifier, csrf string) (*onekey.SubmitResult, error)
	CheckStatus(ctx context.Context, checkToken, csrf string) (*onekey.Result, error)
	Cancel(ctx context.Context, id identifier.Identifier, csrf string) (*onekey.CancelResult, error)
}

// OutcomeRecorder receives one event per identifier reaching a terminal
// outcome.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, requester string, id identifier.Identifier, outcome string, at time.Time) error
}

// Orchestrator runs batch jobs against the verification service. One
// orchestrator serves any number of concurrent jobs.
type Orchestrator struct {
	tokens      TokenSource
	verifier    Verifier
	recorder    OutcomeRecorder
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
}

// OrchestratorOption customizes orchestrator construction.
type OrchestratorOption func(*Orchestrator)

// WithPollInterval overrides the configured poll interval. Tests use this to
// avoid real waits.
func WithPollInterval(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.interval = interval
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator builds an orchestrator. recorder may be nil when stats are
// disabled.
func NewOrchestrator(cfg *config.Config, tokens TokenSource, verifier Verifier, recorder OutcomeRecorder, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		tokens:      tokens,
		verifier:    verifier,
		recorder:    recorder,
		logger:      logging.NewComponentLogger(logger, "orchestrator"),
		interval:    time.Duration(cfg.Polling.Interval) * time.Second,
		maxAttempts: cfg.Polling.MaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives one job to a terminal state. It blocks until done and never
// returns an error: failures are recorded on the job itself.
func (o *Orchestrator) Run(ctx context.Context, job *Job) {
	logger := o.logger.With(logging.String("job_id", job.ID()))
	logger.Info("submitting batch", logging.Int("ids", len(job.IDs())))

	job.setState(StateSubmitting, o.now())
	submitted, err := o.submit(ctx, job)
	if err != nil {
		o.failJob(ctx, logger, job, err)
		return
	}

	for _, vid := range job.IDs() {
		if res, ok := submitted.Results[vid]; ok {
			o.mergeAndRecord(ctx, logger, job, res)
		}
	}
	for _, res := range job.failUnpollable(o.now()) {
		logger.Warn("identifier has no check token, failing it", logging.String("identifier", res.ID.String()))
		o.recordOutcome(ctx, logger, job, res)
	}

	job.setState(StatePolling, o.now())
	o.poll(ctx, logger, job)
}

func (o *Orchestrator) poll(ctx context.Context, logger *slog.Logger, job *Job) {
	for attempt := 0; ; attempt++ {
		for _, res := range job.applyCancellations(o.now()) {
			logger.Info("identifier cancelled", logging.String("identifier", res.ID.String()))
			o.hintUpstreamCancel(ctx, logger, res.ID)
			o.recordOutcome(ctx, logger, job, res)
		}

		if job.allTerminal() {
			o.finish(logger, job)
			return
		}
		if attempt >= o.maxAttempts {
			o.failJob(ctx, logger, job, ErrPollTimeout)
			return
		}

		select {
		case <-ctx.Done():
			o.failJob(ctx, logger, job, errors.New("daemon stopped before batch completed"))
			return
		case <-time.After(o.interval):
		}

		csrf, err := o.tokens.Token(ctx)
		if err != nil {
			o.failJob(ctx, logger, job, err)
			return
		}

		for _, pending := range job.pendingTokens() {
			res, err := o.checkOnce(ctx, pending.token, csrf)
			if err != nil {
				o.failJob(ctx, logger, job, err)
				return
			}
			// Some status responses omit the identifier; the token binds it.
			res.ID = pending.id
			o.mergeAndRecord(ctx, logger, job, *res)
		}
	}
}

// submit acquires a token and submits, invalidating and retrying once on a
// CSRF rejection.
func (o *Orchestrator) submit(ctx context.Context, job *Job) (*onekey.SubmitResult, error) {
	csrf, err := o.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	res, err := o.verifier.SubmitBatch(ctx, job.IDs(), csrf)
	if !errors.Is(err, onekey.ErrCsrfRejected) {
		return res, err
	}

	o.tokens.Invalidate()
	csrf, err = o.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return o.verifier.SubmitBatch(ctx, job.IDs(), csrf)
}

// checkOnce polls one check token, invalidating and retrying once on a CSRF
// rejection.
func (o *Orchestrator) checkOnce(ctx context.Context, checkToken, csrf string) (*onekey.Result, error) {
	res, err := o.verifier.CheckStatus(ctx, checkToken, csrf)
	if !errors.Is(err, onekey.ErrCsrfRejected) {
		return res, err
	}

	o.tokens.Invalidate()
	csrf, err = o.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return o.verifier.CheckStatus(ctx, checkToken, csrf)
}

func (o *Orchestrator) mergeAndRecord(ctx context.Context, logger *slog.Logger, job *Job, res onekey.Result) {
	merged, becameTerminal := job.merge(res, o.now())
	if becameTerminal {
		logger.Info("identifier resolved",
			logging.String("identifier", merged.ID.String()),
			logging.String("outcome", string(merged.Outcome)))
		o.recordOutcome(ctx, logger, job, merged)
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, logger *slog.Logger, job *Job, res Result) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordOutcome(ctx, job.Requester(), res.ID, string(res.Outcome), o.now()); err != nil {
		logger.Warn("recording outcome failed", logging.Error(err))
	}
}

// hintUpstreamCancel tells the service to stop work on a cancelled
// identifier. Local state is already final, so errors are only logged.
func (o *Orchestrator) hintUpstreamCancel(ctx context.Context, logger *slog.Logger, id identifier.Identifier) {
	csrf, err := o.tokens.Token(ctx)
	if err != nil {
		logger.Debug("skipping upstream cancel hint", logging.Error(err))
		return
	}
	if _, err := o.verifier.Cancel(ctx, id, csrf); err != nil {
		logger.Debug("upstream cancel hint failed",
			logging.String("identifier", id.String()),
			logging.Error(err))
	}
}

func (o *Orchestrator) failJob(ctx context.Context, logger *slog.Logger, job *Job, cause error) {
	job.setError(cause.Error())
	for _, res := range job.failPending(cause.Error(), o.now()) {
		o.recordOutcome(ctx, logger, job, res)
	}
	job.setState(StateFailed, o.now())
	logger.Error("batch failed", logging.Error(cause))
}

func (o *Orchestrator) finish(logger *slog.Logger, job *Job) {
	state := StateCompleted
	if job.CancelAllRequested() {
		state = StateCancelled
	}
	job.setState(state, o.now())
	logger.Info("batch finished", logging.String("state", string(state)))
}
