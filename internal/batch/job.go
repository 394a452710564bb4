package batch

import (
	"sync"
	"time"

	"veribatch/internal/identifier"
	"veribatch/internal/onekey"
)

// State is the lifecycle state of a batch job.
type State string

const (
	StateCreated    State = "created"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the job state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Result is the last-known verification state for one identifier in a job.
type Result struct {
	ID      identifier.Identifier
	Outcome onekey.Outcome
	Message string
}

// Snapshot is an immutable copy of job state. Results follow batch order.
type Snapshot struct {
	JobID      string
	Requester  string
	State      State
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Job tracks one submitted batch. All mutation happens through the
// orchestrator running it; other goroutines interact only via Snapshot and
// RequestCancel.
type Job struct {
	id        string
	requester string
	ids       []identifier.Identifier

	mu          sync.Mutex
	state       State
	errMsg      string
	createdAt   time.Time
	updatedAt   time.Time
	finishedAt  time.Time
	results     map[identifier.Identifier]*Result
	checkTokens map[identifier.Identifier]string
	cancelIDs   map[identifier.Identifier]bool
	cancelAll   bool
}

// NewJob creates a job in the created state with every identifier pending.
func NewJob(id, requester string, ids []identifier.Identifier, now time.Time) *Job {
	job := &Job{
		id:          id,
		requester:   requester,
		ids:         append([]identifier.Identifier{}, ids...),
		state:       StateCreated,
		createdAt:   now,
		updatedAt:   now,
		results:     make(map[identifier.Identifier]*Result, len(ids)),
		checkTokens: make(map[identifier.Identifier]string),
		cancelIDs:   make(map[identifier.Identifier]bool),
	}
	for _, vid := range job.ids {
		job.results[vid] = &Result{ID: vid, Outcome: onekey.OutcomePending}
	}
	return job
}

func (j *Job) ID() string { return j.id }

func (j *Job) Requester() string { return j.requester }

// IDs returns the batch identifiers in submission order.
func (j *Job) IDs() []identifier.Identifier {
	return append([]identifier.Identifier{}, j.ids...)
}

// Snapshot copies the current job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := Snapshot{
		JobID:      j.id,
		Requester:  j.requester,
		State:      j.state,
		Error:      j.errMsg,
		CreatedAt:  j.createdAt,
		UpdatedAt:  j.updatedAt,
		FinishedAt: j.finishedAt,
		Results:    make([]Result, 0, len(j.ids)),
	}
	for _, vid := range j.ids {
		snap.Results = append(snap.Results, *j.results[vid])
	}
	return snap
}

// RequestCancel asks the orchestrator to cancel the whole job (no arguments)
// or a subset of identifiers. The request takes effect at the next poll
// boundary; identifiers that are already terminal keep their outcome.
func (j *Job) RequestCancel(ids ...identifier.Identifier) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(ids) == 0 {
		j.cancelAll = true
		return
	}
	for _, vid := range ids {
		if _, ok := j.results[vid]; ok {
			j.cancelIDs[vid] = true
		}
	}
}

// CancelAllRequested reports whether a whole-job cancellation was requested.
func (j *Job) CancelAllRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelAll
}

func (j *Job) setState(state State, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
	j.updatedAt = now
	if state.Terminal() {
		j.finishedAt = now
	}
}

// FinishedAt returns when the job reached a terminal state, zero otherwise.
func (j *Job) FinishedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// merge folds one service result into the job. The first terminal outcome
// per identifier wins; later observations never overwrite it. Returns the
// stored result and whether this call made it terminal.
func (j *Job) merge(res onekey.Result, now time.Time) (Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	current, ok := j.results[res.ID]
	if !ok || current.Outcome.Terminal() {
		if ok {
			return *current, false
		}
		return Result{}, false
	}

	if res.Outcome.Terminal() {
		current.Outcome = res.Outcome
		current.Message = res.Message
		delete(j.checkTokens, res.ID)
		j.updatedAt = now
		return *current, true
	}

	current.Message = res.Message
	if res.CheckToken != "" {
		j.checkTokens[res.ID] = res.CheckToken
	}
	j.updatedAt = now
	return *current, false
}

// pendingTokens returns a copy of the check tokens still awaiting a terminal
// outcome, in batch order.
func (j *Job) pendingTokens() []pendingToken {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]pendingToken, 0, len(j.checkTokens))
	for _, vid := range j.ids {
		if token, ok := j.checkTokens[vid]; ok {
			out = append(out, pendingToken{id: vid, token: token})
		}
	}
	return out
}

type pendingToken struct {
	id    identifier.Identifier
	token string
}

// applyCancellations marks requested, still-pending identifiers as cancelled
// and returns them so the orchestrator can hint the service and record stats.
func (j *Job) applyCancellations(now time.Time) []Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	var cancelled []Result
	for _, vid := range j.ids {
		if !j.cancelAll && !j.cancelIDs[vid] {
			continue
		}
		current := j.results[vid]
		if current.Outcome.Terminal() {
			continue
		}
		current.Outcome = onekey.OutcomeCancelled
		current.Message = "cancelled by request"
		delete(j.checkTokens, vid)
		cancelled = append(cancelled, *current)
	}
	if len(cancelled) > 0 {
		j.updatedAt = now
	}
	j.cancelIDs = make(map[identifier.Identifier]bool)
	return cancelled
}

// failPending marks every non-terminal identifier as failed with the given
// message and returns the newly failed results.
func (j *Job) failPending(message string, now time.Time) []Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	var failed []Result
	for _, vid := range j.ids {
		current := j.results[vid]
		if current.Outcome.Terminal() {
			continue
		}
		current.Outcome = onekey.OutcomeFailure
		current.Message = message
		delete(j.checkTokens, vid)
		failed = append(failed, *current)
	}
	if len(failed) > 0 {
		j.updatedAt = now
	}
	return failed
}

// failUnpollable marks identifiers that are neither terminal nor pollable
// (no check token from the service) as failed.
func (j *Job) failUnpollable(now time.Time) []Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	var failed []Result
	for _, vid := range j.ids {
		current := j.results[vid]
		if current.Outcome.Terminal() {
			continue
		}
		if _, ok := j.checkTokens[vid]; ok {
			continue
		}
		current.Outcome = onekey.OutcomeFailure
		current.Message = "service returned no check token"
		failed = append(failed, *current)
	}
	if len(failed) > 0 {
		j.updatedAt = now
	}
	return failed
}

// allTerminal reports whether every identifier has a final outcome.
func (j *Job) allTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, res := range j.results {
		if !res.Outcome.Terminal() {
			return false
		}
	}
	return true
}

func (j *Job) setError(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errMsg = message
}
