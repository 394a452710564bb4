package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"veribatch/internal/batch"
	"veribatch/internal/config"
	"veribatch/internal/identifier"
	"veribatch/internal/logging"
	"veribatch/internal/onekey"
	"veribatch/internal/registry"
)

const (
	rawOne = "5f2a9c1b3e4d6a7b8c9d0e1f"
	rawTwo = "aaaaaaaaaaaaaaaaaaaaaaaa"
)

type staticTokens struct{}

func (staticTokens) Token(context.Context) (string, error) { return "csrf", nil }

func (staticTokens) Invalidate() {}

// succeedingVerifier resolves every identifier as success on the stream.
type succeedingVerifier struct{}

func (succeedingVerifier) SubmitBatch(_ context.Context, ids []identifier.Identifier, _ string) (*onekey.SubmitResult, error) {
	results := make(map[identifier.Identifier]onekey.Result, len(ids))
	for _, id := range ids {
		results[id] = onekey.Result{ID: id, Outcome: onekey.OutcomeSuccess}
	}
	return &onekey.SubmitResult{Results: results}, nil
}

func (succeedingVerifier) CheckStatus(context.Context, string, string) (*onekey.Result, error) {
	return nil, errors.New("unexpected status poll")
}

func (succeedingVerifier) Cancel(context.Context, identifier.Identifier, string) (*onekey.CancelResult, error) {
	return &onekey.CancelResult{Cancelled: true}, nil
}

type countingRecorder struct {
	mu          sync.Mutex
	submissions int
}

func (c *countingRecorder) RecordSubmission(_ context.Context, _ string, _ int, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions++
	return nil
}

func (c *countingRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissions
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRegistry(t *testing.T, clock *testClock, recorder registry.SubmissionRecorder) *registry.Registry {
	t.Helper()
	cfg := config.Default()
	cfg.Service.APIKey = "key"

	opts := []batch.OrchestratorOption{batch.WithPollInterval(time.Millisecond)}
	if clock != nil {
		opts = append(opts, batch.WithClock(clock.Now))
	}
	orch := batch.NewOrchestrator(&cfg, staticTokens{}, succeedingVerifier{}, nil, logging.NewNop(), opts...)

	regOpts := []registry.Option{registry.WithSweepInterval(5 * time.Millisecond)}
	if clock != nil {
		regOpts = append(regOpts, registry.WithClock(clock.Now))
	}
	reg := registry.New(&cfg, orch, recorder, logging.NewNop(), regOpts...)
	reg.Start(context.Background())
	t.Cleanup(reg.Stop)
	return reg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	recorder := &countingRecorder{}
	reg := newRegistry(t, nil, recorder)

	jobID, err := reg.Submit(context.Background(), "alice", []string{rawOne, rawTwo})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID == "" {
		t.Fatal("empty job id")
	}

	waitFor(t, "job completion", func() bool {
		snap, err := reg.Job(jobID)
		return err == nil && snap.State == batch.StateCompleted
	})

	snap, err := reg.Job(jobID)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if len(snap.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(snap.Results))
	}
	for _, res := range snap.Results {
		if res.Outcome != onekey.OutcomeSuccess {
			t.Fatalf("unexpected outcome: %+v", res)
		}
	}
	if recorder.count() != 1 {
		t.Fatalf("expected 1 submission recorded, got %d", recorder.count())
	}
}

func TestSubmitValidation(t *testing.T) {
	reg := newRegistry(t, nil, nil)

	cases := []struct {
		name string
		ids  []string
	}{
		{"empty", nil},
		{"malformed", []string{"not-hex"}},
		{"too many", []string{
			"000000000000000000000001",
			"000000000000000000000002",
			"000000000000000000000003",
			"000000000000000000000004",
			"000000000000000000000005",
			"000000000000000000000006",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := reg.Submit(context.Background(), "alice", tc.ids); !errors.Is(err, registry.ErrInvalidBatch) {
				t.Fatalf("expected ErrInvalidBatch, got %v", err)
			}
		})
	}
}

func TestSubmitDeduplicates(t *testing.T) {
	reg := newRegistry(t, nil, nil)

	jobID, err := reg.Submit(context.Background(), "alice", []string{
		rawOne,
		"https://batch.1key.me/?id=" + rawOne, // same identifier, URL shape
		rawTwo,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap, err := reg.Job(jobID)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if len(snap.Results) != 2 {
		t.Fatalf("duplicates not collapsed: %d results", len(snap.Results))
	}
}

func TestSubmitAfterStopRejected(t *testing.T) {
	reg := newRegistry(t, nil, nil)
	reg.Stop()

	if _, err := reg.Submit(context.Background(), "alice", []string{rawOne}); !errors.Is(err, registry.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestJobUnknown(t *testing.T) {
	reg := newRegistry(t, nil, nil)
	if _, err := reg.Job("nope"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := reg.Cancel("nope"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	clock := &testClock{now: time.Now()}
	reg := newRegistry(t, clock, nil)

	first, err := reg.Submit(context.Background(), "alice", []string{rawOne})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	clock.Advance(time.Second)
	second, err := reg.Submit(context.Background(), "bob", []string{rawTwo})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snaps := reg.List()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(snaps))
	}
	if snaps[0].JobID != second || snaps[1].JobID != first {
		t.Fatalf("unexpected order: %s, %s", snaps[0].JobID, snaps[1].JobID)
	}
}

func TestRetentionEviction(t *testing.T) {
	clock := &testClock{now: time.Now()}
	reg := newRegistry(t, clock, nil)

	jobID, err := reg.Submit(context.Background(), "alice", []string{rawOne})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "job completion", func() bool {
		snap, err := reg.Job(jobID)
		return err == nil && snap.State.Terminal()
	})

	// Within the retention window the job stays queryable.
	clock.Advance(30 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if _, err := reg.Job(jobID); err != nil {
		t.Fatalf("job evicted too early: %v", err)
	}

	clock.Advance(31 * time.Minute)
	waitFor(t, "eviction", func() bool {
		_, err := reg.Job(jobID)
		return errors.Is(err, registry.ErrNotFound)
	})
}
