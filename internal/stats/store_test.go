package stats_test

import (
	"context"
	"testing"
	"time"

	"veribatch/internal/identifier"
	"veribatch/internal/stats"
	"veribatch/internal/testsupport"
)

const testID = identifier.Identifier("5f2a9c1b3e4d6a7b8c9d0e1f")

func openStore(t *testing.T) *stats.Store {
	t.Helper()
	store, err := stats.Open(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndQueryRequester(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.RecordSubmission(ctx, "alice", 3, now); err != nil {
		t.Fatalf("record submission: %v", err)
	}
	if err := store.RecordSubmission(ctx, "alice", 2, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("record old submission: %v", err)
	}
	if err := store.RecordSubmission(ctx, "bob", 1, now); err != nil {
		t.Fatalf("record submission: %v", err)
	}
	if err := store.RecordOutcome(ctx, "alice", testID, "success", now); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if err := store.RecordOutcome(ctx, "alice", testID, "failure", now); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	got, err := store.ForRequester(ctx, "alice")
	if err != nil {
		t.Fatalf("for requester: %v", err)
	}
	if got.Submissions != 2 || got.Identifiers != 5 {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if got.SubmissionsInDay != 1 {
		t.Fatalf("24h window should exclude old submissions: %+v", got)
	}
	if got.Outcomes["success"] != 1 || got.Outcomes["failure"] != 1 {
		t.Fatalf("unexpected outcomes: %+v", got.Outcomes)
	}
}

func TestTotals(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, requester := range []string{"alice", "alice", "bob"} {
		if err := store.RecordSubmission(ctx, requester, 1, now); err != nil {
			t.Fatalf("record submission: %v", err)
		}
	}
	if err := store.RecordOutcome(ctx, "bob", testID, "cancelled", now); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Submissions != 3 || totals.Identifiers != 3 || totals.Requesters != 2 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if totals.Outcomes["cancelled"] != 1 {
		t.Fatalf("unexpected outcomes: %+v", totals.Outcomes)
	}
}

func TestTopRequesters(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := store.RecordSubmission(ctx, "alice", 1, now); err != nil {
			t.Fatalf("record submission: %v", err)
		}
	}
	if err := store.RecordSubmission(ctx, "bob", 1, now); err != nil {
		t.Fatalf("record submission: %v", err)
	}
	if err := store.RecordSubmission(ctx, "carol", 1, now.Add(-72*time.Hour)); err != nil {
		t.Fatalf("record old submission: %v", err)
	}

	top, err := store.TopRequesters(ctx, 10, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("top requesters: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 requesters in window, got %v", top)
	}
	if top[0].Requester != "alice" || top[0].Submissions != 3 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].Requester != "bob" {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := stats.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.RecordSubmission(context.Background(), "alice", 1, time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := stats.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	totals, err := second.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Submissions != 1 {
		t.Fatalf("data lost across reopen: %+v", totals)
	}
}
