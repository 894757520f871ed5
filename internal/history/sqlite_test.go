package history

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id, err := store.Begin(ctx, "webhook", started)
	if err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a run id")
	}

	runs, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("failed to get runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, runs[0].Status)
	}
	if runs[0].Source != "webhook" {
		t.Errorf("expected source webhook, got %s", runs[0].Source)
	}
	if !runs[0].StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, runs[0].StartedAt)
	}
	if runs[0].FinishedAt != nil {
		t.Errorf("expected no finished_at on a running run")
	}

	finished := started.Add(30 * time.Second)
	err = store.Finish(ctx, id, StatusSuccess, "abc123", "", finished)
	if err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	runs, err = store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("failed to get runs: %v", err)
	}
	run := runs[0]
	if run.Status != StatusSuccess {
		t.Errorf("expected status %s, got %s", StatusSuccess, run.Status)
	}
	if run.CommitHash != "abc123" {
		t.Errorf("expected commit abc123, got %s", run.CommitHash)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(finished) {
		t.Errorf("expected finished_at %v, got %v", finished, run.FinishedAt)
	}
}

func TestFinishFailedRunKeepsError(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	id, err := store.Begin(ctx, "scheduled", time.Now())
	if err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}

	err = store.Finish(ctx, id, StatusFailed, "def456", "clone failed: repository not found", time.Now())
	if err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	runs, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("failed to get runs: %v", err)
	}
	if runs[0].Error != "clone failed: repository not found" {
		t.Errorf("unexpected error message: %q", runs[0].Error)
	}
	if runs[0].CommitHash != "def456" {
		t.Errorf("expected failed commit to be recorded, got %q", runs[0].CommitHash)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := newTestStore(t)

	err := store.Finish(t.Context(), "no-such-id", StatusSuccess, "", "", time.Now())
	if err == nil {
		t.Fatalf("expected error for unknown run id")
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		_, err := store.Begin(ctx, "scheduled", base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("failed to begin run: %v", err)
		}
	}

	runs, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("failed to get runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Errorf("runs out of order: %v before %v", runs[i-1].StartedAt, runs[i].StartedAt)
		}
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range 10 {
		_, err := store.Begin(ctx, "poll", base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("failed to begin run: %v", err)
		}
	}

	if err := store.Prune(ctx, 4); err != nil {
		t.Fatalf("failed to prune: %v", err)
	}

	runs, err := store.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("failed to get runs: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("expected 4 runs after prune, got %d", len(runs))
	}
	if !runs[0].StartedAt.Equal(base.Add(9 * time.Minute)) {
		t.Errorf("expected newest run kept, got %v", runs[0].StartedAt)
	}
}
