package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/medcache/pkg/models"
	"github.com/pario-ai/medcache/pkg/store"
)

var _ store.Sink = (*Sink)(nil)

func mustNew(t *testing.T, retentionDays int) *Sink {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "sink_test.db"), retentionDays, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func removal(key string, reason models.RemovalReason, at time.Time) models.RemovalEvent {
	return models.RemovalEvent{
		RunID:     "run-1",
		Key:       key,
		Category:  models.CategoryDevelopment,
		Reason:    reason,
		Priority:  20,
		Strategy:  "hybrid",
		CreatedAt: at,
	}
}

func TestRecordAndQueryRemovals(t *testing.T) {
	s := mustNew(t, 0)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	err := s.RecordRemovals(ctx, []models.RemovalEvent{
		removal(`{"q":"a"}`, models.RemovalEvicted, now.Add(-time.Minute)),
		removal(`{"q":"b"}`, models.RemovalExpired, now),
	})
	if err != nil {
		t.Fatalf("RecordRemovals: %v", err)
	}

	events, err := s.Removals(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("Removals: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Key != `{"q":"b"}` {
		t.Errorf("expected newest first, got %s", events[0].Key)
	}
	if events[1].Strategy != "hybrid" || events[1].Category != models.CategoryDevelopment {
		t.Errorf("unexpected event: %+v", events[1])
	}

	evicted, err := s.Removals(ctx, QueryOpts{Reason: models.RemovalEvicted})
	if err != nil {
		t.Fatalf("Removals: %v", err)
	}
	if len(evicted) != 1 || evicted[0].Reason != models.RemovalEvicted {
		t.Errorf("expected 1 evicted event, got %+v", evicted)
	}
}

func TestRecordRemovalsEmpty(t *testing.T) {
	s := mustNew(t, 0)
	if err := s.RecordRemovals(context.Background(), nil); err != nil {
		t.Fatalf("RecordRemovals: %v", err)
	}
}

func TestRemovalsLimit(t *testing.T) {
	s := mustNew(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	var events []models.RemovalEvent
	for i := 0; i < 5; i++ {
		events = append(events, removal("k", models.RemovalInvalidated, now.Add(time.Duration(i)*time.Second)))
	}
	if err := s.RecordRemovals(ctx, events); err != nil {
		t.Fatalf("RecordRemovals: %v", err)
	}

	got, err := s.Removals(ctx, QueryOpts{Limit: 3})
	if err != nil {
		t.Fatalf("Removals: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 events, got %d", len(got))
	}
}

func TestRemovalCounts(t *testing.T) {
	s := mustNew(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.RecordRemovals(ctx, []models.RemovalEvent{
		removal("a", models.RemovalEvicted, now),
		removal("b", models.RemovalEvicted, now),
		removal("c", models.RemovalExpired, now),
	})
	if err != nil {
		t.Fatalf("RecordRemovals: %v", err)
	}

	counts, err := s.RemovalCounts(ctx)
	if err != nil {
		t.Fatalf("RemovalCounts: %v", err)
	}
	want := map[models.RemovalReason]int64{models.RemovalEvicted: 2, models.RemovalExpired: 1}
	if len(counts) != len(want) {
		t.Fatalf("expected %d reasons, got %+v", len(want), counts)
	}
	for _, c := range counts {
		if want[c.Reason] != c.Count {
			t.Errorf("%s: expected %d, got %d", c.Reason, want[c.Reason], c.Count)
		}
	}
}

func TestRecordAndQuerySnapshots(t *testing.T) {
	s := mustNew(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"snap-1", "snap-2"} {
		snap := models.Snapshot{
			ID:          id,
			Cache:       models.CacheStats{Entries: int64(10 * (i + 1)), Hits: 7, HitRate: 0.7},
			Prioritizer: models.PrioritizerStats{TrackedItems: 4, Strategy: "hybrid"},
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordSnapshot(ctx, snap); err != nil {
			t.Fatalf("RecordSnapshot: %v", err)
		}
	}

	snaps, err := s.Snapshots(ctx, 10)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].ID != "snap-2" || snaps[0].Cache.Entries != 20 {
		t.Errorf("unexpected newest snapshot: %+v", snaps[0])
	}
	if snaps[1].Prioritizer.Strategy != "hybrid" || snaps[1].Cache.HitRate != 0.7 {
		t.Errorf("snapshot did not round-trip: %+v", snaps[1])
	}
}

func TestCleanup(t *testing.T) {
	s := mustNew(t, 30)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.RecordRemovals(ctx, []models.RemovalEvent{
		removal("old", models.RemovalExpired, now.AddDate(0, 0, -45)),
		removal("new", models.RemovalExpired, now),
	})
	if err != nil {
		t.Fatalf("RecordRemovals: %v", err)
	}
	if err := s.RecordSnapshot(ctx, models.Snapshot{ID: "old", CreatedAt: now.AddDate(0, 0, -31)}); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	n, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows deleted, got %d", n)
	}

	events, _ := s.Removals(ctx, QueryOpts{})
	if len(events) != 1 || events[0].Key != "new" {
		t.Errorf("expected only the recent event to remain, got %+v", events)
	}
}

func TestCleanupDisabled(t *testing.T) {
	s := mustNew(t, 0)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(-1, 0, 0)

	if err := s.RecordRemovals(ctx, []models.RemovalEvent{removal("old", models.RemovalExpired, old)}); err != nil {
		t.Fatalf("RecordRemovals: %v", err)
	}
	n, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing deleted with retention off, got %d", n)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "close.db"), 7, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = s.Close()
}
