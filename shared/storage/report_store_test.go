package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yash21saraf/revival.ai/internal/models"
)

func newTestStore(t *testing.T) *ReportStore {
	t.Helper()
	store, err := NewReportStore(t.TempDir(), 24*time.Hour)
	if err != nil {
		t.Fatalf("NewReportStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleStrategy(views float64) *models.RevivalStrategy {
	yes := true
	return &models.RevivalStrategy{
		OriginalVideoMetadata: &models.VideoMetadata{Title: "Old video", PublishDate: "2019-02-01", CurrentViews: 1200},
		Segments:              []models.Segment{{StartTime: "00:00", EndTime: "02:00", Summary: "intro", Subjects: []string{"setup"}, NeedsUpdate: &yes}},
		OutdatedItems:         []models.OutdatedItem{{Subject: "bundler", OldTool: "Webpack 3", NewTool: "Vite", Reason: "faster", ImpactScore: 7, AffectedSegmentIndices: []int{0}}},
		RevivalPlan:           &models.RevivalPlan{Title: "New", Description: "Desc", ScriptOutline: "# Outline"},
		PredictedViews:        views,
		PredictedEngagement:   42,
	}
}

func TestReportStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	report := &models.Report{
		VideoID:  "dQw4w9WgXcQ",
		VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Thinking: "Step 1.",
		Strategy: sampleStrategy(5000),
	}
	if err := store.Save(ctx, report); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if report.ID == "" || report.CreatedAt.IsZero() {
		t.Fatalf("Save() did not assign ID/CreatedAt: %+v", report)
	}

	got, err := store.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(report.Strategy, got.Strategy); diff != "" {
		t.Errorf("strategy round trip mismatch (-want +got):\n%s", diff)
	}
	if got.Thinking != "Step 1." || got.VideoID != report.VideoID {
		t.Errorf("Get() = %+v", got)
	}
	if !got.CreatedAt.Equal(report.CreatedAt.Truncate(time.Millisecond)) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, report.CreatedAt)
	}
}

func TestReportStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := store.Latest(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestReportStoreLatestAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i, views := range []float64{1, 2, 3} {
		r := &models.Report{
			VideoID:   "vid",
			VideoURL:  "u",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Strategy:  sampleStrategy(views),
		}
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	other := &models.Report{VideoID: "other", VideoURL: "u2", CreatedAt: base, Strategy: sampleStrategy(9)}
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	latest, err := store.Latest(ctx, "vid")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Strategy.PredictedViews != 3 {
		t.Errorf("Latest() views = %v, want 3", latest.Strategy.PredictedViews)
	}

	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Strategy.PredictedViews != 3 || list[1].Strategy.PredictedViews != 2 {
		t.Errorf("List(2) returned wrong reports")
	}
}

func TestReportStorePrune(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old := &models.Report{VideoID: "old", VideoURL: "u", CreatedAt: time.Now().Add(-48 * time.Hour), Strategy: sampleStrategy(1)}
	fresh := &models.Report{VideoID: "fresh", VideoURL: "u", Strategy: sampleStrategy(2)}
	for _, r := range []*models.Report{old, fresh} {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	if _, err := store.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired report still visible: %v", err)
	}

	n, err := store.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}
	count, err := store.Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("Count() = %d, %v, want 1", count, err)
	}
}

func TestReportStoreRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(context.Background(), &models.Report{VideoURL: "u"}); err == nil {
		t.Error("Save() without strategy should fail")
	}
}

func TestReportStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewReportStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewReportStore() error = %v", err)
	}
	r := &models.Report{VideoURL: "u", Strategy: sampleStrategy(4)}
	if err := store.Save(ctx, r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	store.Close()

	reopened, err := NewReportStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(ctx, r.ID); err != nil {
		t.Errorf("report lost across reopen: %v", err)
	}
}
