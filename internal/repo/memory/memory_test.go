package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
)

func seedTarget(t *testing.T, store *repo.Store, name string) *models.Target {
	t.Helper()
	target := &models.Target{Name: name, Status: models.StatusHealthy}
	if err := store.Targets.Create(context.Background(), target); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return target
}

func TestTargetLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tgt := seedTarget(t, store, "orders-db")
	if tgt.ID == "" {
		t.Fatal("expected generated target id")
	}

	found, err := store.Targets.FindByName(ctx, "orders-db")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if found.ID != tgt.ID {
		t.Fatalf("found id = %q, want %q", found.ID, tgt.ID)
	}

	if err := store.Targets.UpdateStatus(ctx, tgt.ID, models.StatusOffline); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := store.Targets.Get(ctx, tgt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusOffline {
		t.Fatalf("status = %q, want offline", got.Status)
	}

	if _, err := store.Targets.FindByName(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMetricsRangeQuery(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	tgt := seedTarget(t, store, "orders-db")
	other := seedTarget(t, store, "billing-db")

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s := &models.MetricSample{
			TargetID:   tgt.ID,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			CPUPercent: float64(i),
		}
		if err := store.Metrics.Insert(ctx, s); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := store.Metrics.Insert(ctx, &models.MetricSample{TargetID: other.ID, Timestamp: base}); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	got, err := store.Metrics.ListRange(ctx, tgt.ID, base.Add(2*time.Minute), base.Add(6*time.Minute), 0)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatal("samples not in chronological order")
		}
	}

	limited, err := store.Metrics.ListRange(ctx, tgt.ID, base, base.Add(time.Hour), 3)
	if err != nil {
		t.Fatalf("list range limited: %v", err)
	}
	if len(limited) != 3 {
		t.Fatalf("limited len = %d, want 3", len(limited))
	}
}

func TestIncidentResolveOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	tgt := seedTarget(t, store, "orders-db")

	inc := &models.Incident{
		TargetID:  tgt.ID,
		IssueType: "high_cpu",
		Severity:  models.SeverityCritical,
		Symptoms:  "CPU at 96.50%",
	}
	if err := store.Incidents.Create(ctx, inc); err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if inc.Status != models.IncidentOpen {
		t.Fatalf("status = %q, want open", inc.Status)
	}

	open, err := store.Incidents.HasUnresolved(ctx, tgt.ID, "high_cpu")
	if err != nil || !open {
		t.Fatalf("HasUnresolved = %v, %v; want true, nil", open, err)
	}

	res := models.Resolution{
		Status:       models.IncidentResolved,
		FixApplied:   "kill_query",
		AutoResolved: true,
	}
	if err := store.Incidents.Resolve(ctx, inc.ID, res); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := store.Incidents.Resolve(ctx, inc.ID, res); !errors.Is(err, repo.ErrAlreadyResolved) {
		t.Fatalf("second resolve err = %v, want ErrAlreadyResolved", err)
	}

	got, err := store.Incidents.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResolvedAt == nil {
		t.Fatal("expected ResolvedAt on resolved incident")
	}
	if got.TargetName != "orders-db" {
		t.Fatalf("target name = %q, want orders-db", got.TargetName)
	}

	open, err = store.Incidents.HasUnresolved(ctx, tgt.ID, "high_cpu")
	if err != nil || open {
		t.Fatalf("HasUnresolved after resolve = %v, %v; want false, nil", open, err)
	}
}

func TestIncidentFailedHasNoResolvedAt(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	tgt := seedTarget(t, store, "orders-db")

	inc := &models.Incident{TargetID: tgt.ID, IssueType: "memory_pressure", Severity: models.SeverityHigh}
	if err := store.Incidents.Create(ctx, inc); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Incidents.Resolve(ctx, inc.ID, models.Resolution{
		Status:          models.IncidentFailed,
		ResolutionNotes: "remediation failed",
	})
	if err != nil {
		t.Fatalf("resolve to failed: %v", err)
	}
	got, _ := store.Incidents.Get(ctx, inc.ID)
	if got.Status != models.IncidentFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ResolvedAt != nil {
		t.Fatal("failed incident must not carry ResolvedAt")
	}
}

func TestListResolvedReturnsEmbeddings(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	tgt := seedTarget(t, store, "orders-db")

	inc := &models.Incident{TargetID: tgt.ID, IssueType: "high_cpu", Severity: models.SeverityCritical}
	if err := store.Incidents.Create(ctx, inc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Incidents.SetEmbedding(ctx, inc.ID, []float32{0.1, 0.2, 0.3}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	if err := store.Incidents.Resolve(ctx, inc.ID, models.Resolution{Status: models.IncidentResolved}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	resolved, err := store.Incidents.ListResolved(ctx)
	if err != nil {
		t.Fatalf("list resolved: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("len = %d, want 1", len(resolved))
	}
	if len(resolved[0].SymptomsEmbedding) != 3 {
		t.Fatalf("embedding len = %d, want 3", len(resolved[0].SymptomsEmbedding))
	}
}

func TestAgentActionAudit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	act := &models.AgentAction{
		IncidentID:      "inc-1",
		ActionType:      models.ActionKillQuery,
		ConfidenceScore: 92,
		Status:          models.ActionPending,
	}
	if err := store.AgentActions.Create(ctx, act); err != nil {
		t.Fatalf("create action: %v", err)
	}
	if err := store.AgentActions.UpdateStatus(ctx, act.ID, models.ActionSuccess, "killed pid 4411", 125); err != nil {
		t.Fatalf("update status: %v", err)
	}

	recent, err := store.AgentActions.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != models.ActionSuccess || recent[0].ExecutionTimeMs != 125 {
		t.Fatalf("unexpected action record: %+v", recent)
	}
}

func TestActionHistoryOrderingAndWindow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	tgt := seedTarget(t, store, "orders-db")

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := &models.ActionHistoryEntry{
			TargetID:   tgt.ID,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			ActionType: "backup_verification",
			ExecutedBy: models.ExecutedBySchedule,
			Success:    true,
		}
		if err := store.ActionHistory.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
		if e.TargetName != "orders-db" {
			t.Fatalf("target name not resolved on append: %q", e.TargetName)
		}
	}

	recent, err := store.ActionHistory.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || !recent[0].Timestamp.After(recent[1].Timestamp) {
		t.Fatalf("expected 2 newest-first entries, got %+v", recent)
	}

	since, err := store.ActionHistory.ListSince(ctx, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("since len = %d, want 2", len(since))
	}
}
