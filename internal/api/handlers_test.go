package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo/memory"
	"github.com/nightwatchhq/nightwatch-agent/internal/services"
)

func newTestAPI(t *testing.T) (*gin.Engine, *repo.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queries := services.NewQueryService(store, nil, nil, logger, 0)
	handlers := NewHandlers(queries, nil, logger)
	router := gin.New()
	handlers.Register(router)
	return router, store
}

func get(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return rec, body
}

func seedFleet(t *testing.T, store *repo.Store) *models.Target {
	t.Helper()
	ctx := context.Background()
	target := &models.Target{Name: "orders-db", Status: models.StatusHealthy}
	if err := store.Targets.Create(ctx, target); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return target
}

func TestHealthz(t *testing.T) {
	router, _ := newTestAPI(t)
	rec, body := get(t, router, "/healthz")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", rec.Code, body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	router, store := newTestAPI(t)
	seedFleet(t, store)

	rec, body := get(t, router, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["status"] != "operational" || body["monitoredDatabases"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
}

func TestDatabasesEndpoint(t *testing.T) {
	router, store := newTestAPI(t)
	seedFleet(t, store)

	rec, body := get(t, router, "/api/databases")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("databases = %d %v", rec.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, store := newTestAPI(t)
	target := seedFleet(t, store)

	sample := &models.MetricSample{
		TargetID:   target.ID,
		Timestamp:  time.Now().UTC().Add(-time.Minute),
		CPUPercent: 42,
	}
	if err := store.Metrics.Insert(context.Background(), sample); err != nil {
		t.Fatalf("insert sample: %v", err)
	}

	rec, body := get(t, router, "/api/metrics/"+target.ID+"?range=15m")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("metrics = %d %v", rec.Code, body)
	}

	rec, _ = get(t, router, "/api/metrics/no-such-id")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing target code = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpointExplicitWindow(t *testing.T) {
	router, store := newTestAPI(t)
	target := seedFleet(t, store)

	sample := &models.MetricSample{
		TargetID:   target.ID,
		Timestamp:  time.Now().UTC().Add(-30 * time.Minute),
		CPUPercent: 55,
	}
	if err := store.Metrics.Insert(context.Background(), sample); err != nil {
		t.Fatalf("insert sample: %v", err)
	}

	from := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	rec, body := get(t, router, "/api/metrics/"+target.ID+"?from="+from)
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("explicit window = %d %v", rec.Code, body)
	}

	rec, _ = get(t, router, "/api/metrics/"+target.ID+"?from=not-a-time")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad from code = %d, want 400", rec.Code)
	}
}

func TestIncidentsEndpointFiltersStatus(t *testing.T) {
	router, store := newTestAPI(t)
	target := seedFleet(t, store)
	ctx := context.Background()

	open := &models.Incident{TargetID: target.ID, IssueType: "high_cpu", Severity: models.SeverityCritical}
	done := &models.Incident{TargetID: target.ID, IssueType: "memory_pressure", Severity: models.SeverityHigh}
	for _, inc := range []*models.Incident{open, done} {
		if err := store.Incidents.Create(ctx, inc); err != nil {
			t.Fatalf("create incident: %v", err)
		}
	}
	if err := store.Incidents.Resolve(ctx, done.ID, models.Resolution{Status: models.IncidentResolved}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	rec, body := get(t, router, "/api/incidents?status=open")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("open incidents = %d %v", rec.Code, body)
	}
	incidents := body["incidents"].([]any)
	first := incidents[0].(map[string]any)
	if first["issueType"] != "high_cpu" || first["targetName"] != "orders-db" {
		t.Fatalf("incident payload = %v", first)
	}

	// No status param defaults to open, so the resolved incident is
	// excluded.
	_, body = get(t, router, "/api/incidents")
	if body["count"] != float64(1) {
		t.Fatalf("default count = %v, want 1", body["count"])
	}

	_, body = get(t, router, "/api/incidents?status=resolved")
	if body["count"] != float64(1) {
		t.Fatalf("resolved count = %v, want 1", body["count"])
	}
}

func TestActionsEndpoint(t *testing.T) {
	router, store := newTestAPI(t)
	ctx := context.Background()
	action := &models.AgentAction{
		IncidentID:      "inc-1",
		ActionType:      models.ActionKillQuery,
		ConfidenceScore: 91,
		Status:          models.ActionSuccess,
	}
	if err := store.AgentActions.Create(ctx, action); err != nil {
		t.Fatalf("create action: %v", err)
	}

	rec, body := get(t, router, "/api/actions?limit=10")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("actions = %d %v", rec.Code, body)
	}
}

func TestActionHistoryEndpoint(t *testing.T) {
	router, store := newTestAPI(t)
	target := seedFleet(t, store)
	ctx := context.Background()

	entry := &models.ActionHistoryEntry{
		TargetID:    target.ID,
		ActionType:  "backup_verification",
		Description: "Verified latest backup of orders-db",
		ExecutedBy:  models.ExecutedBySchedule,
		Success:     true,
	}
	if err := store.ActionHistory.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, body := get(t, router, "/api/action-history")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("history = %d %v", rec.Code, body)
	}
	entries := body["history"].([]any)
	first := entries[0].(map[string]any)
	if first["targetName"] != "orders-db" {
		t.Fatalf("history entry missing target name: %v", first)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	router, store := newTestAPI(t)
	target := seedFleet(t, store)
	ctx := context.Background()
	entry := &models.ActionHistoryEntry{
		TargetID:   target.ID,
		Timestamp:  time.Now().UTC().Add(-time.Hour),
		ActionType: "kill_query",
		ExecutedBy: models.ExecutedBySchedule,
		Success:    true,
	}
	if err := store.ActionHistory.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, body := get(t, router, "/api/summary")
	if rec.Code != http.StatusOK || body["queriesKilled"] != float64(1) {
		t.Fatalf("summary = %d %v", rec.Code, body)
	}
}
