package casestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo/memory"
)

type fakeProvider struct {
	vectors map[string][]float32
	embed   []float32
	err     error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.embed, nil
}

func (f *fakeProvider) ProposeRemediation(context.Context, models.Incident, []models.Incident) (models.Decision, error) {
	return models.Decision{}, errors.New("not implemented")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedResolved(t *testing.T, store interface {
	Create(ctx context.Context, incident *models.Incident) error
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	Resolve(ctx context.Context, id string, resolution models.Resolution) error
}, issueType, fix string, vec []float32) *models.Incident {
	t.Helper()
	ctx := context.Background()
	inc := &models.Incident{TargetID: "t1", IssueType: issueType, Severity: models.SeverityHigh}
	if err := store.Create(ctx, inc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SetEmbedding(ctx, inc.ID, vec); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	if err := store.Resolve(ctx, inc.ID, models.Resolution{Status: models.IncidentResolved, FixApplied: fix}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return inc
}

func TestFindSimilarRanksByCosine(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	close1 := seedResolved(t, store.Incidents, "high_cpu", "kill_query", []float32{1, 0, 0})
	mid := seedResolved(t, store.Incidents, "high_cpu", "update_statistics", []float32{0.7, 0.7, 0})
	seedResolved(t, store.Incidents, "disk_pressure", "clear_logs", []float32{0, 0, 1})

	provider := &fakeProvider{embed: []float32{1, 0.1, 0}}
	cs := New(store.Incidents, provider, nil, testLogger(), Options{EmbeddingDims: 3, Limit: 2})

	inc := &models.Incident{TargetID: "t1", IssueType: "high_cpu", Symptoms: "CPU at 97.00%"}
	if err := store.Incidents.Create(ctx, inc); err != nil {
		t.Fatalf("create incident: %v", err)
	}

	similar, err := cs.FindSimilar(ctx, inc)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(similar) != 2 {
		t.Fatalf("len = %d, want 2", len(similar))
	}
	if similar[0].ID != close1.ID {
		t.Fatalf("top match = %s, want %s", similar[0].ID, close1.ID)
	}
	if similar[1].ID != mid.ID {
		t.Fatalf("second match = %s, want %s", similar[1].ID, mid.ID)
	}

	// The query incident's own embedding must have been persisted.
	got, err := store.Incidents.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.SymptomsEmbedding) != 3 {
		t.Fatalf("embedding not persisted: %v", got.SymptomsEmbedding)
	}
}

func TestFindSimilarExcludesSelf(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	// A resolved incident that would otherwise match itself perfectly.
	self := seedResolved(t, store.Incidents, "high_cpu", "kill_query", []float32{1, 0, 0})

	provider := &fakeProvider{embed: []float32{1, 0, 0}}
	cs := New(store.Incidents, provider, nil, testLogger(), Options{EmbeddingDims: 3})

	got, err := store.Incidents.Get(ctx, self.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	similar, err := cs.FindSimilar(ctx, got)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	for _, s := range similar {
		if s.ID == self.ID {
			t.Fatal("result contains the query incident itself")
		}
	}
}

func TestFindSimilarZeroVectorFallback(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	seedResolved(t, store.Incidents, "high_cpu", "kill_query", []float32{1, 0, 0})

	provider := &fakeProvider{err: errors.New("backend down")}
	cs := New(store.Incidents, provider, nil, testLogger(), Options{EmbeddingDims: 3})

	inc := &models.Incident{TargetID: "t1", IssueType: "high_cpu", Symptoms: "CPU at 95.00%"}
	if err := store.Incidents.Create(ctx, inc); err != nil {
		t.Fatalf("create: %v", err)
	}

	similar, err := cs.FindSimilar(ctx, inc)
	if err != nil {
		t.Fatalf("FindSimilar should degrade, got error: %v", err)
	}
	if len(similar) != 0 {
		t.Fatalf("expected no matches for zero-vector query, got %d", len(similar))
	}

	got, _ := store.Incidents.Get(ctx, inc.ID)
	if len(got.SymptomsEmbedding) != 3 {
		t.Fatalf("zero vector not persisted, len = %d", len(got.SymptomsEmbedding))
	}
	for _, v := range got.SymptomsEmbedding {
		if v != 0 {
			t.Fatal("fallback embedding is not all zeros")
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cosineSimilarity(tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("cosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}
