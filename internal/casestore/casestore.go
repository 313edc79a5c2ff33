// Package casestore retrieves previously resolved incidents that resemble
// a new one. Retrieval is embedding-based: the incident's symptoms are
// embedded, the vector is persisted on the incident record, and resolved
// incidents are ranked by cosine similarity.
package casestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/ai"
	"github.com/nightwatchhq/nightwatch-agent/internal/cache"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
)

// Store ranks resolved incidents against new ones.
type Store struct {
	incidents repo.Incidents
	provider  ai.Provider
	cache     cache.Provider
	logger    *slog.Logger

	dims     int
	limit    int
	cacheTTL time.Duration
}

// Options tunes retrieval behavior.
type Options struct {
	// EmbeddingDims is the expected vector length, used for the zero
	// vector written when the embedding backend fails.
	EmbeddingDims int
	// Limit caps how many similar cases are returned.
	Limit int
	// CacheTTL bounds how long a ranked result is reused.
	CacheTTL time.Duration
}

// New builds a Store. The cache may be a NoopProvider.
func New(incidents repo.Incidents, provider ai.Provider, cacheProvider cache.Provider, logger *slog.Logger, opts Options) *Store {
	if opts.EmbeddingDims <= 0 {
		opts.EmbeddingDims = 768
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &Store{
		incidents: incidents,
		provider:  provider,
		cache:     cacheProvider,
		logger:    logger,
		dims:      opts.EmbeddingDims,
		limit:     opts.Limit,
		cacheTTL:  opts.CacheTTL,
	}
}

// FindSimilar embeds the incident's symptoms, persists the vector on the
// incident record, and returns the most similar resolved incidents,
// excluding the incident itself. The embedding is persisted before the
// search so the incident becomes retrievable for future cases even when
// ranking fails. An embedding backend failure degrades to a zero vector
// and an empty result rather than an error.
func (s *Store) FindSimilar(ctx context.Context, incident *models.Incident) ([]models.Incident, error) {
	text := fmt.Sprintf("%s: %s", incident.IssueType, incident.Symptoms)

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, storing zero vector",
			"incident_id", incident.ID, "error", err)
		vec = make([]float32, s.dims)
	}
	if err := s.incidents.SetEmbedding(ctx, incident.ID, vec); err != nil {
		return nil, fmt.Errorf("persist incident embedding: %w", err)
	}
	incident.SymptomsEmbedding = vec

	if norm(vec) == 0 {
		return nil, nil
	}

	cacheKey := "nightwatch:similar:" + incident.ID
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
		var out []models.Incident
		if json.Unmarshal(cached, &out) == nil {
			return out, nil
		}
	}

	resolved, err := s.incidents.ListResolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("load resolved incidents: %w", err)
	}

	type scored struct {
		incident   models.Incident
		similarity float64
	}
	candidates := make([]scored, 0, len(resolved))
	for _, cand := range resolved {
		if cand.ID == incident.ID {
			continue
		}
		sim := cosineSimilarity(vec, cand.SymptomsEmbedding)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, scored{incident: cand, similarity: sim})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})

	n := len(candidates)
	if n > s.limit {
		n = s.limit
	}
	out := make([]models.Incident, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.incident)
	}

	if s.cacheTTL > 0 && len(out) > 0 {
		if data, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, s.cacheTTL); err != nil {
				s.logger.Debug("similar-case cache write failed", "error", err)
			}
		}
	}
	return out, nil
}

// cosineSimilarity returns 0 when the vectors differ in length or either
// has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
