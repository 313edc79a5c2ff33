// Package services holds the read-side queries backing the REST API.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/cache"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
	"github.com/nightwatchhq/nightwatch-agent/internal/utils"
)

const summaryCacheKey = "nightwatch:summary:24h"

// AgentStatus is the top-level health snapshot served by the API.
type AgentStatus struct {
	Status             string    `json:"status"`
	MonitoredDatabases int       `json:"monitoredDatabases"`
	CriticalIncidents  int       `json:"criticalIncidents"`
	ConnectedClients   int       `json:"connectedClients"`
	UptimeSeconds      int64     `json:"uptimeSeconds"`
	QueryP95Ms         float64   `json:"queryP95Ms"`
	Timestamp          time.Time `json:"timestamp"`
}

// ClientCounter reports how many dashboard clients are connected.
type ClientCounter interface {
	ClientCount() int
}

// QueryService serves the read models consumed by the HTTP handlers.
type QueryService struct {
	store      *repo.Store
	cache      cache.Provider
	clients    ClientCounter
	logger     *slog.Logger
	latency    *utils.LatencyTracker
	summaryTTL time.Duration
	startedAt  time.Time
}

// NewQueryService builds the read side. clients may be nil when no
// socket surface is running.
func NewQueryService(store *repo.Store, cacheProvider cache.Provider, clients ClientCounter, logger *slog.Logger, summaryTTL time.Duration) *QueryService {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &QueryService{
		store:      store,
		cache:      cacheProvider,
		clients:    clients,
		logger:     logger,
		latency:    utils.NewLatencyTracker(512),
		summaryTTL: summaryTTL,
		startedAt:  time.Now(),
	}
}

func (s *QueryService) observe(start time.Time) {
	s.latency.Observe(time.Since(start))
}

// Status assembles the agent health snapshot.
func (s *QueryService) Status(ctx context.Context) (*AgentStatus, error) {
	defer s.observe(time.Now())

	targets, err := s.store.Targets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	critical, err := s.store.Incidents.CountOpenBySeverity(ctx, models.SeverityCritical)
	if err != nil {
		return nil, fmt.Errorf("count critical incidents: %w", err)
	}

	status := "operational"
	if critical > 0 {
		status = "degraded"
	}
	connected := 0
	if s.clients != nil {
		connected = s.clients.ClientCount()
	}
	return &AgentStatus{
		Status:             status,
		MonitoredDatabases: len(targets),
		CriticalIncidents:  critical,
		ConnectedClients:   connected,
		UptimeSeconds:      int64(time.Since(s.startedAt).Seconds()),
		QueryP95Ms:         float64(s.latency.Percentile(95)) / float64(time.Millisecond),
		Timestamp:          time.Now().UTC(),
	}, nil
}

// Databases lists every monitored target.
func (s *QueryService) Databases(ctx context.Context) ([]models.Target, error) {
	defer s.observe(time.Now())
	return s.store.Targets.List(ctx)
}

// MetricsRange returns samples for a target over the trailing window
// expressed as a duration string ("15m", "24h").
func (s *QueryService) MetricsRange(ctx context.Context, targetID, window string) ([]models.MetricSample, error) {
	defer s.observe(time.Now())

	if _, err := s.store.Targets.Get(ctx, targetID); err != nil {
		return nil, err
	}
	d := utils.ParseWindow(window, time.Hour)
	now := time.Now().UTC()
	return s.store.Metrics.ListRange(ctx, targetID, now.Add(-d), now, 1000)
}

// MetricsBetween returns samples between two explicit instants.
func (s *QueryService) MetricsBetween(ctx context.Context, targetID string, from, to time.Time) ([]models.MetricSample, error) {
	defer s.observe(time.Now())

	if _, err := s.store.Targets.Get(ctx, targetID); err != nil {
		return nil, err
	}
	return s.store.Metrics.ListRange(ctx, targetID, from, to, 1000)
}

// Incidents lists incidents filtered by lifecycle status. An empty
// status selects open incidents, which is what the dashboard polls for.
func (s *QueryService) Incidents(ctx context.Context, status string, limit int) ([]models.Incident, error) {
	defer s.observe(time.Now())
	if status == "" {
		status = string(models.IncidentOpen)
	}
	return s.store.Incidents.ListByStatus(ctx, models.IncidentStatus(status), limit)
}

// RecentActions lists the latest agent action audit records.
func (s *QueryService) RecentActions(ctx context.Context, limit int) ([]models.AgentAction, error) {
	defer s.observe(time.Now())
	return s.store.AgentActions.ListRecent(ctx, limit)
}

// ActionHistory lists the latest operational audit entries.
func (s *QueryService) ActionHistory(ctx context.Context, limit int) ([]models.ActionHistoryEntry, error) {
	defer s.observe(time.Now())
	return s.store.ActionHistory.ListRecent(ctx, limit)
}

// Summary aggregates trailing-24h activity from the action history. The
// result is cached briefly since the dashboard polls it.
func (s *QueryService) Summary(ctx context.Context) (*models.OperationalSummary, error) {
	defer s.observe(time.Now())

	if data, err := s.cache.Get(ctx, summaryCacheKey); err == nil {
		var cached models.OperationalSummary
		if json.Unmarshal(data, &cached) == nil {
			return &cached, nil
		}
	}

	entries, err := s.store.ActionHistory.ListSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load action history: %w", err)
	}

	var summary models.OperationalSummary
	for _, e := range entries {
		if !e.Success {
			summary.Warnings++
			continue
		}
		switch e.ActionType {
		case "backup_verification":
			summary.BackupsVerified++
		case "kill_query":
			summary.QueriesKilled++
		case "rebuild_index":
			summary.IndexesRebuilt++
		case "clear_logs":
			summary.LogsCleared++
		}
	}

	if s.summaryTTL > 0 {
		if data, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, summaryCacheKey, data, s.summaryTTL); err != nil {
				s.logger.Debug("summary cache write failed", "error", err)
			}
		}
	}
	return &summary, nil
}
