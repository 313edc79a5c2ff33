// Package engine holds the decision pipeline: incidents queued by the
// monitor are analyzed by the AI provider and, when confidence clears
// the configured bar, remediated through the executor.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/ai"
	"github.com/nightwatchhq/nightwatch-agent/internal/casestore"
	"github.com/nightwatchhq/nightwatch-agent/internal/config"
	"github.com/nightwatchhq/nightwatch-agent/internal/events"
	"github.com/nightwatchhq/nightwatch-agent/internal/metrics"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
)

// Analyzer consumes queued incidents on a fixed-size worker pool. The
// queue decouples detection from analysis so a slow AI backend never
// stalls the monitoring loop.
type Analyzer struct {
	store    *repo.Store
	cases    *casestore.Store
	provider ai.Provider
	executor *Executor
	hub      events.Broadcaster
	logger   *slog.Logger

	confidenceThreshold float64
	aiTimeout           time.Duration
	workers             int

	queue chan string
	wg    sync.WaitGroup
}

// NewAnalyzer wires the decision pipeline.
func NewAnalyzer(
	store *repo.Store,
	cases *casestore.Store,
	provider ai.Provider,
	executor *Executor,
	hub events.Broadcaster,
	logger *slog.Logger,
	actions config.ActionsConfig,
	aiTimeout time.Duration,
) *Analyzer {
	if hub == nil {
		hub = events.NopBroadcaster{}
	}
	workers := actions.AnalysisWorkers
	if workers <= 0 {
		workers = 1
	}
	queueSize := actions.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Analyzer{
		store:               store,
		cases:               cases,
		provider:            provider,
		executor:            executor,
		hub:                 hub,
		logger:              logger,
		confidenceThreshold: actions.ConfidenceThreshold,
		aiTimeout:           aiTimeout,
		workers:             workers,
		queue:               make(chan string, queueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (a *Analyzer) Start(ctx context.Context) {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for {
				select {
				case id := <-a.queue:
					a.analyze(ctx, id)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// Wait blocks until every worker has exited.
func (a *Analyzer) Wait() { a.wg.Wait() }

// Enqueue schedules an incident for analysis without blocking. When the
// queue is full the incident is left in the open state for the API
// surface and human review.
func (a *Analyzer) Enqueue(incidentID string) bool {
	select {
	case a.queue <- incidentID:
		return true
	default:
		a.logger.Warn("analysis queue full, incident left for manual review",
			"incident_id", incidentID)
		return false
	}
}

func (a *Analyzer) analyze(ctx context.Context, incidentID string) {
	start := time.Now()

	incident, err := a.store.Incidents.Get(ctx, incidentID)
	if err != nil {
		a.logger.Error("failed to load incident for analysis",
			"incident_id", incidentID, "error", err)
		metrics.ObserveAnalysis(time.Since(start), metrics.OutcomeError)
		return
	}

	if err := a.store.Incidents.UpdateStatus(ctx, incident.ID, models.IncidentInvestigating); err != nil {
		a.logger.Warn("failed to mark incident investigating",
			"incident_id", incident.ID, "error", err)
	}

	similar, err := a.cases.FindSimilar(ctx, incident)
	if err != nil {
		a.logger.Warn("similar-case retrieval failed, analyzing without history",
			"incident_id", incident.ID, "error", err)
		similar = nil
	}

	aiCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	decision, err := a.provider.ProposeRemediation(aiCtx, *incident, similar)
	cancel()
	if err != nil {
		// Incident stays in investigating for a human to pick up.
		a.logger.Error("remediation proposal failed",
			"incident_id", incident.ID, "provider", a.provider.Name(), "error", err)
		metrics.ObserveAnalysis(time.Since(start), metrics.OutcomeError)
		return
	}

	a.logger.Info("remediation decision",
		"incident_id", incident.ID,
		"action", decision.Action,
		"confidence", decision.Confidence,
		"risk", decision.RiskLevel,
		"auto_execute", decision.ShouldAutoExecute,
		"similar_cases", len(similar))
	a.hub.Broadcast("analysis_completed", map[string]any{
		"incidentId": incident.ID,
		"decision":   decision,
	})

	if !decision.ShouldAutoExecute || decision.Confidence < a.confidenceThreshold {
		a.logger.Info("decision gated out of auto-execution",
			"incident_id", incident.ID,
			"confidence", decision.Confidence,
			"threshold", a.confidenceThreshold)
		metrics.ObserveAnalysis(time.Since(start), metrics.OutcomeManualReview)
		return
	}

	if err := a.executor.Execute(ctx, incident, decision); err != nil {
		a.logger.Error("decision execution failed",
			"incident_id", incident.ID, "error", err)
		metrics.ObserveAnalysis(time.Since(start), metrics.OutcomeError)
		return
	}
	metrics.ObserveAnalysis(time.Since(start), metrics.OutcomeSuccess)
}
