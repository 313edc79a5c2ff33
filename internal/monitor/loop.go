// Package monitor runs the sampling loop: every interval it collects a
// metric sample from each target, persists it, and raises incidents for
// anomalous readings.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nightwatchhq/nightwatch-agent/internal/detect"
	"github.com/nightwatchhq/nightwatch-agent/internal/events"
	"github.com/nightwatchhq/nightwatch-agent/internal/metrics"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
	"github.com/nightwatchhq/nightwatch-agent/internal/utils"
)

// Enqueuer schedules an incident for asynchronous analysis.
type Enqueuer interface {
	Enqueue(incidentID string) bool
}

// Loop drives the periodic sampling of all targets. One target failing
// never aborts the cycle for the others.
type Loop struct {
	store     *repo.Store
	collector Collector
	detector  *detect.Detector
	analyzer  Enqueuer
	hub       events.Broadcaster
	logger    *slog.Logger

	interval      time.Duration
	maxConcurrent int
}

// NewLoop wires a monitoring loop.
func NewLoop(
	store *repo.Store,
	collector Collector,
	detector *detect.Detector,
	analyzer Enqueuer,
	hub events.Broadcaster,
	logger *slog.Logger,
	interval time.Duration,
	maxConcurrent int,
) *Loop {
	if hub == nil {
		hub = events.NopBroadcaster{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Loop{
		store:         store,
		collector:     collector,
		detector:      detector,
		analyzer:      analyzer,
		hub:           hub,
		logger:        logger,
		interval:      interval,
		maxConcurrent: maxConcurrent,
	}
}

// Run blocks until ctx is cancelled, executing one cycle per interval.
// The first cycle runs immediately.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("monitoring loop started", "interval", l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			l.Tick(ctx)
		case <-ctx.Done():
			l.logger.Info("monitoring loop stopped")
			return
		}
	}
}

// Tick samples every target once with bounded concurrency.
func (l *Loop) Tick(ctx context.Context) {
	metrics.ObserveTick()

	targets, err := l.store.Targets.List(ctx)
	if err != nil {
		l.logger.Error("failed to list targets", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrent)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := l.sampleTarget(gctx, target); err != nil {
				metrics.ObserveSample(metrics.OutcomeError)
				l.logger.Error("target sampling failed",
					"target", target.Name, "error", err)
			} else {
				metrics.ObserveSample(metrics.OutcomeSuccess)
			}
			// Errors are contained per target.
			return nil
		})
	}
	g.Wait()
}

func (l *Loop) sampleTarget(ctx context.Context, target models.Target) error {
	sample, err := l.collector.Collect(ctx, target)
	if err != nil {
		return &utils.SamplingError{TargetName: target.Name, Err: err}
	}
	if err := l.store.Metrics.Insert(ctx, sample); err != nil {
		return &utils.SamplingError{TargetName: target.Name, Err: err}
	}

	l.hub.Broadcast("metrics_update", map[string]any{
		"databaseId":   target.ID,
		"databaseName": target.Name,
		"metrics":      sample,
	})

	anomaly := l.detector.Detect(*sample)
	if anomaly == nil {
		return nil
	}

	// One open incident per target and issue type; repeat detections of
	// a condition already under analysis are noise.
	open, err := l.store.Incidents.HasUnresolved(ctx, target.ID, anomaly.IssueType)
	if err != nil {
		return &utils.SamplingError{TargetName: target.Name, Err: err}
	}
	if open {
		l.logger.Debug("anomaly already has an open incident",
			"target", target.Name, "issue_type", anomaly.IssueType)
		return nil
	}

	incident := &models.Incident{
		TargetID:        target.ID,
		TargetName:      target.Name,
		Timestamp:       sample.Timestamp,
		IssueType:       anomaly.IssueType,
		Severity:        anomaly.Severity,
		Symptoms:        anomaly.Symptoms,
		MetricsSnapshot: sample,
		Status:          models.IncidentOpen,
	}
	if err := l.store.Incidents.Create(ctx, incident); err != nil {
		return &utils.SamplingError{TargetName: target.Name, Err: err}
	}
	metrics.ObserveIncident(anomaly.IssueType, string(anomaly.Severity))

	l.logger.Warn("incident detected",
		"target", target.Name,
		"issue_type", anomaly.IssueType,
		"severity", anomaly.Severity,
		"symptoms", anomaly.Symptoms)
	l.hub.Broadcast("incident_detected", incident)

	if l.analyzer != nil {
		l.analyzer.Enqueue(incident.ID)
	}
	return nil
}
