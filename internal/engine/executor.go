package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/controlplane"
	"github.com/nightwatchhq/nightwatch-agent/internal/events"
	"github.com/nightwatchhq/nightwatch-agent/internal/metrics"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
	"github.com/nightwatchhq/nightwatch-agent/internal/utils"
)

// Executor carries an approved decision through the control plane and
// settles the incident. Every execution leaves exactly one agent action
// audit record, whatever the outcome.
type Executor struct {
	store        *repo.Store
	controlPlane *controlplane.Client
	hub          events.Broadcaster
	logger       *slog.Logger

	// resolveOnFailure marks incidents resolved even when the action
	// fails, recording the failure in the resolution notes. When false a
	// failed action routes the incident to the failed state instead.
	resolveOnFailure bool
}

// NewExecutor wires an executor over the store and control plane.
func NewExecutor(store *repo.Store, cp *controlplane.Client, hub events.Broadcaster, logger *slog.Logger, resolveOnFailure bool) *Executor {
	if hub == nil {
		hub = events.NopBroadcaster{}
	}
	return &Executor{
		store:            store,
		controlPlane:     cp,
		hub:              hub,
		logger:           logger,
		resolveOnFailure: resolveOnFailure,
	}
}

// Execute applies the decision to the incident's target database.
func (e *Executor) Execute(ctx context.Context, incident *models.Incident, decision models.Decision) error {
	action := &models.AgentAction{
		IncidentID:      incident.ID,
		ActionType:      decision.Action,
		ActionDetails:   decision.Reasoning,
		ConfidenceScore: decision.Confidence,
		Status:          models.ActionPending,
		RollbackPlan:    decision.RollbackPlan,
	}
	if err := e.store.AgentActions.Create(ctx, action); err != nil {
		return &utils.ExecutionError{Action: string(decision.Action), Err: err}
	}
	if err := e.store.AgentActions.UpdateStatus(ctx, action.ID, models.ActionExecuting, "", 0); err != nil {
		e.logger.Warn("failed to mark action executing", "action_id", action.ID, "error", err)
	}

	start := time.Now()
	notes, execErr := e.controlPlane.Execute(ctx, incident.TargetName, decision.Action, decision.Reasoning)
	elapsed := time.Since(start).Milliseconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	if execErr != nil {
		e.logger.Error("remediation action failed",
			"incident_id", incident.ID, "action", decision.Action, "error", execErr)
		metrics.ObserveAction(string(decision.Action), metrics.OutcomeError)
		if err := e.store.AgentActions.UpdateStatus(ctx, action.ID, models.ActionFailed, execErr.Error(), elapsed); err != nil {
			e.logger.Warn("failed to record action failure", "action_id", action.ID, "error", err)
		}
		e.settle(ctx, incident, decision, execErr)
		e.broadcastUpdate(ctx, incident.ID, action)
		return &utils.ExecutionError{Action: string(decision.Action), Err: execErr}
	}

	metrics.ObserveAction(string(decision.Action), metrics.OutcomeSuccess)
	if err := e.store.AgentActions.UpdateStatus(ctx, action.ID, models.ActionSuccess, notes, elapsed); err != nil {
		e.logger.Warn("failed to record action success", "action_id", action.ID, "error", err)
	}

	resolution := models.Resolution{
		Status:          models.IncidentResolved,
		FixApplied:      string(decision.Action),
		ResolutionNotes: notes,
		AutoResolved:    true,
	}
	if err := e.store.Incidents.Resolve(ctx, incident.ID, resolution); err != nil {
		if errors.Is(err, repo.ErrAlreadyResolved) {
			e.logger.Warn("incident settled concurrently", "incident_id", incident.ID)
		} else {
			return &utils.ExecutionError{Action: string(decision.Action), Err: err}
		}
	}

	e.logger.Info("incident auto-resolved",
		"incident_id", incident.ID,
		"action", decision.Action,
		"confidence", decision.Confidence,
		"execution_ms", elapsed)
	e.broadcastUpdate(ctx, incident.ID, action)
	return nil
}

// settle applies the configured terminal state after a failed action.
func (e *Executor) settle(ctx context.Context, incident *models.Incident, decision models.Decision, execErr error) {
	resolution := models.Resolution{
		FixApplied:      string(decision.Action),
		ResolutionNotes: fmt.Sprintf("Remediation failed: %v", execErr),
		AutoResolved:    true,
	}
	if e.resolveOnFailure {
		resolution.Status = models.IncidentResolved
	} else {
		resolution.Status = models.IncidentFailed
	}
	if err := e.store.Incidents.Resolve(ctx, incident.ID, resolution); err != nil && !errors.Is(err, repo.ErrAlreadyResolved) {
		e.logger.Error("failed to settle incident after action failure",
			"incident_id", incident.ID, "error", err)
	}
}

// broadcastUpdate pushes the incident's current state, target name
// included, to connected clients.
func (e *Executor) broadcastUpdate(ctx context.Context, incidentID string, action *models.AgentAction) {
	incident, err := e.store.Incidents.Get(ctx, incidentID)
	if err != nil {
		e.logger.Warn("failed to reload incident for broadcast", "incident_id", incidentID, "error", err)
		return
	}
	e.hub.Broadcast("incident_updated", incident)
	e.hub.Broadcast("action_executed", action)
}
