// Package memory provides an in-process implementation of the repo
// interfaces. It backs the agent when no database DSN is configured and
// the package tests elsewhere in the tree.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
)

// NewStore returns a repo.Store backed entirely by process memory.
func NewStore() *repo.Store {
	s := &state{
		targets:   make(map[string]*models.Target),
		incidents: make(map[string]*models.Incident),
		actions:   make(map[string]*models.AgentAction),
	}
	return &repo.Store{
		Targets:       (*targetRepo)(s),
		Metrics:       (*metricRepo)(s),
		Incidents:     (*incidentRepo)(s),
		AgentActions:  (*actionRepo)(s),
		ActionHistory: (*historyRepo)(s),
	}
}

type state struct {
	mu sync.RWMutex

	targets     map[string]*models.Target
	targetOrder []string
	samples     []models.MetricSample
	incidents   map[string]*models.Incident
	actions     map[string]*models.AgentAction
	actionOrder []string
	history     []models.ActionHistoryEntry
}

func newID() string { return uuid.NewString() }

type targetRepo state

func (r *targetRepo) Create(_ context.Context, target *models.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if target.ID == "" {
		target.ID = newID()
	}
	if target.CreatedAt.IsZero() {
		target.CreatedAt = time.Now().UTC()
	}
	cp := *target
	r.targets[cp.ID] = &cp
	r.targetOrder = append(r.targetOrder, cp.ID)
	return nil
}

func (r *targetRepo) List(_ context.Context) ([]models.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Target, 0, len(r.targetOrder))
	for _, id := range r.targetOrder {
		out = append(out, *r.targets[id])
	}
	return out, nil
}

func (r *targetRepo) Get(_ context.Context, id string) (*models.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *targetRepo) FindByName(_ context.Context, name string) (*models.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.targetOrder {
		if r.targets[id].Name == name {
			cp := *r.targets[id]
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *targetRepo) UpdateStatus(_ context.Context, id string, status models.HealthStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Status = status
	return nil
}

type metricRepo state

func (r *metricRepo) Insert(_ context.Context, sample *models.MetricSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sample.ID == "" {
		sample.ID = newID()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	r.samples = append(r.samples, *sample)
	return nil
}

func (r *metricRepo) ListRange(_ context.Context, targetID string, from, to time.Time, limit int) ([]models.MetricSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.MetricSample
	for i := len(r.samples) - 1; i >= 0; i-- {
		s := r.samples[i]
		if s.TargetID != targetID {
			continue
		}
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	// Newest-first scan above; return in chronological order.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type incidentRepo state

func (r *incidentRepo) Create(_ context.Context, incident *models.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if incident.ID == "" {
		incident.ID = newID()
	}
	if incident.Timestamp.IsZero() {
		incident.Timestamp = time.Now().UTC()
	}
	if incident.Status == "" {
		incident.Status = models.IncidentOpen
	}
	cp := cloneIncident(incident)
	r.incidents[cp.ID] = cp
	return nil
}

func (r *incidentRepo) Get(_ context.Context, id string) (*models.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.incidents[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := cloneIncident(inc)
	if t, ok := r.targets[out.TargetID]; ok {
		out.TargetName = t.Name
	}
	return out, nil
}

func (r *incidentRepo) ListByStatus(_ context.Context, status models.IncidentStatus, limit int) ([]models.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Incident
	for _, inc := range r.incidents {
		if status != "" && inc.Status != status {
			continue
		}
		cp := cloneIncident(inc)
		if t, ok := r.targets[cp.TargetID]; ok {
			cp.TargetName = t.Name
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *incidentRepo) ListResolved(_ context.Context) ([]models.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Incident
	for _, inc := range r.incidents {
		if inc.Status != models.IncidentResolved {
			continue
		}
		out = append(out, *cloneIncident(inc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (r *incidentRepo) SetEmbedding(_ context.Context, id string, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return repo.ErrNotFound
	}
	inc.SymptomsEmbedding = append([]float32(nil), embedding...)
	return nil
}

func (r *incidentRepo) UpdateStatus(_ context.Context, id string, status models.IncidentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return repo.ErrNotFound
	}
	inc.Status = status
	return nil
}

func (r *incidentRepo) Resolve(_ context.Context, id string, resolution models.Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return repo.ErrNotFound
	}
	if inc.Status == models.IncidentResolved || inc.Status == models.IncidentFailed {
		return repo.ErrAlreadyResolved
	}
	inc.Status = resolution.Status
	inc.FixApplied = resolution.FixApplied
	inc.ResolutionNotes = resolution.ResolutionNotes
	inc.AutoResolved = resolution.AutoResolved
	if resolution.Status == models.IncidentResolved {
		at := resolution.ResolvedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		inc.ResolvedAt = &at
	}
	return nil
}

func (r *incidentRepo) HasUnresolved(_ context.Context, targetID, issueType string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inc := range r.incidents {
		if inc.TargetID != targetID || inc.IssueType != issueType {
			continue
		}
		if inc.Status == models.IncidentOpen || inc.Status == models.IncidentInvestigating {
			return true, nil
		}
	}
	return false, nil
}

func (r *incidentRepo) CountOpenBySeverity(_ context.Context, severity models.Severity) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inc := range r.incidents {
		if inc.Severity != severity {
			continue
		}
		if inc.Status == models.IncidentOpen || inc.Status == models.IncidentInvestigating {
			n++
		}
	}
	return n, nil
}

func cloneIncident(in *models.Incident) *models.Incident {
	cp := *in
	if in.SymptomsEmbedding != nil {
		cp.SymptomsEmbedding = append([]float32(nil), in.SymptomsEmbedding...)
	}
	if in.MetricsSnapshot != nil {
		snap := *in.MetricsSnapshot
		cp.MetricsSnapshot = &snap
	}
	if in.ResolvedAt != nil {
		at := *in.ResolvedAt
		cp.ResolvedAt = &at
	}
	return &cp
}

type actionRepo state

func (r *actionRepo) Create(_ context.Context, action *models.AgentAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if action.ID == "" {
		action.ID = newID()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}
	cp := *action
	r.actions[cp.ID] = &cp
	r.actionOrder = append(r.actionOrder, cp.ID)
	return nil
}

func (r *actionRepo) UpdateStatus(_ context.Context, id string, status models.ActionStatus, resultNotes string, executionTimeMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.Status = status
	if resultNotes != "" {
		a.ResultNotes = resultNotes
	}
	if executionTimeMs > 0 {
		a.ExecutionTimeMs = executionTimeMs
	}
	return nil
}

func (r *actionRepo) ListRecent(_ context.Context, limit int) ([]models.AgentAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.AgentAction
	for i := len(r.actionOrder) - 1; i >= 0; i-- {
		out = append(out, *r.actions[r.actionOrder[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type historyRepo state

func (r *historyRepo) Append(_ context.Context, entry *models.ActionHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.TargetName == "" {
		if t, ok := r.targets[entry.TargetID]; ok {
			entry.TargetName = t.Name
		}
	}
	r.history = append(r.history, *entry)
	return nil
}

func (r *historyRepo) ListRecent(_ context.Context, limit int) ([]models.ActionHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ActionHistoryEntry
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, r.history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *historyRepo) ListSince(_ context.Context, since time.Time) ([]models.ActionHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ActionHistoryEntry
	for _, e := range r.history {
		if e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
