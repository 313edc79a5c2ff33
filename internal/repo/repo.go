// Package repo defines the persistence interfaces consumed by the
// incident engine. Implementations live in the postgres and memory
// subpackages; callers never depend on a concrete store.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyResolved is returned when a second resolve is attempted on an
// incident that already reached a terminal state.
var ErrAlreadyResolved = errors.New("incident already resolved")

// Targets manages monitored database registrations.
type Targets interface {
	Create(ctx context.Context, target *models.Target) error
	List(ctx context.Context) ([]models.Target, error)
	Get(ctx context.Context, id string) (*models.Target, error)
	FindByName(ctx context.Context, name string) (*models.Target, error)
	UpdateStatus(ctx context.Context, id string, status models.HealthStatus) error
}

// Metrics is the append-only sample time series with bounded range reads.
type Metrics interface {
	Insert(ctx context.Context, sample *models.MetricSample) error
	ListRange(ctx context.Context, targetID string, from, to time.Time, limit int) ([]models.MetricSample, error)
}

// Incidents manages the incident lifecycle records.
type Incidents interface {
	Create(ctx context.Context, incident *models.Incident) error
	// Get returns the incident with its target name populated.
	Get(ctx context.Context, id string) (*models.Incident, error)
	ListByStatus(ctx context.Context, status models.IncidentStatus, limit int) ([]models.Incident, error)
	// ListResolved returns resolved incidents with their embeddings, the
	// candidate set for similarity search.
	ListResolved(ctx context.Context) ([]models.Incident, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	UpdateStatus(ctx context.Context, id string, status models.IncidentStatus) error
	// Resolve applies the terminal fields atomically. A second call for
	// the same incident returns ErrAlreadyResolved.
	Resolve(ctx context.Context, id string, resolution models.Resolution) error
	// HasUnresolved reports whether the target already has an open or
	// investigating incident of the given issue type.
	HasUnresolved(ctx context.Context, targetID, issueType string) (bool, error)
	CountOpenBySeverity(ctx context.Context, severity models.Severity) (int, error)
}

// AgentActions is the append-only audit trail of executed decisions.
type AgentActions interface {
	Create(ctx context.Context, action *models.AgentAction) error
	UpdateStatus(ctx context.Context, id string, status models.ActionStatus, resultNotes string, executionTimeMs int64) error
	ListRecent(ctx context.Context, limit int) ([]models.AgentAction, error)
}

// ActionHistory is the append-only operational audit log.
type ActionHistory interface {
	Append(ctx context.Context, entry *models.ActionHistoryEntry) error
	ListRecent(ctx context.Context, limit int) ([]models.ActionHistoryEntry, error)
	ListSince(ctx context.Context, since time.Time) ([]models.ActionHistoryEntry, error)
}

// Store bundles every repository behind one handle.
type Store struct {
	Targets       Targets
	Metrics       Metrics
	Incidents     Incidents
	AgentActions  AgentActions
	ActionHistory ActionHistory
}
