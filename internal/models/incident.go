package models

import "time"

// Severity captures incident impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IncidentStatus enumerates the incident lifecycle states.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentFailed        IncidentStatus = "failed"
)

// Anomaly is a classified threshold violation produced by the detector.
type Anomaly struct {
	IssueType string   `json:"issueType"`
	Severity  Severity `json:"severity"`
	Symptoms  string   `json:"symptoms"`
}

// Incident is the durable record of a detected anomaly through to
// resolution. The symptoms embedding is opaque to everything except the
// AI provider and the case store. Invariant: ResolvedAt is set iff
// Status == resolved.
type Incident struct {
	ID                string         `json:"id"`
	TargetID          string         `json:"targetId"`
	TargetName        string         `json:"targetName,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	IssueType         string         `json:"issueType"`
	Severity          Severity       `json:"severity"`
	Symptoms          string         `json:"symptoms"`
	MetricsSnapshot   *MetricSample  `json:"metricsSnapshot,omitempty"`
	SymptomsEmbedding []float32      `json:"-"`
	Status            IncidentStatus `json:"status"`
	FixApplied        string         `json:"fixApplied,omitempty"`
	ResolutionNotes   string         `json:"resolutionNotes,omitempty"`
	AutoResolved      bool           `json:"autoResolved"`
	ResolvedAt        *time.Time     `json:"resolvedAt,omitempty"`
}

// Resolution captures the terminal fields applied to an incident once a
// remediation attempt completes.
type Resolution struct {
	Status          IncidentStatus
	FixApplied      string
	ResolutionNotes string
	AutoResolved    bool
	ResolvedAt      time.Time
}
