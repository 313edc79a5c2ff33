// Package detect classifies metric samples into anomalies. Detection is a
// pure function of the sample and the configured thresholds; no I/O.
package detect

import (
	"fmt"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

// Thresholds holds the rule boundaries for anomaly classification.
type Thresholds struct {
	CPUPercent        float64
	MemoryPercent     float64
	ActiveConnections int
	SlowQueries       int
}

// DefaultThresholds mirror the production alerting baselines.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:        90,
		MemoryPercent:     85,
		ActiveConnections: 120,
		SlowQueries:       3,
	}
}

type rule struct {
	match func(models.MetricSample) bool
	build func(models.MetricSample) models.Anomaly
}

// Detector evaluates an ordered rule list against metric samples. Rules
// are checked in priority order (cpu, memory, connections, slow queries)
// and the first match wins: a sample may present several symptoms but
// only the highest-priority one opens an incident per tick, which keeps
// a degrading target from producing an incident storm.
type Detector struct {
	rules []rule
}

// NewDetector builds a detector for the supplied thresholds.
func NewDetector(t Thresholds) *Detector {
	return &Detector{
		rules: []rule{
			{
				match: func(s models.MetricSample) bool { return s.CPUPercent > t.CPUPercent },
				build: func(s models.MetricSample) models.Anomaly {
					return models.Anomaly{
						IssueType: "high_cpu",
						Severity:  models.SeverityCritical,
						Symptoms:  fmt.Sprintf("CPU at %.2f%%", s.CPUPercent),
					}
				},
			},
			{
				match: func(s models.MetricSample) bool { return s.MemoryPercent > t.MemoryPercent },
				build: func(s models.MetricSample) models.Anomaly {
					return models.Anomaly{
						IssueType: "memory_pressure",
						Severity:  models.SeverityHigh,
						Symptoms:  fmt.Sprintf("Memory at %.2f%%", s.MemoryPercent),
					}
				},
			},
			{
				match: func(s models.MetricSample) bool { return s.ActiveConnections > t.ActiveConnections },
				build: func(s models.MetricSample) models.Anomaly {
					return models.Anomaly{
						IssueType: "connection_spike",
						Severity:  models.SeverityMedium,
						Symptoms: fmt.Sprintf("%d active connections of %d allowed",
							s.ActiveConnections, s.MaxConnections),
					}
				},
			},
			{
				match: func(s models.MetricSample) bool { return s.SlowQueriesCount > t.SlowQueries },
				build: func(s models.MetricSample) models.Anomaly {
					return models.Anomaly{
						IssueType: "slow_query_storm",
						Severity:  models.SeverityHigh,
						Symptoms:  fmt.Sprintf("%d slow queries in the sampling window", s.SlowQueriesCount),
					}
				},
			},
		},
	}
}

// Detect returns the highest-priority anomaly present in the sample, or
// nil when every gauge is within bounds.
func (d *Detector) Detect(sample models.MetricSample) *models.Anomaly {
	for _, r := range d.rules {
		if r.match(sample) {
			anomaly := r.build(sample)
			return &anomaly
		}
	}
	return nil
}
