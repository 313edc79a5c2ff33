package models

import "time"

// HealthStatus captures the last observed health of a monitored target.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
	StatusOffline  HealthStatus = "offline"
)

// Target is a monitored database instance. Targets are created at
// registration and never deleted during normal operation; only health
// checks mutate Status.
type Target struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// MetricSample is one immutable health reading for a target. Samples form
// an append-only time series; retention is the store's concern.
type MetricSample struct {
	ID                string    `json:"id"`
	TargetID          string    `json:"targetId"`
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpuPercent"`
	MemoryPercent     float64   `json:"memoryPercent"`
	ActiveConnections int       `json:"activeConnections"`
	MaxConnections    int       `json:"maxConnections"`
	SlowQueriesCount  int       `json:"slowQueriesCount"`
	DiskUsagePercent  float64   `json:"diskUsagePercent"`
	QueriesPerSecond  float64   `json:"queriesPerSecond"`
	AvgQueryTimeMs    float64   `json:"avgQueryTimeMs"`
}
