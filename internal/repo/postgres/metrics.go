package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

type metricRepo struct {
	db querier
}

func (r *metricRepo) Insert(ctx context.Context, sample *models.MetricSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO metric_samples (
			id, target_id, ts, cpu_percent, memory_percent,
			active_connections, max_connections, slow_queries_count,
			disk_usage_percent, queries_per_second, avg_query_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		sample.ID,
		sample.TargetID,
		sample.Timestamp,
		sample.CPUPercent,
		sample.MemoryPercent,
		sample.ActiveConnections,
		sample.MaxConnections,
		sample.SlowQueriesCount,
		sample.DiskUsagePercent,
		sample.QueriesPerSecond,
		sample.AvgQueryTimeMs,
	)
	if err != nil {
		return fmt.Errorf("insert metric sample: %w", err)
	}
	return nil
}

func (r *metricRepo) ListRange(ctx context.Context, targetID string, from, to time.Time, limit int) ([]models.MetricSample, error) {
	query := `
		SELECT id, target_id, ts, cpu_percent, memory_percent,
		       active_connections, max_connections, slow_queries_count,
		       disk_usage_percent, queries_per_second, avg_query_time_ms
		FROM (
			SELECT * FROM metric_samples
			WHERE target_id = $1 AND ts BETWEEN $2 AND $3
			ORDER BY ts DESC
			LIMIT $4
		) newest
		ORDER BY ts
	`
	if limit <= 0 {
		limit = 10000
	}
	rows, err := r.db.Query(ctx, query, targetID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list metric samples: %w", err)
	}
	defer rows.Close()

	var out []models.MetricSample
	for rows.Next() {
		var s models.MetricSample
		err := rows.Scan(
			&s.ID, &s.TargetID, &s.Timestamp, &s.CPUPercent, &s.MemoryPercent,
			&s.ActiveConnections, &s.MaxConnections, &s.SlowQueriesCount,
			&s.DiskUsagePercent, &s.QueriesPerSecond, &s.AvgQueryTimeMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
