package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
)

type incidentRepo struct {
	db querier
}

const incidentColumns = `
	i.id, i.target_id, COALESCE(t.name, ''), i.ts, i.issue_type, i.severity,
	i.symptoms, i.metrics_snapshot, i.symptoms_embedding, i.status,
	i.fix_applied, i.resolution_notes, i.auto_resolved, i.resolved_at
`

func (r *incidentRepo) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.Timestamp.IsZero() {
		incident.Timestamp = time.Now().UTC()
	}
	if incident.Status == "" {
		incident.Status = models.IncidentOpen
	}

	var snapshot []byte
	if incident.MetricsSnapshot != nil {
		var err error
		snapshot, err = json.Marshal(incident.MetricsSnapshot)
		if err != nil {
			return fmt.Errorf("marshal metrics snapshot: %w", err)
		}
	}

	query := `
		INSERT INTO incidents (
			id, target_id, ts, issue_type, severity, symptoms,
			metrics_snapshot, symptoms_embedding, status,
			fix_applied, resolution_notes, auto_resolved, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		incident.ID,
		incident.TargetID,
		incident.Timestamp,
		incident.IssueType,
		incident.Severity,
		incident.Symptoms,
		snapshot,
		encodeVector(incident.SymptomsEmbedding),
		incident.Status,
		nullable(incident.FixApplied),
		nullable(incident.ResolutionNotes),
		incident.AutoResolved,
		incident.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

func (r *incidentRepo) Get(ctx context.Context, id string) (*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents i
		LEFT JOIN targets t ON t.id = i.target_id
		WHERE i.id = $1
	`
	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

func (r *incidentRepo) ListByStatus(ctx context.Context, status models.IncidentStatus, limit int) ([]models.Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents i
		LEFT JOIN targets t ON t.id = i.target_id
		WHERE ($1::text = '' OR i.status = $1::text)
		ORDER BY i.ts DESC
		LIMIT $2
	`
	return r.list(ctx, query, string(status), limit)
}

func (r *incidentRepo) ListResolved(ctx context.Context) ([]models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents i
		LEFT JOIN targets t ON t.id = i.target_id
		WHERE i.status = 'resolved'
		ORDER BY i.ts DESC
	`
	return r.list(ctx, query)
}

func (r *incidentRepo) list(ctx context.Context, query string, args ...any) ([]models.Incident, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

func (r *incidentRepo) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE incidents SET symptoms_embedding = $2 WHERE id = $1`,
		id, encodeVector(embedding))
	if err != nil {
		return fmt.Errorf("set incident embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *incidentRepo) UpdateStatus(ctx context.Context, id string, status models.IncidentStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE incidents SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update incident status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *incidentRepo) Resolve(ctx context.Context, id string, resolution models.Resolution) error {
	var resolvedAt *time.Time
	if resolution.Status == models.IncidentResolved {
		at := resolution.ResolvedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		resolvedAt = &at
	}

	// Terminal states are write-once; the WHERE clause makes the second
	// writer lose instead of clobbering the first outcome.
	query := `
		UPDATE incidents
		SET status = $2, fix_applied = $3, resolution_notes = $4,
		    auto_resolved = $5, resolved_at = $6
		WHERE id = $1 AND status NOT IN ('resolved', 'failed')
	`
	tag, err := r.db.Exec(ctx, query,
		id, resolution.Status, nullable(resolution.FixApplied),
		nullable(resolution.ResolutionNotes), resolution.AutoResolved, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("resolve incident: %w", err)
		}
		if !exists {
			return repo.ErrNotFound
		}
		return repo.ErrAlreadyResolved
	}
	return nil
}

func (r *incidentRepo) HasUnresolved(ctx context.Context, targetID, issueType string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM incidents
			WHERE target_id = $1 AND issue_type = $2
			  AND status IN ('open', 'investigating')
		)
	`
	if err := r.db.QueryRow(ctx, query, targetID, issueType).Scan(&exists); err != nil {
		return false, fmt.Errorf("check unresolved incidents: %w", err)
	}
	return exists, nil
}

func (r *incidentRepo) CountOpenBySeverity(ctx context.Context, severity models.Severity) (int, error) {
	var n int
	query := `
		SELECT COUNT(*) FROM incidents
		WHERE severity = $1 AND status IN ('open', 'investigating')
	`
	if err := r.db.QueryRow(ctx, query, severity).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open incidents: %w", err)
	}
	return n, nil
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	var (
		inc        models.Incident
		snapshot   []byte
		embedding  []byte
		fixApplied *string
		notes      *string
	)
	err := row.Scan(
		&inc.ID, &inc.TargetID, &inc.TargetName, &inc.Timestamp,
		&inc.IssueType, &inc.Severity, &inc.Symptoms,
		&snapshot, &embedding, &inc.Status,
		&fixApplied, &notes, &inc.AutoResolved, &inc.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		var sample models.MetricSample
		if err := json.Unmarshal(snapshot, &sample); err != nil {
			return nil, fmt.Errorf("unmarshal metrics snapshot: %w", err)
		}
		inc.MetricsSnapshot = &sample
	}
	if inc.SymptomsEmbedding, err = decodeVector(embedding); err != nil {
		return nil, err
	}
	if fixApplied != nil {
		inc.FixApplied = *fixApplied
	}
	if notes != nil {
		inc.ResolutionNotes = *notes
	}
	return &inc, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
