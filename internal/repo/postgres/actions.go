package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
)

type actionRepo struct {
	db querier
}

func (r *actionRepo) Create(ctx context.Context, action *models.AgentAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO agent_actions (
			id, incident_id, ts, action_type, action_details,
			confidence_score, status, execution_time_ms, result_notes, rollback_plan
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		action.ID,
		action.IncidentID,
		action.Timestamp,
		action.ActionType,
		nullable(action.ActionDetails),
		action.ConfidenceScore,
		action.Status,
		action.ExecutionTimeMs,
		nullable(action.ResultNotes),
		nullable(action.RollbackPlan),
	)
	if err != nil {
		return fmt.Errorf("create agent action: %w", err)
	}
	return nil
}

func (r *actionRepo) UpdateStatus(ctx context.Context, id string, status models.ActionStatus, resultNotes string, executionTimeMs int64) error {
	query := `
		UPDATE agent_actions
		SET status = $2,
		    result_notes = COALESCE($3, result_notes),
		    execution_time_ms = CASE WHEN $4 > 0 THEN $4 ELSE execution_time_ms END
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, nullable(resultNotes), executionTimeMs)
	if err != nil {
		return fmt.Errorf("update agent action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *actionRepo) ListRecent(ctx context.Context, limit int) ([]models.AgentAction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, incident_id, ts, action_type, action_details,
		       confidence_score, status, execution_time_ms, result_notes, rollback_plan
		FROM agent_actions
		ORDER BY ts DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list agent actions: %w", err)
	}
	defer rows.Close()

	var out []models.AgentAction
	for rows.Next() {
		var (
			a       models.AgentAction
			details *string
			notes   *string
			plan    *string
		)
		err := rows.Scan(
			&a.ID, &a.IncidentID, &a.Timestamp, &a.ActionType, &details,
			&a.ConfidenceScore, &a.Status, &a.ExecutionTimeMs, &notes, &plan,
		)
		if err != nil {
			return nil, fmt.Errorf("scan agent action: %w", err)
		}
		if details != nil {
			a.ActionDetails = *details
		}
		if notes != nil {
			a.ResultNotes = *notes
		}
		if plan != nil {
			a.RollbackPlan = *plan
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
