package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

type historyRepo struct {
	db querier
}

const historyColumns = `
	h.id, h.target_id, COALESCE(t.name, ''), h.ts, h.action_type,
	h.description, h.executed_by, h.success, h.details, h.related_event_id
`

func (r *historyRepo) Append(ctx context.Context, entry *models.ActionHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal history details: %w", err)
		}
	}

	query := `
		INSERT INTO action_history (
			id, target_id, ts, action_type, description,
			executed_by, success, details, related_event_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.TargetID,
		entry.Timestamp,
		entry.ActionType,
		entry.Description,
		entry.ExecutedBy,
		entry.Success,
		details,
		nullable(entry.RelatedEventID),
	)
	if err != nil {
		return fmt.Errorf("append action history: %w", err)
	}
	return nil
}

func (r *historyRepo) ListRecent(ctx context.Context, limit int) ([]models.ActionHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + historyColumns + `
		FROM action_history h
		LEFT JOIN targets t ON t.id = h.target_id
		ORDER BY h.ts DESC
		LIMIT $1
	`
	return r.list(ctx, query, limit)
}

func (r *historyRepo) ListSince(ctx context.Context, since time.Time) ([]models.ActionHistoryEntry, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM action_history h
		LEFT JOIN targets t ON t.id = h.target_id
		WHERE h.ts >= $1
		ORDER BY h.ts
	`
	return r.list(ctx, query, since)
}

func (r *historyRepo) list(ctx context.Context, query string, args ...any) ([]models.ActionHistoryEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list action history: %w", err)
	}
	defer rows.Close()

	var out []models.ActionHistoryEntry
	for rows.Next() {
		var (
			e       models.ActionHistoryEntry
			details []byte
			related *string
		)
		err := rows.Scan(
			&e.ID, &e.TargetID, &e.TargetName, &e.Timestamp, &e.ActionType,
			&e.Description, &e.ExecutedBy, &e.Success, &details, &related,
		)
		if err != nil {
			return nil, fmt.Errorf("scan action history: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal history details: %w", err)
			}
		}
		if related != nil {
			e.RelatedEventID = *related
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
