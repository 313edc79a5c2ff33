package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
)

type targetRepo struct {
	db querier
}

func (r *targetRepo) Create(ctx context.Context, target *models.Target) error {
	if target.ID == "" {
		target.ID = uuid.NewString()
	}
	if target.CreatedAt.IsZero() {
		target.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO targets (id, name, status, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, target.ID, target.Name, target.Status, target.CreatedAt); err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	return nil
}

func (r *targetRepo) List(ctx context.Context) ([]models.Target, error) {
	query := `SELECT id, name, status, created_at FROM targets ORDER BY created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *targetRepo) Get(ctx context.Context, id string) (*models.Target, error) {
	return r.one(ctx, `SELECT id, name, status, created_at FROM targets WHERE id = $1`, id)
}

func (r *targetRepo) FindByName(ctx context.Context, name string) (*models.Target, error) {
	return r.one(ctx, `SELECT id, name, status, created_at FROM targets WHERE name = $1`, name)
}

func (r *targetRepo) one(ctx context.Context, query string, arg any) (*models.Target, error) {
	var t models.Target
	err := r.db.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("get target: %w", err)
	}
	return &t, nil
}

func (r *targetRepo) UpdateStatus(ctx context.Context, id string, status models.HealthStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE targets SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update target status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
