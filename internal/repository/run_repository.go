package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bulkmail/bulkmail/internal/database"
	"github.com/bulkmail/bulkmail/internal/model"
)

// RunRepository handles send run history persistence
type RunRepository struct {
	db *database.Postgres
}

// NewRunRepository creates a new RunRepository
func NewRunRepository(db *database.Postgres) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		return ErrInvalidInput
	}

	query := `
		INSERT INTO send_runs (id, source, template, subject, total, sent, failed, phase, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Source,
		run.Template,
		run.Subject,
		run.Total,
		run.Sent,
		run.Failed,
		run.Phase,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordDelivery stores the outcome of one attempt and bumps the run counters
// in a single transaction.
func (r *RunRepository) RecordDelivery(ctx context.Context, d *model.Delivery) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO send_deliveries (run_id, position, recipient, delivered, error, attempted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, d.RunID, d.Position, d.Recipient, d.Delivered, d.Error, d.AttemptedAt)
		if err != nil {
			return fmt.Errorf("failed to record delivery: %w", err)
		}

		sent, failed := 0, 1
		if d.Delivered {
			sent, failed = 1, 0
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE send_runs SET sent = sent + $1, failed = failed + $2 WHERE id = $3
		`, sent, failed, d.RunID)
		if err != nil {
			return fmt.Errorf("failed to update run counters: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Finish records the terminal phase and final counts of a run
func (r *RunRepository) Finish(ctx context.Context, id string, phase model.Phase, sent, failed int, finishedAt time.Time) error {
	query := `
		UPDATE send_runs
		SET phase = $1, sent = $2, failed = $3, finished_at = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, phase, sent, failed, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id string) (*model.Run, error) {
	query := `
		SELECT id, source, template, subject, total, sent, failed, phase, started_at, finished_at
		FROM send_runs
		WHERE id = $1
	`
	var run model.Run
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Source,
		&run.Template,
		&run.Subject,
		&run.Total,
		&run.Sent,
		&run.Failed,
		&run.Phase,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// List returns the most recent runs, newest first
func (r *RunRepository) List(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, source, template, subject, total, sent, failed, phase, started_at, finished_at
		FROM send_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(
			&run.ID,
			&run.Source,
			&run.Template,
			&run.Subject,
			&run.Total,
			&run.Sent,
			&run.Failed,
			&run.Phase,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Deliveries returns the attempts of a run in send order
func (r *RunRepository) Deliveries(ctx context.Context, runID string) ([]model.Delivery, error) {
	query := `
		SELECT run_id, position, recipient, delivered, error, attempted_at
		FROM send_deliveries
		WHERE run_id = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []model.Delivery{}
	for rows.Next() {
		var d model.Delivery
		if err := rows.Scan(&d.RunID, &d.Position, &d.Recipient, &d.Delivered, &d.Error, &d.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
