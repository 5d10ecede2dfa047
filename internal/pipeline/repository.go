package pipeline

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Repository handles database operations for batch run tracking
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun inserts a new run record, assigning an id when the run has none.
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO forecast_runs (
			id, status, backend, total_products,
			processed_products, skipped_products, failed_products, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.ID, run.Status, run.Backend, run.TotalProducts,
		run.ProcessedProducts, run.SkippedProducts, run.FailedProducts, run.StartedAt,
	)

	return err
}

// UpdateRun updates an existing run
func (r *Repository) UpdateRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE forecast_runs
		SET status = $1, total_products = $2, processed_products = $3,
		    skipped_products = $4, failed_products = $5,
		    completed_at = $6, error_message = $7, updated_at = NOW()
		WHERE id = $8
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.TotalProducts, run.ProcessedProducts,
		run.SkippedProducts, run.FailedProducts,
		run.CompletedAt, nullString(run.ErrorMessage), run.ID,
	)

	return err
}

// GetRun retrieves a run by ID
func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, status, backend, total_products, processed_products,
		       skipped_products, failed_products, started_at, completed_at, error_message
		FROM forecast_runs
		WHERE id = $1
	`

	run := &Run{}
	var startedAt sql.NullTime
	var message sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Status, &run.Backend, &run.TotalProducts,
		&run.ProcessedProducts, &run.SkippedProducts, &run.FailedProducts,
		&startedAt, &run.CompletedAt, &message,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.StartedAt = startedAt.Time
	run.ErrorMessage = message.String
	return run, nil
}

// RecordItem stores the outcome for one product. Retrying a product in the same
// run overwrites its earlier outcome.
func (r *Repository) RecordItem(ctx context.Context, item *RunItem) error {
	query := `
		INSERT INTO forecast_run_items (run_id, product_id, outcome, message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, product_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			message = EXCLUDED.message,
			created_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, item.RunID, item.ProductID, item.Outcome, nullString(item.Message))
	return err
}

// FailedProducts lists the products that failed in a run, in id order.
func (r *Repository) FailedProducts(ctx context.Context, runID uuid.UUID) ([]int64, error) {
	query := `
		SELECT product_id
		FROM forecast_run_items
		WHERE run_id = $1 AND outcome = $2
		ORDER BY product_id
	`

	rows, err := r.db.QueryContext(ctx, query, runID, OutcomeFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
