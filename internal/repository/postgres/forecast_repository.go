package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/repository"
)

type forecastRepository struct {
	db *DB
}

func NewForecastRepository(db *DB) repository.ForecastRepository {
	return &forecastRepository{db: db}
}

func (r *forecastRepository) SaveForecastRun(ctx context.Context, run *repository.ForecastRun) error {
	if run.Model == nil {
		return repository.Wrap("save forecast run", errors.New("missing model"))
	}

	var (
		modelID     int64
		forecastIDs []int64
		recID       int64
	)
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockProduct(ctx, tx, run.Model.ProductID); err != nil {
			return err
		}

		var err error
		if modelID, err = saveModel(ctx, tx, run.Model); err != nil {
			return err
		}

		rows := make([]domain.ProductForecast, len(run.Forecasts))
		copy(rows, run.Forecasts)
		for i := range rows {
			rows[i].ForecastModelID = modelID
		}
		if forecastIDs, err = replaceForecasts(ctx, tx, run.Model.ProductID, rows); err != nil {
			return err
		}

		if run.Recommendation == nil {
			return nil
		}
		var forecastID *int64
		if len(forecastIDs) > 0 {
			forecastID = &forecastIDs[0]
		}
		recID, err = replacePendingRecommendation(ctx, tx, run.Recommendation, forecastID)
		return err
	})
	if err != nil {
		return repository.Wrap("save forecast run", err)
	}

	run.Model.ID = modelID
	for i := range run.Forecasts {
		run.Forecasts[i].ID = forecastIDs[i]
		run.Forecasts[i].ForecastModelID = modelID
	}
	if rec := run.Recommendation; rec != nil {
		rec.ID = recID
		rec.Status = domain.RecommendationPending
		if len(forecastIDs) > 0 {
			id := forecastIDs[0]
			rec.ForecastID = &id
		}
	}
	return nil
}

// saveModel inserts a registry row, or updates the row with the same name.
func saveModel(ctx context.Context, tx *sqlx.Tx, m *domain.ForecastModel) (int64, error) {
	query := `
		INSERT INTO forecast_models (
			product_id, name, model_type, version, status, parameters,
			mse, rmse, mae, r2_score, accuracy,
			training_start_date, training_end_date, training_samples, test_samples,
			artifact_ref, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::jsonb,
			$7, $8, $9, $10, $11,
			$12::date, $13::date, $14, $15,
			$16, $17, NOW(), NOW()
		)
		ON CONFLICT (name) DO UPDATE SET
			model_type = EXCLUDED.model_type,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			parameters = EXCLUDED.parameters,
			mse = EXCLUDED.mse,
			rmse = EXCLUDED.rmse,
			mae = EXCLUDED.mae,
			r2_score = EXCLUDED.r2_score,
			accuracy = EXCLUDED.accuracy,
			training_start_date = EXCLUDED.training_start_date,
			training_end_date = EXCLUDED.training_end_date,
			training_samples = EXCLUDED.training_samples,
			test_samples = EXCLUDED.test_samples,
			artifact_ref = EXCLUDED.artifact_ref,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id
	`

	params := "{}"
	if len(m.Parameters) > 0 {
		params = string(m.Parameters)
	}

	var id int64
	err := tx.QueryRowxContext(ctx, query,
		m.ProductID, m.Name, m.ModelType, m.Version, m.Status, params,
		m.MSE, m.RMSE, m.MAE, m.R2Score, m.AccuracyWithin20Pct,
		m.TrainingStartDate.Format(dateLayout), m.TrainingEndDate.Format(dateLayout), m.TrainingSamples, m.TestSamples,
		m.ArtifactRef, m.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save forecast model: %w", err)
	}
	return id, nil
}

// replaceForecasts deletes the product's forecasts inside the date range of
// forecasts and inserts them. The returned ids follow input order.
func replaceForecasts(ctx context.Context, tx *sqlx.Tx, productID int64, forecasts []domain.ProductForecast) ([]int64, error) {
	if len(forecasts) == 0 {
		return nil, nil
	}

	first, last := forecasts[0].ForecastDate, forecasts[0].ForecastDate
	for _, f := range forecasts[1:] {
		if f.ForecastDate.Before(first) {
			first = f.ForecastDate
		}
		if f.ForecastDate.After(last) {
			last = f.ForecastDate
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM product_forecasts
		WHERE product_id = $1
		  AND forecast_date BETWEEN $2::date AND $3::date
	`, productID, first.Format(dateLayout), last.Format(dateLayout)); err != nil {
		return nil, fmt.Errorf("delete forecasts: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO product_forecasts (
			product_id, forecast_model_id, forecast_date, predicted_demand,
			confidence_lower, confidence_upper, confidence_level,
			is_peak_season, seasonal_factor, created_at
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare forecast insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(forecasts))
	for _, f := range forecasts {
		var id int64
		if err := stmt.QueryRowxContext(ctx,
			productID, f.ForecastModelID, f.ForecastDate.Format(dateLayout), f.PredictedDemand,
			f.ConfidenceLower, f.ConfidenceUpper, f.ConfidenceLevel,
			f.IsPeakSeason, f.SeasonalFactor,
		).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert forecast %s: %w", f.ForecastDate.Format(dateLayout), err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// replacePendingRecommendation deletes the product's pending recommendations and inserts rec.
func replacePendingRecommendation(ctx context.Context, tx *sqlx.Tx, rec *domain.StockRecommendation, forecastID *int64) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM stock_recommendations
		WHERE product_id = $1 AND status = $2
	`, rec.ProductID, domain.RecommendationPending); err != nil {
		return 0, fmt.Errorf("delete pending recommendations: %w", err)
	}

	var id int64
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO stock_recommendations (
			product_id, forecast_id, current_stock, recommended_order_quantity,
			days_until_stockout, reason, priority, action, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id
	`,
		rec.ProductID, forecastID, rec.CurrentStock, rec.RecommendedOrderQuantity,
		rec.DaysUntilStockout, rec.Reason, rec.Priority, rec.Action, domain.RecommendationPending,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert recommendation: %w", err)
	}
	return id, nil
}

func (r *forecastRepository) ListForecasts(ctx context.Context, productID int64, from time.Time, limit int) ([]domain.ProductForecast, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT id, product_id, forecast_model_id, forecast_date, predicted_demand,
		       confidence_lower, confidence_upper, confidence_level,
		       is_peak_season, seasonal_factor, created_at
		FROM product_forecasts
		WHERE product_id = $1
		  AND forecast_date >= $2::date
		ORDER BY forecast_date
		LIMIT $3
	`

	var forecasts []domain.ProductForecast
	if err := r.db.SelectContext(ctx, &forecasts, query, productID, from.Format(dateLayout), limit); err != nil {
		return nil, repository.Wrap("list forecasts", err)
	}
	for i := range forecasts {
		forecasts[i].ForecastDate = asDate(forecasts[i].ForecastDate)
	}

	return forecasts, nil
}

func (r *forecastRepository) LatestPendingRecommendation(ctx context.Context, productID int64) (*domain.StockRecommendation, error) {
	query := `
		SELECT id, product_id, forecast_id, current_stock, recommended_order_quantity,
		       days_until_stockout, reason, priority, action, status, created_at
		FROM stock_recommendations
		WHERE product_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var rec domain.StockRecommendation
	err := r.db.GetContext(ctx, &rec, query, productID, domain.RecommendationPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, repository.Wrap("latest pending recommendation", err)
	}

	return &rec, nil
}
