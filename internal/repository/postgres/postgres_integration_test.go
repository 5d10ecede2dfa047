package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
	_ "time/tzdata"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/repository"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	databaseURL := os.Getenv("FORECAST_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set FORECAST_TEST_DATABASE_URL to run postgres integration test")
	}

	sqlDB, err := sql.Open("pgx", databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	files, err := filepath.Glob(filepath.Join("..", "..", "..", "scripts", "migrations", "*.sql"))
	require.NoError(t, err)
	sort.Strings(files)
	for _, f := range files {
		body, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = sqlDB.ExecContext(ctx, string(body))
		require.NoError(t, err, f)
	}

	return Wrap(sqlDB, "pgx")
}

func seedProduct(t *testing.T, db *DB, stock int) int64 {
	t.Helper()
	ctx := context.Background()

	var id int64
	require.NoError(t, db.QueryRowxContext(ctx,
		`INSERT INTO products (name, current_stock, reorder_point) VALUES ($1, $2, NULL) RETURNING id`,
		fmt.Sprintf("IT Roses %d", time.Now().UnixNano()), stock,
	).Scan(&id))

	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM stock_recommendations WHERE product_id = $1`, id)
		_, _ = db.ExecContext(ctx, `DELETE FROM product_forecasts WHERE product_id = $1`, id)
		_, _ = db.ExecContext(ctx, `DELETE FROM forecast_models WHERE product_id = $1`, id)
		_, _ = db.ExecContext(ctx, `
			DELETE FROM sales_transactions WHERE id IN (
				SELECT transaction_id FROM transaction_items WHERE product_id = $1
			)`, id)
		_, _ = db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	})
	return id
}

func seedSale(t *testing.T, db *DB, productID int64, at time.Time, qty int, status string) {
	t.Helper()
	ctx := context.Background()

	var txID int64
	require.NoError(t, db.QueryRowxContext(ctx,
		`INSERT INTO sales_transactions (status, created_at) VALUES ($1, $2) RETURNING id`, status, at,
	).Scan(&txID))
	_, err := db.ExecContext(ctx,
		`INSERT INTO transaction_items (transaction_id, product_id, quantity) VALUES ($1, $2, $3)`,
		txID, productID, qty)
	require.NoError(t, err)
}

func TestSalesRepositoryBucketsByBusinessDay(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 40)

	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	// 2024-03-01 23:30 in Manila is still 2024-03-01 there but 15:30 UTC.
	seedSale(t, db, productID, time.Date(2024, 3, 1, 23, 30, 0, 0, manila), 3, completedStatus)
	seedSale(t, db, productID, time.Date(2024, 3, 1, 9, 0, 0, 0, manila), 2, completedStatus)
	seedSale(t, db, productID, time.Date(2024, 3, 2, 0, 30, 0, 0, manila), 5, completedStatus)
	seedSale(t, db, productID, time.Date(2024, 3, 9, 12, 0, 0, 0, manila), 9, "PENDING")

	repo := NewSalesRepository(db, manila)

	latest, ok, err := repo.LatestSaleDate(ctx, productID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), latest)

	daily, err := repo.DailySales(ctx, productID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), latest)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailySale{
		{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Quantity: 5},
		{Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Quantity: 5},
	}, daily)

	months, err := repo.MonthlySales(ctx, productID, time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC), latest)
	require.NoError(t, err)
	assert.Equal(t, []domain.MonthlySales{{Month: 3, Quantity: 10}}, months)

	_, ok, err = repo.LatestSaleDate(ctx, seedProduct(t, db, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInventoryRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 25)

	repo := NewInventoryRepository(db)
	p, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 25, p.CurrentStock)
	assert.Nil(t, p.ReorderPoint)

	_, err = repo.GetProduct(ctx, -1)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)
}

func TestForecastRepositoryReplacesRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 60)
	repo := NewForecastRepository(db)

	model := &domain.ForecastModel{
		ProductID:         productID,
		Name:              fmt.Sprintf("RF_%d_20240402", productID),
		ModelType:         domain.ModelTypeRandomForest,
		Version:           "2.0",
		Status:            "ACTIVE",
		Parameters:        []byte(`{"n_estimators":100}`),
		TrainingStartDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		TrainingEndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		TrainingSamples:   72,
		TestSamples:       18,
		IsActive:          true,
		EvaluationMetrics: domain.EvaluationMetrics{MSE: 4, RMSE: 2, AccuracyWithin20Pct: 0.75},
	}
	rows := func(n, demand int) []domain.ProductForecast {
		out := make([]domain.ProductForecast, n)
		for i := range out {
			out[i] = domain.ProductForecast{
				ProductID:       productID,
				ForecastDate:    time.Date(2024, 4, 1+i, 0, 0, 0, 0, time.UTC),
				PredictedDemand: demand,
				ConfidenceLower: demand * 85 / 100,
				ConfidenceUpper: demand * 115 / 100,
				ConfidenceLevel: 95,
				SeasonalFactor:  1,
			}
		}
		return out
	}
	recommendation := func(qty int) *domain.StockRecommendation {
		return &domain.StockRecommendation{
			ProductID:                productID,
			CurrentStock:             60,
			RecommendedOrderQuantity: qty,
			Reason:                   "Current stock: 60, Predicted demand: 12/day, Days until stockout: 5",
			Priority:                 domain.PriorityCritical,
			Action:                   domain.ActionUrgentOrder,
		}
	}

	none, err := repo.LatestPendingRecommendation(ctx, productID)
	require.NoError(t, err)
	assert.Nil(t, none)

	first := &repository.ForecastRun{Model: model, Forecasts: rows(30, 10), Recommendation: recommendation(100)}
	require.NoError(t, repo.SaveForecastRun(ctx, first))
	modelID := model.ID
	require.NotZero(t, modelID)

	second := &repository.ForecastRun{Model: model, Forecasts: rows(7, 12), Recommendation: recommendation(250)}
	require.NoError(t, repo.SaveForecastRun(ctx, second))
	assert.Equal(t, modelID, model.ID)
	require.NotNil(t, second.Recommendation.ForecastID)
	assert.Equal(t, second.Forecasts[0].ID, *second.Recommendation.ForecastID)
	assert.Equal(t, modelID, second.Forecasts[6].ForecastModelID)

	stored, err := repo.ListForecasts(ctx, productID, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	require.Len(t, stored, 30)
	assert.Equal(t, 12, stored[0].PredictedDemand)
	assert.Equal(t, 10, stored[7].PredictedDemand)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), stored[0].ForecastDate)

	// A row violating the demand check rolls back the model and the forecasts.
	broken := *model
	broken.Name = fmt.Sprintf("LR_%d_20240403", productID)
	bad := rows(3, 20)
	bad[2].PredictedDemand = -1
	err = repo.SaveForecastRun(ctx, &repository.ForecastRun{Model: &broken, Forecasts: bad, Recommendation: recommendation(999)})
	require.Error(t, err)
	assert.True(t, repository.IsPersistence(err))

	var models int
	require.NoError(t, db.GetContext(ctx, &models,
		`SELECT COUNT(*) FROM forecast_models WHERE product_id = $1`, productID))
	assert.Equal(t, 1, models)

	stored, err = repo.ListForecasts(ctx, productID, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.Equal(t, 12, stored[0].PredictedDemand)

	var pending int
	require.NoError(t, db.GetContext(ctx, &pending,
		`SELECT COUNT(*) FROM stock_recommendations WHERE product_id = $1 AND status = 'PENDING'`, productID))
	assert.Equal(t, 1, pending)

	rec, err := repo.LatestPendingRecommendation(ctx, productID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 250, rec.RecommendedOrderQuantity)
	assert.Equal(t, domain.PriorityCritical, rec.Priority)
}
