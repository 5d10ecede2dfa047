package repository

import (
	"context"
	"time"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// SalesRepository reads completed sales. Dates are calendar days in the business
// timezone, returned as midnight UTC.
type SalesRepository interface {
	// LatestSaleDate returns the most recent day with a completed sale of the
	// product. ok is false when the product has never sold.
	LatestSaleDate(ctx context.Context, productID int64) (date time.Time, ok bool, err error)
	DailySales(ctx context.Context, productID int64, start, end time.Time) ([]domain.DailySale, error)
	MonthlySales(ctx context.Context, productID int64, start, end time.Time) ([]domain.MonthlySales, error)
	// StoreDailyTotals returns units sold per day across all products, only for days with sales.
	StoreDailyTotals(ctx context.Context) ([]domain.DailySale, error)
}

type InventoryRepository interface {
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
}

// ForecastRun is everything one generation persists for a product.
type ForecastRun struct {
	Model          *domain.ForecastModel
	Forecasts      []domain.ProductForecast
	Recommendation *domain.StockRecommendation
}

type ForecastRepository interface {
	// SaveForecastRun writes run in a single transaction: it upserts the model
	// registry row by name, replaces the product's forecasts inside the run's
	// date range and replaces its pending recommendation. Nothing is kept when
	// any write fails. On success the ids are set on run: every forecast points
	// at the model and the recommendation points at the first forecast.
	SaveForecastRun(ctx context.Context, run *ForecastRun) error
	ListForecasts(ctx context.Context, productID int64, from time.Time, limit int) ([]domain.ProductForecast, error)
	// LatestPendingRecommendation returns nil when the product has none.
	LatestPendingRecommendation(ctx context.Context, productID int64) (*domain.StockRecommendation, error)
}
