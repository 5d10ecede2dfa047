// backend-go/internal/domain/models.go
package domain

import (
	"encoding/json"
	"time"
)

// Product is the slice of the inventory record the forecasting pipeline reads.
type Product struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	CurrentStock int    `json:"current_stock" db:"current_stock"`
	ReorderPoint *int   `json:"reorder_point,omitempty" db:"reorder_point"`
	IsActive     bool   `json:"is_active" db:"is_active"`
}

// DailySale is the quantity sold on one calendar day.
type DailySale struct {
	Date     time.Time `json:"date" db:"sale_date"`
	Quantity int       `json:"quantity" db:"quantity"`
}

// MonthlySales aggregates sales by calendar month number (1-12).
type MonthlySales struct {
	Month    int `json:"month" db:"month"`
	Quantity int `json:"quantity" db:"quantity"`
}

// ForecastPoint is one day of predicted demand.
type ForecastPoint struct {
	Date            time.Time `json:"date"`
	PredictedDemand int       `json:"predicted_demand"`
	ConfidenceLower int       `json:"confidence_lower"`
	ConfidenceUpper int       `json:"confidence_upper"`
	Fallback        bool      `json:"fallback,omitempty"`
}

// Recommendation is the reorder decision derived from one forecast point.
type Recommendation struct {
	Priority                 Priority `json:"priority"`
	Action                   Action   `json:"action"`
	RecommendedOrderQuantity int      `json:"recommended_order_quantity"`
	DaysUntilStockout        *int     `json:"days_until_stockout"`
	Reason                   string   `json:"reason"`
}

// EvaluationMetrics are computed on the held-out chronological tail of a series.
type EvaluationMetrics struct {
	MSE                 float64 `json:"mse" db:"mse"`
	RMSE                float64 `json:"rmse" db:"rmse"`
	MAE                 float64 `json:"mae" db:"mae"`
	R2Score             float64 `json:"r2_score" db:"r2_score"`
	AccuracyWithin20Pct float64 `json:"accuracy_within_20pct" db:"accuracy"`
}

// TrainingInfo describes the data a model was fit on.
type TrainingInfo struct {
	TrainCount   int `json:"train_count"`
	TestCount    int `json:"test_count"`
	FeatureCount int `json:"feature_count"`
	WindowDays   int `json:"window_days"`
}

// ForecastModel is the registry row written for every training run.
type ForecastModel struct {
	ID                int64           `json:"id" db:"id"`
	ProductID         int64           `json:"product_id" db:"product_id"`
	Name              string          `json:"name" db:"name"`
	ModelType         ModelType       `json:"model_type" db:"model_type"`
	Version           string          `json:"version" db:"version"`
	Status            string          `json:"status" db:"status"`
	Parameters        json.RawMessage `json:"parameters" db:"parameters"`
	TrainingStartDate time.Time       `json:"training_start_date" db:"training_start_date"`
	TrainingEndDate   time.Time       `json:"training_end_date" db:"training_end_date"`
	TrainingSamples   int             `json:"training_samples" db:"training_samples"`
	TestSamples       int             `json:"test_samples" db:"test_samples"`
	ArtifactRef       string          `json:"artifact_ref" db:"artifact_ref"`
	IsActive          bool            `json:"is_active" db:"is_active"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	EvaluationMetrics
}

// ProductForecast is a persisted forecast point.
type ProductForecast struct {
	ID              int64     `json:"id" db:"id"`
	ProductID       int64     `json:"product_id" db:"product_id"`
	ForecastModelID int64     `json:"forecast_model_id" db:"forecast_model_id"`
	ForecastDate    time.Time `json:"forecast_date" db:"forecast_date"`
	PredictedDemand int       `json:"predicted_demand" db:"predicted_demand"`
	ConfidenceLower int       `json:"confidence_lower" db:"confidence_lower"`
	ConfidenceUpper int       `json:"confidence_upper" db:"confidence_upper"`
	ConfidenceLevel float64   `json:"confidence_level" db:"confidence_level"`
	IsPeakSeason    bool      `json:"is_peak_season" db:"is_peak_season"`
	SeasonalFactor  float64   `json:"seasonal_factor" db:"seasonal_factor"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// StockRecommendation is a persisted recommendation.
type StockRecommendation struct {
	ID                       int64                `json:"id" db:"id"`
	ProductID                int64                `json:"product_id" db:"product_id"`
	ForecastID               *int64               `json:"forecast_id,omitempty" db:"forecast_id"`
	CurrentStock             int                  `json:"current_stock" db:"current_stock"`
	RecommendedOrderQuantity int                  `json:"recommended_order_quantity" db:"recommended_order_quantity"`
	DaysUntilStockout        *int                 `json:"days_until_stockout" db:"days_until_stockout"`
	Reason                   string               `json:"reason" db:"reason"`
	Priority                 Priority             `json:"priority" db:"priority"`
	Action                   Action               `json:"action" db:"action"`
	Status                   RecommendationStatus `json:"status" db:"status"`
	CreatedAt                time.Time            `json:"created_at" db:"created_at"`
}

// ForecastSummary is the per-product roll-up served to the dashboard.
type ForecastSummary struct {
	ProductID         int64  `json:"product_id"`
	ProductName       string `json:"product_name"`
	CurrentStock      int    `json:"current_stock"`
	Forecast7Days     int    `json:"forecast_7_days"`
	Forecast30Days    int    `json:"forecast_30_days"`
	RecommendedOrder  int    `json:"recommended_order"`
	DaysUntilStockout *int   `json:"days_until_stockout"`
	Priority          string `json:"priority"`
}

// DashboardStats summarizes store-wide unit sales.
type DashboardStats struct {
	TotalItemsSold int     `json:"total_items_sold"`
	AvgDailyItems  float64 `json:"avg_daily_items"`
	SalesGrowth    float64 `json:"sales_growth"`
	DataPoints     int     `json:"data_points"`
}

// SeasonalPeak marks a month whose sales are well above the monthly average.
type SeasonalPeak struct {
	Month int `json:"month"`
	Sales int `json:"sales"`
}
