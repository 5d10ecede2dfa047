package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flowerbelle/backend-go/internal/cache"
	"github.com/flowerbelle/backend-go/internal/config"
	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/forecast"
	"github.com/flowerbelle/backend-go/internal/repository"
	"github.com/flowerbelle/backend-go/internal/storage"
)

const (
	MaxForecastDays = 365
	MaxTrainingDays = 730

	modelVersion = "2.0"
	modelStatus  = "ACTIVE"
	// nominalConfidenceLevel is stored with each forecast row. The band itself is a
	// fixed multiplier and is not calibrated to this level.
	nominalConfidenceLevel = 95.0
	summaryHorizon         = 30
	summaryShortHorizon    = 7
)

// ErrInvalidRequest marks a request rejected before any data is read.
var ErrInvalidRequest = errors.New("invalid forecast request")

// ForecastOptions are the defaults applied to every generation request.
type ForecastOptions struct {
	TrainingDays   int
	ForecastDays   int
	Backend        string
	Location       *time.Location
	BackendOptions forecast.BackendOptions
}

// GenerateRequest asks for a fresh model and forecast for one product. Zero
// values fall back to ForecastOptions.
type GenerateRequest struct {
	ProductID    int64  `json:"product_id" binding:"required"`
	ForecastDays int    `json:"forecast_days"`
	TrainingDays int    `json:"training_days"`
	Backend      string `json:"backend"`
}

// GenerateResult is what one pipeline run produced and persisted.
type GenerateResult struct {
	ProductID      int64                    `json:"product_id"`
	ModelID        int64                    `json:"model_id"`
	ModelName      string                   `json:"model_name"`
	ModelType      domain.ModelType         `json:"model_type"`
	ArtifactRef    string                   `json:"artifact_ref,omitempty"`
	AnchorDate     time.Time                `json:"anchor_date"`
	Metrics        domain.EvaluationMetrics `json:"metrics"`
	Training       domain.TrainingInfo      `json:"training"`
	Forecast       []domain.ForecastPoint   `json:"forecast"`
	FallbackDays   int                      `json:"fallback_days"`
	Recommendation domain.Recommendation    `json:"recommendation"`
}

type ForecastService struct {
	sales     repository.SalesRepository
	inventory repository.InventoryRepository
	forecasts repository.ForecastRepository
	cache     cache.ForecastCache
	artifacts storage.ObjectStorage
	opts      ForecastOptions
	locks     *productLocks
	now       func() time.Time
}

func NewForecastService(
	sales repository.SalesRepository,
	inventory repository.InventoryRepository,
	forecasts repository.ForecastRepository,
	cacheImpl cache.ForecastCache,
	artifacts storage.ObjectStorage,
	opts ForecastOptions,
) *ForecastService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopForecastCache()
	}
	if artifacts == nil {
		artifacts = storage.NoopStorage{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TrainingDays <= 0 {
		opts.TrainingDays = forecast.DefaultTrainingDays
	}
	if opts.ForecastDays <= 0 {
		opts.ForecastDays = summaryHorizon
	}
	if opts.Backend == "" {
		opts.Backend = string(domain.ModelTypeRandomForest)
	}

	return &ForecastService{
		sales:     sales,
		inventory: inventory,
		forecasts: forecasts,
		cache:     cacheImpl,
		artifacts: artifacts,
		opts:      opts,
		locks:     newProductLocks(),
		now:       time.Now,
	}
}

func (s *ForecastService) normalize(req GenerateRequest) (GenerateRequest, error) {
	if req.ProductID <= 0 {
		return req, fmt.Errorf("%w: product_id must be positive", ErrInvalidRequest)
	}
	if req.ForecastDays == 0 {
		req.ForecastDays = s.opts.ForecastDays
	}
	if req.TrainingDays == 0 {
		req.TrainingDays = s.opts.TrainingDays
	}
	if req.Backend == "" {
		req.Backend = s.opts.Backend
	}

	if req.ForecastDays < 1 || req.ForecastDays > MaxForecastDays {
		return req, fmt.Errorf("%w: forecast_days must be between 1 and %d", ErrInvalidRequest, MaxForecastDays)
	}
	if req.TrainingDays < forecast.MinSalesDays || req.TrainingDays > MaxTrainingDays {
		return req, fmt.Errorf("%w: training_days must be between %d and %d", ErrInvalidRequest, forecast.MinSalesDays, MaxTrainingDays)
	}
	return req, nil
}

// GenerateForecast trains a model on the product's recent sales, rolls it
// forward, and replaces the stored forecasts and pending recommendation.
// Runs for the same product are serialized in-process; the repository adds a
// database advisory lock for writers in other processes.
func (s *ForecastService) GenerateForecast(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	backend, err := forecast.NewBackend(req.Backend, s.opts.BackendOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	unlock := s.locks.lock(req.ProductID)
	defer unlock()

	started := time.Now()
	logger := log.With().Int64("product_id", req.ProductID).Str("backend", string(backend.Type())).Logger()

	product, err := s.inventory.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	anchor, ok, err := s.sales.LatestSaleDate(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forecast.ErrNoSalesHistory
	}

	daily, err := s.sales.DailySales(ctx, product.ID, forecast.WindowStart(anchor, req.TrainingDays), anchor)
	if err != nil {
		return nil, err
	}

	series, err := forecast.BuildDailySeries(product.ID, anchor, req.TrainingDays, daily)
	if err != nil {
		return nil, err
	}

	model, metrics, info, err := forecast.NewTrainer(backend).Train(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}

	points := forecast.Forecast(model, forecast.ForecastInput{
		ProductID:    product.ID,
		AnchorDate:   anchor,
		Days:         req.ForecastDays,
		History:      series.Quantities(),
		CurrentStock: product.CurrentStock,
	})

	result := &GenerateResult{
		ProductID:  product.ID,
		ModelType:  model.ModelType,
		ModelName:  s.modelName(model.ModelType, product.ID),
		AnchorDate: anchor,
		Metrics:    metrics,
		Training:   info,
		Forecast:   points,
	}
	for _, p := range points {
		if p.Fallback {
			result.FallbackDays++
		}
	}

	result.ArtifactRef = s.storeArtifact(ctx, product.ID, model)

	params, err := json.Marshal(backend.Parameters())
	if err != nil {
		return nil, fmt.Errorf("encode model parameters: %w", err)
	}

	registry := &domain.ForecastModel{
		ProductID:         product.ID,
		Name:              result.ModelName,
		ModelType:         model.ModelType,
		Version:           modelVersion,
		Status:            modelStatus,
		Parameters:        params,
		TrainingStartDate: series.Start,
		TrainingEndDate:   series.End,
		TrainingSamples:   info.TrainCount,
		TestSamples:       info.TestCount,
		ArtifactRef:       result.ArtifactRef,
		IsActive:          true,
		EvaluationMetrics: metrics,
	}

	result.Recommendation = forecast.Recommend(points[0], product.CurrentStock, product.ReorderPoint)
	run := &repository.ForecastRun{
		Model:     registry,
		Forecasts: s.forecastRows(ctx, product.ID, anchor, points),
		Recommendation: &domain.StockRecommendation{
			ProductID:                product.ID,
			CurrentStock:             product.CurrentStock,
			RecommendedOrderQuantity: result.Recommendation.RecommendedOrderQuantity,
			DaysUntilStockout:        result.Recommendation.DaysUntilStockout,
			Reason:                   result.Recommendation.Reason,
			Priority:                 result.Recommendation.Priority,
			Action:                   result.Recommendation.Action,
			Status:                   domain.RecommendationPending,
		},
	}
	if err := s.forecasts.SaveForecastRun(ctx, run); err != nil {
		return nil, err
	}
	result.ModelID = registry.ID

	if err := s.cache.InvalidateSummary(ctx, product.ID); err != nil {
		logger.Warn().Err(err).Msg("forecast: cache invalidate summary failed")
	}

	logger.Info().
		Str("model", result.ModelName).
		Str("anchor_date", anchor.Format("2006-01-02")).
		Int("forecast_days", len(points)).
		Int("fallback_days", result.FallbackDays).
		Float64("accuracy", metrics.AccuracyWithin20Pct).
		Str("priority", string(result.Recommendation.Priority)).
		Dur("elapsed", time.Since(started)).
		Msg("forecast generated")

	return result, nil
}

func (s *ForecastService) modelName(mt domain.ModelType, productID int64) string {
	return fmt.Sprintf("%s_%d_%s", mt.NamePrefix(), productID, s.now().In(s.opts.Location).Format("20060102"))
}

// storeArtifact uploads the encoded model. Failures are logged and leave the
// model without an artifact.
func (s *ForecastService) storeArtifact(ctx context.Context, productID int64, model *forecast.TrainedModel) string {
	if _, disabled := s.artifacts.(storage.NoopStorage); disabled {
		return ""
	}

	data, err := forecast.EncodeModel(model)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("forecast: encode model artifact failed")
		return ""
	}

	key := storage.ModelKey(productID, uuid.NewString())
	if err := s.artifacts.UploadObject(ctx, key, data); err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Str("key", key).Msg("forecast: upload model artifact failed")
		return ""
	}
	return key
}

// forecastRows attaches seasonality to each point. Seasonality is best effort.
func (s *ForecastService) forecastRows(ctx context.Context, productID int64, anchor time.Time, points []domain.ForecastPoint) []domain.ProductForecast {
	months, err := s.sales.MonthlySales(ctx, productID, forecast.WindowStart(anchor, forecast.SeasonalityDays), anchor)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("forecast: monthly sales unavailable, skipping seasonality")
		months = nil
	}

	peakMonths := make(map[int]bool)
	for _, p := range forecast.DetectSeasonalPeaks(months) {
		peakMonths[p.Month] = true
	}

	rows := make([]domain.ProductForecast, len(points))
	for i, p := range points {
		month := int(p.Date.Month())
		rows[i] = domain.ProductForecast{
			ProductID:       productID,
			ForecastDate:    p.Date,
			PredictedDemand: p.PredictedDemand,
			ConfidenceLower: p.ConfidenceLower,
			ConfidenceUpper: p.ConfidenceUpper,
			ConfidenceLevel: nominalConfidenceLevel,
			IsPeakSeason:    peakMonths[month],
			SeasonalFactor:  forecast.SeasonalFactor(months, month),
		}
	}
	return rows
}

// GetSummary rolls up the stored forecast that starts the day after the
// product's latest sale.
func (s *ForecastService) GetSummary(ctx context.Context, productID int64) (*domain.ForecastSummary, error) {
	if summary, ok, err := s.cache.GetSummary(ctx, productID); err == nil && ok {
		return summary, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("forecast: cache get summary failed")
	}

	product, err := s.inventory.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	summary := &domain.ForecastSummary{
		ProductID:    product.ID,
		ProductName:  product.Name,
		CurrentStock: product.CurrentStock,
		Priority:     domain.SummaryDefaultPriority,
	}

	anchor, ok, err := s.sales.LatestSaleDate(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		rows, err := s.forecasts.ListForecasts(ctx, product.ID, anchor.AddDate(0, 0, 1), summaryHorizon)
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			if i < summaryShortHorizon {
				summary.Forecast7Days += r.PredictedDemand
			}
			summary.Forecast30Days += r.PredictedDemand
		}
	}

	if summary.Forecast7Days > 0 {
		avgDaily := float64(summary.Forecast7Days) / summaryShortHorizon
		days := int(float64(product.CurrentStock) / avgDaily)
		summary.DaysUntilStockout = &days
	}

	rec, err := s.forecasts.LatestPendingRecommendation(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		summary.RecommendedOrder = rec.RecommendedOrderQuantity
		summary.Priority = string(rec.Priority)
	}

	if err := s.cache.SetSummary(ctx, summary); err != nil {
		log.Warn().Err(err).Msg("forecast: cache set summary failed")
	}

	return summary, nil
}

func (s *ForecastService) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	if stats, ok, err := s.cache.GetDashboardStats(ctx); err == nil && ok {
		return stats, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("forecast: cache get dashboard stats failed")
	}

	totals, err := s.sales.StoreDailyTotals(ctx)
	if err != nil {
		return nil, err
	}

	stats := ComputeDashboardStats(totals)
	if err := s.cache.SetDashboardStats(ctx, &stats); err != nil {
		log.Warn().Err(err).Msg("forecast: cache set dashboard stats failed")
	}

	return &stats, nil
}

// ComputeDashboardStats summarizes store-wide daily totals. Growth compares the
// 30 days ending on the latest sale day with the 30 days before, in percent.
func ComputeDashboardStats(days []domain.DailySale) domain.DashboardStats {
	if len(days) == 0 {
		return domain.DashboardStats{}
	}

	end := days[0].Date
	total := 0
	for _, d := range days {
		total += d.Quantity
		if d.Date.After(end) {
			end = d.Date
		}
	}

	start30 := end.AddDate(0, 0, -30)
	start60 := end.AddDate(0, 0, -60)
	current, previous := 0, 0
	for _, d := range days {
		switch {
		case d.Date.After(start30) && !d.Date.After(end):
			current += d.Quantity
		case d.Date.After(start60) && !d.Date.After(start30):
			previous += d.Quantity
		}
	}

	growth := 0.0
	if previous > 0 {
		growth = float64(current-previous) / float64(previous) * 100
	}

	return domain.DashboardStats{
		TotalItemsSold: total,
		AvgDailyItems:  round2(float64(total) / float64(len(days))),
		SalesGrowth:    round2(growth),
		DataPoints:     len(days),
	}
}

// GetSeasonality returns the product's peak months over the last year of sales.
func (s *ForecastService) GetSeasonality(ctx context.Context, productID int64) ([]domain.SeasonalPeak, error) {
	product, err := s.inventory.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	anchor, ok, err := s.sales.LatestSaleDate(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.SeasonalPeak{}, nil
	}

	months, err := s.sales.MonthlySales(ctx, product.ID, forecast.WindowStart(anchor, forecast.SeasonalityDays), anchor)
	if err != nil {
		return nil, err
	}

	return forecast.DetectSeasonalPeaks(months), nil
}

// ListModelArtifacts returns the stored model artifacts for a product.
func (s *ForecastService) ListModelArtifacts(ctx context.Context, productID int64) ([]storage.ObjectInfo, error) {
	return s.artifacts.ListObjects(ctx, storage.ModelPrefix(productID))
}

// LoadModel fetches and decodes a stored model artifact.
func (s *ForecastService) LoadModel(ctx context.Context, ref string) (*forecast.TrainedModel, error) {
	data, err := s.artifacts.GetObject(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get model artifact %s: %w", ref, err)
	}
	return forecast.DecodeModel(data)
}

// FlushCache drops every cached summary and dashboard entry.
func (s *ForecastService) FlushCache(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// productLocks hands out one mutex per product id.
type productLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newProductLocks() *productLocks {
	return &productLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *productLocks) lock(productID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[productID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[productID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// OptionsFromConfig maps the forecast settings onto service options.
func OptionsFromConfig(cfg config.ForecastConfig) ForecastOptions {
	return ForecastOptions{
		TrainingDays: cfg.TrainingDays,
		ForecastDays: cfg.ForecastDays,
		Backend:      cfg.Backend,
		Location:     cfg.Location(),
		BackendOptions: forecast.BackendOptions{
			Forest: forecast.ForestConfig{
				Trees:          cfg.ForestTrees,
				MaxDepth:       cfg.ForestMaxDepth,
				MinSamplesLeaf: cfg.ForestMinLeaf,
				Seed:           cfg.ForestSeed,
				Workers:        cfg.ForestWorkers,
			},
		},
	}
}
