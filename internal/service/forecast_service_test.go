package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/forecast"
	"github.com/flowerbelle/backend-go/internal/repository"
	"github.com/flowerbelle/backend-go/internal/storage"
)

var anchor = time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)

func dailyHistory(end time.Time, days int) []domain.DailySale {
	out := make([]domain.DailySale, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := end.AddDate(0, 0, -i)
		q := 6 + i%4
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			q += 5
		}
		out = append(out, domain.DailySale{Date: d, Quantity: q})
	}
	return out
}

type fixture struct {
	svc       *ForecastService
	sales     *fakeSales
	inventory *fakeInventory
	repo      *fakeForecastRepo
	store     *memStorage
	cache     *memCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reorder := 40
	f := &fixture{
		sales: &fakeSales{daily: map[int64][]domain.DailySale{
			1: dailyHistory(anchor, 120),
			2: {{Date: anchor, Quantity: 3}},
		}},
		inventory: &fakeInventory{products: map[int64]domain.Product{
			1: {ID: 1, Name: "Red Roses", CurrentStock: 60, ReorderPoint: &reorder, IsActive: true},
			2: {ID: 2, Name: "Tulips", CurrentStock: 10, IsActive: true},
			3: {ID: 3, Name: "Orchids", CurrentStock: 5, IsActive: true},
		}},
		repo:  newFakeForecastRepo(),
		store: &memStorage{objects: make(map[string][]byte)},
		cache: newMemCache(),
	}
	f.svc = NewForecastService(f.sales, f.inventory, f.repo, f.cache, f.store, ForecastOptions{
		TrainingDays: 90,
		ForecastDays: 30,
		Backend:      "linear",
		BackendOptions: forecast.BackendOptions{
			Forest: forecast.ForestConfig{Trees: 8, Seed: 42, Workers: 2},
		},
	})
	f.svc.now = func() time.Time { return time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC) }
	return f
}

func TestGenerateForecastPersistsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1})
	require.NoError(t, err)

	assert.Equal(t, anchor, res.AnchorDate)
	assert.Equal(t, "LR_1_20240402", res.ModelName)
	assert.Equal(t, domain.ModelTypeLinearRegression, res.ModelType)
	assert.Equal(t, 72, res.Training.TrainCount)
	assert.Equal(t, 18, res.Training.TestCount)
	require.Len(t, res.Forecast, 30)
	assert.Equal(t, anchor.AddDate(0, 0, 1), res.Forecast[0].Date)
	assert.Zero(t, res.FallbackDays)

	// registry row
	model, ok := f.repo.models["LR_1_20240402"]
	require.True(t, ok)
	assert.Equal(t, res.ModelID, model.ID)
	assert.Equal(t, forecast.WindowStart(anchor, 90), model.TrainingStartDate)
	assert.Equal(t, anchor, model.TrainingEndDate)
	assert.JSONEq(t, `{"fit_intercept":true,"scaled":true}`, string(model.Parameters))

	// artifact round-trips
	require.True(t, strings.HasPrefix(res.ArtifactRef, "models/1/"))
	data, ok := f.store.objects[res.ArtifactRef]
	require.True(t, ok)
	decoded, err := forecast.DecodeModel(data)
	require.NoError(t, err)
	assert.Equal(t, domain.ModelTypeLinearRegression, decoded.ModelType)

	// forecast rows
	rows := f.repo.forecasts[1]
	require.Len(t, rows, 30)
	for i, r := range rows {
		assert.Equal(t, res.ModelID, r.ForecastModelID)
		assert.Equal(t, res.Forecast[i].PredictedDemand, r.PredictedDemand)
		assert.Equal(t, nominalConfidenceLevel, r.ConfidenceLevel)
	}

	// recommendation follows the first day and uses the configured reorder point
	want := forecast.Recommend(res.Forecast[0], 60, intPtr(40))
	assert.Equal(t, want, res.Recommendation)
	rec, err := f.repo.LatestPendingRecommendation(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.ForecastID)
	assert.Equal(t, rows[0].ID, *rec.ForecastID)
	assert.Equal(t, want.RecommendedOrderQuantity, rec.RecommendedOrderQuantity)

	assert.Equal(t, 1, f.cache.invalidations)
}

func TestGenerateForecastReplacesPreviousRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1})
	require.NoError(t, err)
	res, err := f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1, ForecastDays: 14, Backend: "rf"})
	require.NoError(t, err)

	assert.Equal(t, "RF_1_20240402", res.ModelName)
	// 14 new rows replace the overlapping dates, the tail of the 30-day run stays.
	assert.Len(t, f.repo.forecasts[1], 30)
	for _, r := range f.repo.forecasts[1][:14] {
		assert.Equal(t, res.ModelID, r.ForecastModelID)
	}
	assert.Equal(t, 1, f.repo.pending(1))
	assert.Len(t, f.repo.models, 2)
}

func TestGenerateForecastSerializesSameProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1, ForecastDays: 10})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, f.repo.forecasts[1], 10)
	assert.Equal(t, 1, f.repo.pending(1))
}

func TestGenerateForecastDataErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 3})
	assert.ErrorIs(t, err, forecast.ErrNoSalesHistory)
	assert.True(t, forecast.IsInsufficientData(err))

	_, err = f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 2})
	var ih *forecast.InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
	assert.Equal(t, 1, ih.DaysFound)

	_, err = f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 99})
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	assert.Empty(t, f.repo.models)
}

func TestGenerateForecastValidatesRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []GenerateRequest{
		{ProductID: 0},
		{ProductID: 1, ForecastDays: -1},
		{ProductID: 1, ForecastDays: MaxForecastDays + 1},
		{ProductID: 1, TrainingDays: 7},
		{ProductID: 1, Backend: "prophet"},
	}
	for _, req := range cases {
		_, err := f.svc.GenerateForecast(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
}

func TestGenerateForecastSurfacesPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.failModel = errors.New("connection reset")

	_, err := f.svc.GenerateForecast(context.Background(), GenerateRequest{ProductID: 1})
	require.Error(t, err)
	assert.True(t, repository.IsPersistence(err))
	assert.False(t, forecast.IsInsufficientData(err))
	assert.Empty(t, f.repo.forecasts[1])
}

func TestGenerateForecastKeepsPreviousRunWhenRecommendationWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1})
	require.NoError(t, err)
	before, err := f.repo.LatestPendingRecommendation(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, before)

	f.repo.failRecommendation = errors.New("db down")
	_, err = f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1, ForecastDays: 14, Backend: "rf"})
	require.Error(t, err)
	assert.True(t, repository.IsPersistence(err))

	assert.Len(t, f.repo.models, 1)
	_, ok := f.repo.models["RF_1_20240402"]
	assert.False(t, ok)
	require.Len(t, f.repo.forecasts[1], 30)
	for _, r := range f.repo.forecasts[1] {
		assert.Equal(t, first.ModelID, r.ForecastModelID)
	}

	after, err := f.repo.LatestPendingRecommendation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.repo.pending(1))
	assert.Equal(t, 1, f.cache.invalidations)
}

func TestGenerateForecastFirstRunFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.repo.failRecommendation = errors.New("db down")

	_, err := f.svc.GenerateForecast(context.Background(), GenerateRequest{ProductID: 1})
	require.Error(t, err)
	assert.Empty(t, f.repo.models)
	assert.Empty(t, f.repo.forecasts[1])
	assert.Zero(t, f.repo.pending(1))
}

func TestGetSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1})
	require.NoError(t, err)

	summary, err := f.svc.GetSummary(ctx, 1)
	require.NoError(t, err)

	want7, want30 := 0, 0
	for i, p := range res.Forecast {
		if i < 7 {
			want7 += p.PredictedDemand
		}
		want30 += p.PredictedDemand
	}
	assert.Equal(t, "Red Roses", summary.ProductName)
	assert.Equal(t, want7, summary.Forecast7Days)
	assert.Equal(t, want30, summary.Forecast30Days)
	assert.Equal(t, res.Recommendation.RecommendedOrderQuantity, summary.RecommendedOrder)
	assert.Equal(t, string(res.Recommendation.Priority), summary.Priority)
	if want7 > 0 {
		require.NotNil(t, summary.DaysUntilStockout)
		assert.Equal(t, int(60/(float64(want7)/7)), *summary.DaysUntilStockout)
	}

	// second read is served from cache
	calls := f.inventory.calls
	_, err = f.svc.GetSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, calls, f.inventory.calls)
}

func TestGetSummaryWithoutForecasts(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.GetSummary(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryDefaultPriority, summary.Priority)
	assert.Zero(t, summary.Forecast7Days)
	assert.Nil(t, summary.DaysUntilStockout)

	_, err = f.svc.GetSummary(context.Background(), 404)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)
}

func TestComputeDashboardStats(t *testing.T) {
	end := anchor
	days := []domain.DailySale{
		{Date: end.AddDate(0, 0, -50), Quantity: 20}, // previous window
		{Date: end.AddDate(0, 0, -30), Quantity: 30}, // previous window (boundary)
		{Date: end.AddDate(0, 0, -29), Quantity: 25}, // current window
		{Date: end, Quantity: 50},
		{Date: end.AddDate(0, 0, -90), Quantity: 5}, // outside both
	}

	stats := ComputeDashboardStats(days)
	assert.Equal(t, 130, stats.TotalItemsSold)
	assert.Equal(t, 26.0, stats.AvgDailyItems)
	assert.Equal(t, 50.0, stats.SalesGrowth) // 75 vs 50
	assert.Equal(t, 5, stats.DataPoints)

	assert.Equal(t, domain.DashboardStats{}, ComputeDashboardStats(nil))
}

func TestGetDashboardStatsUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, first.DataPoints)

	f.sales.err = errors.New("db down")
	second, err := f.svc.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetSeasonality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	peaks, err := f.svc.GetSeasonality(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, peaks)

	f.sales.daily[4] = []domain.DailySale{
		{Date: time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC), Quantity: 10},
		{Date: time.Date(2023, 7, 10, 0, 0, 0, 0, time.UTC), Quantity: 10},
		{Date: time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), Quantity: 90},
	}
	f.inventory.products[4] = domain.Product{ID: 4, Name: "Mixed Bouquet"}

	peaks, err = f.svc.GetSeasonality(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []domain.SeasonalPeak{{Month: 2, Sales: 90}}, peaks)
}

func TestProductLocksAreScopedPerProduct(t *testing.T) {
	locks := newProductLocks()
	unlockA := locks.lock(1)

	done := make(chan struct{})
	go func() {
		unlockB := locks.lock(2)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another product blocked")
	}
	unlockA()
}

func TestModelArtifactsRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.GenerateForecast(ctx, GenerateRequest{ProductID: 1, Backend: "rf"})
	require.NoError(t, err)

	objects, err := f.svc.ListModelArtifacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, res.ArtifactRef, objects[0].Key)

	model, err := f.svc.LoadModel(ctx, res.ArtifactRef)
	require.NoError(t, err)
	assert.Equal(t, domain.ModelTypeRandomForest, model.ModelType)
	assert.Equal(t, forecast.ForestBand, model.Band)

	// the decoded model reproduces the stored forecast
	replay := forecast.Forecast(model, forecast.ForecastInput{
		ProductID:    1,
		AnchorDate:   res.AnchorDate,
		Days:         len(res.Forecast),
		History:      seriesQuantities(t, f, 90),
		CurrentStock: 60,
	})
	assert.Equal(t, res.Forecast, replay)

	_, err = f.svc.LoadModel(ctx, "models/1/missing.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestFlushCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetSummary(ctx, 1)
	require.NoError(t, err)
	_, err = f.svc.GetDashboardStats(ctx)
	require.NoError(t, err)
	require.Len(t, f.cache.summaries, 1)

	require.NoError(t, f.svc.FlushCache(ctx))
	assert.Empty(t, f.cache.summaries)
	assert.Nil(t, f.cache.stats)
}

func seriesQuantities(t *testing.T, f *fixture, days int) []float64 {
	t.Helper()
	daily, err := f.sales.DailySales(context.Background(), 1, forecast.WindowStart(anchor, days), anchor)
	require.NoError(t, err)
	series, err := forecast.BuildDailySeries(1, anchor, days, daily)
	require.NoError(t, err)
	return series.Quantities()
}

func intPtr(v int) *int { return &v }
