package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/repository"
	"github.com/flowerbelle/backend-go/internal/storage"
)

type fakeSales struct {
	daily map[int64][]domain.DailySale
	err   error
}

func (f *fakeSales) LatestSaleDate(ctx context.Context, productID int64) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	var latest time.Time
	found := false
	for _, d := range f.daily[productID] {
		if d.Quantity > 0 && (!found || d.Date.After(latest)) {
			latest, found = d.Date, true
		}
	}
	return latest, found, nil
}

func (f *fakeSales) DailySales(ctx context.Context, productID int64, start, end time.Time) ([]domain.DailySale, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.DailySale
	for _, d := range f.daily[productID] {
		if !d.Date.Before(start) && !d.Date.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSales) MonthlySales(ctx context.Context, productID int64, start, end time.Time) ([]domain.MonthlySales, error) {
	if f.err != nil {
		return nil, f.err
	}
	byMonth := make(map[int]int)
	for _, d := range f.daily[productID] {
		if !d.Date.Before(start) && !d.Date.After(end) {
			byMonth[int(d.Date.Month())] += d.Quantity
		}
	}
	out := make([]domain.MonthlySales, 0, len(byMonth))
	for m, q := range byMonth {
		out = append(out, domain.MonthlySales{Month: m, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (f *fakeSales) StoreDailyTotals(ctx context.Context) ([]domain.DailySale, error) {
	if f.err != nil {
		return nil, f.err
	}
	byDay := make(map[time.Time]int)
	for _, sales := range f.daily {
		for _, d := range sales {
			byDay[d.Date] += d.Quantity
		}
	}
	out := make([]domain.DailySale, 0, len(byDay))
	for d, q := range byDay {
		out = append(out, domain.DailySale{Date: d, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type fakeInventory struct {
	products map[int64]domain.Product
	calls    int
}

func (f *fakeInventory) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	f.calls++
	p, ok := f.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (f *fakeInventory) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range f.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeForecastRepo struct {
	mu        sync.Mutex
	nextID    int64
	models    map[string]domain.ForecastModel
	forecasts map[int64][]domain.ProductForecast
	recs      []domain.StockRecommendation

	failModel          error
	failRecommendation error
}

func newFakeForecastRepo() *fakeForecastRepo {
	return &fakeForecastRepo{
		models:    make(map[string]domain.ForecastModel),
		forecasts: make(map[int64][]domain.ProductForecast),
	}
}

// SaveForecastRun stages every write and commits only when all of them succeed.
func (f *fakeForecastRepo) SaveForecastRun(ctx context.Context, run *repository.ForecastRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failModel != nil {
		return repository.Wrap("save forecast run", f.failModel)
	}
	nextID := f.nextID
	newID := func() int64 {
		nextID++
		return nextID
	}

	model := *run.Model
	if existing, ok := f.models[model.Name]; ok {
		model.ID = existing.ID
	} else {
		model.ID = newID()
	}

	productID := model.ProductID
	rows := make([]domain.ProductForecast, len(run.Forecasts))
	var kept []domain.ProductForecast
	if len(rows) > 0 {
		first, last := run.Forecasts[0].ForecastDate, run.Forecasts[len(rows)-1].ForecastDate
		for _, r := range f.forecasts[productID] {
			if r.ForecastDate.Before(first) || r.ForecastDate.After(last) {
				kept = append(kept, r)
			}
		}
	} else {
		kept = append(kept, f.forecasts[productID]...)
	}
	for i, r := range run.Forecasts {
		r.ID = newID()
		r.ForecastModelID = model.ID
		rows[i] = r
		kept = append(kept, r)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ForecastDate.Before(kept[j].ForecastDate) })

	if f.failRecommendation != nil {
		return repository.Wrap("save forecast run", f.failRecommendation)
	}
	rec := *run.Recommendation
	rec.ID = newID()
	rec.Status = domain.RecommendationPending
	if len(rows) > 0 {
		id := rows[0].ID
		rec.ForecastID = &id
	}
	recs := make([]domain.StockRecommendation, 0, len(f.recs)+1)
	for _, r := range f.recs {
		if r.ProductID != rec.ProductID || r.Status != domain.RecommendationPending {
			recs = append(recs, r)
		}
	}

	f.nextID = nextID
	f.models[model.Name] = model
	f.forecasts[productID] = kept
	f.recs = append(recs, rec)

	*run.Model = model
	copy(run.Forecasts, rows)
	*run.Recommendation = rec
	return nil
}

func (f *fakeForecastRepo) ListForecasts(ctx context.Context, productID int64, from time.Time, limit int) ([]domain.ProductForecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ProductForecast
	for _, r := range f.forecasts[productID] {
		if !r.ForecastDate.Before(from) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeForecastRepo) LatestPendingRecommendation(ctx context.Context, productID int64) (*domain.StockRecommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.recs) - 1; i >= 0; i-- {
		if f.recs[i].ProductID == productID && f.recs[i].Status == domain.RecommendationPending {
			rec := f.recs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fakeForecastRepo) pending(productID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.recs {
		if r.ProductID == productID && r.Status == domain.RecommendationPending {
			n++
		}
	}
	return n
}

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memStorage) GetObject(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return v, nil
}

func (m *memStorage) UploadObject(ctx context.Context, key string, data []byte) error {
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

type memCache struct {
	summaries     map[int64]domain.ForecastSummary
	stats         *domain.DashboardStats
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{summaries: make(map[int64]domain.ForecastSummary)}
}

func (c *memCache) GetSummary(ctx context.Context, productID int64) (*domain.ForecastSummary, bool, error) {
	s, ok := c.summaries[productID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *memCache) SetSummary(ctx context.Context, summary *domain.ForecastSummary) error {
	c.summaries[summary.ProductID] = *summary
	return nil
}

func (c *memCache) InvalidateSummary(ctx context.Context, productID int64) error {
	c.invalidations++
	delete(c.summaries, productID)
	c.stats = nil
	return nil
}

func (c *memCache) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, bool, error) {
	if c.stats == nil {
		return nil, false, nil
	}
	s := *c.stats
	return &s, true, nil
}

func (c *memCache) SetDashboardStats(ctx context.Context, stats *domain.DashboardStats) error {
	s := *stats
	c.stats = &s
	return nil
}

func (c *memCache) InvalidateAll(ctx context.Context) error {
	c.summaries = make(map[int64]domain.ForecastSummary)
	c.stats = nil
	return nil
}

func (c *memCache) Close() error { return nil }
