package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowerbelle/backend-go/internal/config"
	"github.com/flowerbelle/backend-go/internal/domain"
)

const (
	forecastKeyPrefix     = "forecast:"
	summaryKeyPrefix      = forecastKeyPrefix + "summary:"
	dashboardStatsKey     = forecastKeyPrefix + "dashboard"
	forecastScanBatchSize = 100
)

// ForecastCache holds read models derived from stored forecasts and sales.
// Get methods report a miss with ok == false and a nil error.
type ForecastCache interface {
	GetSummary(ctx context.Context, productID int64) (*domain.ForecastSummary, bool, error)
	SetSummary(ctx context.Context, summary *domain.ForecastSummary) error
	InvalidateSummary(ctx context.Context, productID int64) error

	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, bool, error)
	SetDashboardStats(ctx context.Context, stats *domain.DashboardStats) error

	InvalidateAll(ctx context.Context) error
	Close() error
}

type redisForecastCache struct {
	client       *redis.Client
	summaryTTL   time.Duration
	dashboardTTL time.Duration
}

type noopForecastCache struct{}

// NewForecastCache returns a Redis-backed cache, or a noop cache when caching is disabled.
func NewForecastCache(ctx context.Context, cfg config.CacheConfig) (ForecastCache, error) {
	if !cfg.Enabled {
		return &noopForecastCache{}, nil
	}

	client, err := newRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &redisForecastCache{
		client:       client,
		summaryTTL:   ttlOrDefault(cfg.SummaryTTLSeconds),
		dashboardTTL: ttlOrDefault(cfg.DashboardTTLSeconds),
	}, nil
}

func NewNoopForecastCache() ForecastCache {
	return &noopForecastCache{}
}

func summaryKey(productID int64) string {
	return fmt.Sprintf("%s%d", summaryKeyPrefix, productID)
}

func (c *redisForecastCache) GetSummary(ctx context.Context, productID int64) (*domain.ForecastSummary, bool, error) {
	var summary domain.ForecastSummary
	ok, err := c.getJSON(ctx, summaryKey(productID), &summary)
	if err != nil || !ok {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *redisForecastCache) SetSummary(ctx context.Context, summary *domain.ForecastSummary) error {
	return c.setJSON(ctx, summaryKey(summary.ProductID), summary, c.summaryTTL)
}

func (c *redisForecastCache) InvalidateSummary(ctx context.Context, productID int64) error {
	// The store-wide stats move with every generation too.
	if err := c.client.Del(ctx, summaryKey(productID), dashboardStatsKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *redisForecastCache) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, bool, error) {
	var stats domain.DashboardStats
	ok, err := c.getJSON(ctx, dashboardStatsKey, &stats)
	if err != nil || !ok {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *redisForecastCache) SetDashboardStats(ctx context.Context, stats *domain.DashboardStats) error {
	return c.setJSON(ctx, dashboardStatsKey, stats, c.dashboardTTL)
}

func (c *redisForecastCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, forecastKeyPrefix, forecastScanBatchSize)
}

func (c *redisForecastCache) Close() error {
	return c.client.Close()
}

func (c *redisForecastCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *redisForecastCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (n *noopForecastCache) GetSummary(ctx context.Context, productID int64) (*domain.ForecastSummary, bool, error) {
	return nil, false, nil
}

func (n *noopForecastCache) SetSummary(ctx context.Context, summary *domain.ForecastSummary) error {
	return nil
}

func (n *noopForecastCache) InvalidateSummary(ctx context.Context, productID int64) error {
	return nil
}

func (n *noopForecastCache) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (n *noopForecastCache) SetDashboardStats(ctx context.Context, stats *domain.DashboardStats) error {
	return nil
}

func (n *noopForecastCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func (n *noopForecastCache) Close() error {
	return nil
}
