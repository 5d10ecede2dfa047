// backend-go/internal/config/config.go
package config

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Forecast ForecastConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	LogLevel       string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns DATABASE_URL when set, otherwise a key/value connection string.
func (d DatabaseConfig) DSN() string {
	if strings.TrimSpace(d.URL) != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type CacheConfig struct {
	Enabled             bool
	RedisURL            string
	RedisHost           string
	RedisPort           string
	RedisPassword       string
	RedisDB             int
	SummaryTTLSeconds   int
	DashboardTTLSeconds int
}

// StorageConfig points at the S3-compatible bucket that holds trained model artifacts.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type ForecastConfig struct {
	TrainingDays     int
	ForecastDays     int
	Backend          string
	Timezone         string
	ForestTrees      int
	ForestMaxDepth   int
	ForestMinLeaf    int
	ForestSeed       int64
	ForestWorkers    int
	BatchConcurrency int
}

// Location resolves the business timezone used to bucket sales into calendar days.
// Unknown zone names fall back to UTC.
func (f ForecastConfig) Location() *time.Location {
	if strings.TrimSpace(f.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults(viper.GetViper())

		// Read from environment variables
		viper.AutomaticEnv()

		instance = fromViper(viper.GetViper())
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "flowerbelle")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_SUMMARY_TTL_SECONDS", 300)
	v.SetDefault("CACHE_DASHBOARD_TTL_SECONDS", 60)

	v.SetDefault("MODEL_STORAGE_ENABLED", false)
	v.SetDefault("MODEL_STORAGE_ENDPOINT", "127.0.0.1:9000")
	v.SetDefault("MODEL_STORAGE_ACCESS_KEY", "")
	v.SetDefault("MODEL_STORAGE_SECRET_KEY", "")
	v.SetDefault("MODEL_STORAGE_BUCKET", "forecast-models")
	v.SetDefault("MODEL_STORAGE_REGION", "us-east-1")
	v.SetDefault("MODEL_STORAGE_USE_SSL", false)

	v.SetDefault("FORECAST_TRAINING_DAYS", 90)
	v.SetDefault("FORECAST_DAYS", 30)
	v.SetDefault("FORECAST_BACKEND", "random_forest")
	v.SetDefault("FORECAST_TIMEZONE", "Asia/Manila")
	v.SetDefault("FORECAST_FOREST_TREES", 100)
	v.SetDefault("FORECAST_FOREST_MAX_DEPTH", 0)
	v.SetDefault("FORECAST_FOREST_MIN_LEAF", 1)
	v.SetDefault("FORECAST_FOREST_SEED", 42)
	v.SetDefault("FORECAST_FOREST_WORKERS", runtime.NumCPU())
	v.SetDefault("FORECAST_BATCH_CONCURRENCY", 4)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			LogLevel:       v.GetString("LOG_LEVEL"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:             v.GetBool("CACHE_ENABLED"),
			RedisURL:            v.GetString("REDIS_URL"),
			RedisHost:           v.GetString("REDIS_HOST"),
			RedisPort:           v.GetString("REDIS_PORT"),
			RedisPassword:       v.GetString("REDIS_PASSWORD"),
			RedisDB:             v.GetInt("REDIS_DB"),
			SummaryTTLSeconds:   v.GetInt("CACHE_SUMMARY_TTL_SECONDS"),
			DashboardTTLSeconds: v.GetInt("CACHE_DASHBOARD_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("MODEL_STORAGE_ENABLED"),
			Endpoint:  v.GetString("MODEL_STORAGE_ENDPOINT"),
			AccessKey: v.GetString("MODEL_STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("MODEL_STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("MODEL_STORAGE_BUCKET"),
			Region:    v.GetString("MODEL_STORAGE_REGION"),
			UseSSL:    v.GetBool("MODEL_STORAGE_USE_SSL"),
		},
		Forecast: ForecastConfig{
			TrainingDays:     v.GetInt("FORECAST_TRAINING_DAYS"),
			ForecastDays:     v.GetInt("FORECAST_DAYS"),
			Backend:          strings.ToLower(strings.TrimSpace(v.GetString("FORECAST_BACKEND"))),
			Timezone:         v.GetString("FORECAST_TIMEZONE"),
			ForestTrees:      v.GetInt("FORECAST_FOREST_TREES"),
			ForestMaxDepth:   v.GetInt("FORECAST_FOREST_MAX_DEPTH"),
			ForestMinLeaf:    v.GetInt("FORECAST_FOREST_MIN_LEAF"),
			ForestSeed:       v.GetInt64("FORECAST_FOREST_SEED"),
			ForestWorkers:    v.GetInt("FORECAST_FOREST_WORKERS"),
			BatchConcurrency: v.GetInt("FORECAST_BATCH_CONCURRENCY"),
		},
	}
}
