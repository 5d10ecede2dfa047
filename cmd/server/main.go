// backend-go/cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"github.com/flowerbelle/backend-go/internal/api"
	"github.com/flowerbelle/backend-go/internal/cache"
	"github.com/flowerbelle/backend-go/internal/config"
	"github.com/flowerbelle/backend-go/internal/repository/postgres"
	"github.com/flowerbelle/backend-go/internal/service"
	"github.com/flowerbelle/backend-go/internal/storage"
	"github.com/flowerbelle/backend-go/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	level := cfg.Server.LogLevel
	if level == "" {
		level = cfg.Server.Mode
	}
	logger.Configure(level, cfg.Server.Mode == "debug")
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	forecastCache, err := cache.NewForecastCache(ctx, cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Redis unavailable, serving without cache")
		forecastCache = cache.NewNoopForecastCache()
	}
	defer forecastCache.Close()

	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Model storage unavailable, artifacts will not be stored")
		artifacts = storage.NoopStorage{}
	}

	// Initialize services
	loc := cfg.Forecast.Location()
	forecastService := service.NewForecastService(
		postgres.NewSalesRepository(db, loc),
		postgres.NewInventoryRepository(db),
		postgres.NewForecastRepository(db),
		forecastCache,
		artifacts,
		service.OptionsFromConfig(cfg.Forecast),
	)

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{Forecast: forecastService, DB: db}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().
			Str("port", cfg.Server.Port).
			Str("timezone", loc.String()).
			Str("backend", cfg.Forecast.Backend).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	// Allow in-flight training requests to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
