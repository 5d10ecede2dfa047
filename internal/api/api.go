package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/flowerbelle/backend-go/internal/api/handlers"
	"github.com/flowerbelle/backend-go/internal/api/middleware"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Services struct {
	Forecast handlers.ForecastService
	DB       Pinger
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler(services))

	apiGroup := router.Group("/api/v1")

	if services != nil && services.Forecast != nil {
		forecastHandler := handlers.NewForecastHandler(services.Forecast)
		forecastGroup := apiGroup.Group("/forecasting")
		{
			forecastGroup.POST("/generate", forecastHandler.GenerateForecast)
			forecastGroup.GET("/summary/:product_id", forecastHandler.GetSummary)
			forecastGroup.GET("/dashboard-stats", forecastHandler.GetDashboardStats)
			forecastGroup.GET("/seasonality/:product_id", forecastHandler.GetSeasonality)
		}
	}

	return router
}

func healthHandler(services *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if services != nil && services.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := services.DB.PingContext(ctx); err != nil {
				errorResponse(c, http.StatusServiceUnavailable, "database unreachable: "+err.Error())
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	log.Error().Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
