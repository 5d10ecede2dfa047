package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/forecast"
	"github.com/flowerbelle/backend-go/internal/repository"
	"github.com/flowerbelle/backend-go/internal/service"
)

// previewDays is how many forecast points the generate endpoint returns.
const previewDays = 7

// ForecastService is the part of service.ForecastService the handlers call.
type ForecastService interface {
	GenerateForecast(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	GetSummary(ctx context.Context, productID int64) (*domain.ForecastSummary, error)
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
	GetSeasonality(ctx context.Context, productID int64) ([]domain.SeasonalPeak, error)
}

type ForecastHandler struct {
	service ForecastService
}

func NewForecastHandler(service ForecastService) *ForecastHandler {
	return &ForecastHandler{service: service}
}

type forecastPointResponse struct {
	Date            string `json:"date"`
	PredictedDemand int    `json:"predicted_demand"`
	ConfidenceLower int    `json:"confidence_lower"`
	ConfidenceUpper int    `json:"confidence_upper"`
}

type generateResponse struct {
	Success        bool                    `json:"success"`
	Message        string                  `json:"message"`
	ModelID        int64                   `json:"model_id"`
	ModelName      string                  `json:"model_name"`
	Accuracy       float64                 `json:"accuracy"`
	Forecast       []forecastPointResponse `json:"forecast"`
	Recommendation domain.Recommendation   `json:"recommendation"`
}

// GenerateForecast handles POST /generate.
func (h *ForecastHandler) GenerateForecast(c *gin.Context) {
	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res, err := h.service.GenerateForecast(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	n := min(previewDays, len(res.Forecast))
	preview := make([]forecastPointResponse, n)
	for i, p := range res.Forecast[:n] {
		preview[i] = forecastPointResponse{
			Date:            p.Date.Format("2006-01-02"),
			PredictedDemand: p.PredictedDemand,
			ConfidenceLower: p.ConfidenceLower,
			ConfidenceUpper: p.ConfidenceUpper,
		}
	}

	c.JSON(http.StatusOK, generateResponse{
		Success:        true,
		Message:        fmt.Sprintf("Forecast generated for %d days", len(res.Forecast)),
		ModelID:        res.ModelID,
		ModelName:      res.ModelName,
		Accuracy:       math.Round(res.Metrics.AccuracyWithin20Pct*10000) / 100,
		Forecast:       preview,
		Recommendation: res.Recommendation,
	})
}

// GetSummary handles GET /summary/:product_id.
func (h *ForecastHandler) GetSummary(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *ForecastHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.service.GetDashboardStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ForecastHandler) GetSeasonality(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	peaks, err := h.service.GetSeasonality(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product_id": productID, "peaks": peaks})
}

func productIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid product_id"})
		return 0, false
	}
	return id, true
}

func (h *ForecastHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrProductNotFound):
		status = http.StatusNotFound
	case forecast.IsInsufficientData(err):
		status = http.StatusUnprocessableEntity
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("forecast request failed")
		message = "internal error"
	}

	c.JSON(status, gin.H{"success": false, "error": message})
}
