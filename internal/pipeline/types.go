package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/service"
)

// Generator runs the forecasting pipeline for a single product.
type Generator interface {
	GenerateForecast(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
}

// ProductSource lists the products a batch covers.
type ProductSource interface {
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
}

// RunStore persists batch progress.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	// GetRun returns nil when no run has the id.
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	RecordItem(ctx context.Context, item *RunItem) error
	FailedProducts(ctx context.Context, runID uuid.UUID) ([]int64, error)
}

// BatchConfig holds configuration for a batch run
type BatchConfig struct {
	Concurrency  int    // Number of products forecast at once
	Backend      string // Regression backend, empty for the service default
	ForecastDays int
	TrainingDays int
}

// DefaultBatchConfig returns sensible defaults
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Concurrency: runtime.NumCPU(),
	}
}

// RunStatus represents the current state of a batch run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// ItemOutcome is how a single product ended within a run.
type ItemOutcome string

const (
	OutcomeCompleted ItemOutcome = "completed"
	// OutcomeSkipped means the product had too little sales history to model.
	OutcomeSkipped ItemOutcome = "skipped"
	OutcomeFailed  ItemOutcome = "failed"
)

// Run tracks a single execution of the batch forecaster
type Run struct {
	ID                uuid.UUID
	Status            RunStatus
	Backend           string
	TotalProducts     int
	ProcessedProducts int
	SkippedProducts   int
	FailedProducts    int
	StartedAt         time.Time
	CompletedAt       *time.Time
	ErrorMessage      string
}

// RunItem records the outcome for one product
type RunItem struct {
	RunID     uuid.UUID
	ProductID int64
	Outcome   ItemOutcome
	Message   string
}
