package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/forecast"
	"github.com/flowerbelle/backend-go/internal/service"
)

// Worker forecasts a set of products with bounded concurrency and records
// progress in a RunStore.
type Worker struct {
	generator Generator
	store     RunStore
	config    BatchConfig
	mu        sync.Mutex
}

// NewWorker creates a new batch worker
func NewWorker(generator Generator, store RunStore, config BatchConfig) *Worker {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Worker{
		generator: generator,
		store:     store,
		config:    config,
	}
}

// ProcessBatch forecasts every product under a new run. A product that fails
// does not stop the batch; only cancellation or a tracking failure does.
func (w *Worker) ProcessBatch(ctx context.Context, productIDs []int64) (*Run, error) {
	run := &Run{
		Status:        StatusPending,
		Backend:       w.config.Backend,
		TotalProducts: len(productIDs),
		StartedAt:     time.Now(),
	}
	if err := w.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create forecast run: %w", err)
	}

	logger := log.With().Str("run_id", run.ID.String()).Logger()
	logger.Info().Int("products", len(productIDs)).Int("concurrency", w.config.Concurrency).Msg("batch forecast started")

	run.Status = StatusProcessing
	if err := w.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to update forecast run: %w", err)
	}

	if err := w.processProducts(ctx, run, productIDs); err != nil {
		w.finish(run, StatusFailed, err.Error())
		return run, err
	}

	w.finish(run, StatusCompleted, "")

	logger.Info().
		Int("processed", run.ProcessedProducts).
		Int("skipped", run.SkippedProducts).
		Int("failed", run.FailedProducts).
		Dur("elapsed", time.Since(run.StartedAt)).
		Msg("batch forecast completed")

	return run, nil
}

func (w *Worker) processProducts(ctx context.Context, run *Run, productIDs []int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)

	for _, id := range productIDs {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			return w.processProduct(gctx, run, id)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (w *Worker) processProduct(ctx context.Context, run *Run, productID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	item := &RunItem{RunID: run.ID, ProductID: productID, Outcome: OutcomeCompleted}
	res, err := w.generator.GenerateForecast(ctx, service.GenerateRequest{
		ProductID:    productID,
		ForecastDays: w.config.ForecastDays,
		TrainingDays: w.config.TrainingDays,
		Backend:      w.config.Backend,
	})

	switch {
	case err == nil:
		item.Message = fmt.Sprintf("%s: %d days, priority %s", res.ModelName, len(res.Forecast), res.Recommendation.Priority)
	case ctx.Err() != nil:
		return ctx.Err()
	case forecast.IsInsufficientData(err):
		item.Outcome = OutcomeSkipped
		item.Message = err.Error()
		log.Info().Int64("product_id", productID).Err(err).Msg("batch: skipping product")
	default:
		item.Outcome = OutcomeFailed
		item.Message = err.Error()
		log.Error().Int64("product_id", productID).Err(err).Msg("batch: forecast failed")
	}

	if err := w.store.RecordItem(ctx, item); err != nil {
		log.Warn().Int64("product_id", productID).Err(err).Msg("batch: failed to record outcome")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch item.Outcome {
	case OutcomeCompleted:
		run.ProcessedProducts++
	case OutcomeSkipped:
		run.SkippedProducts++
	case OutcomeFailed:
		run.FailedProducts++
	}
	return nil
}

// finish writes the terminal state with a fresh context so a cancelled batch
// is still recorded.
func (w *Worker) finish(run *Run, status RunStatus, message string) {
	now := time.Now()
	run.Status = status
	run.ErrorMessage = message
	run.CompletedAt = &now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.UpdateRun(ctx, run); err != nil {
		log.Error().Str("run_id", run.ID.String()).Err(err).Msg("batch: failed to finalize run")
	}
}

// productIDs extracts ids in the order given.
func productIDs(products []domain.Product) []int64 {
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}
