package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned for a run id that was never recorded.
var ErrRunNotFound = errors.New("run not found")

// Orchestrator resolves which products a batch covers and hands them to a Worker.
type Orchestrator struct {
	products ProductSource
	store    RunStore
	worker   *Worker
}

// NewOrchestrator creates an Orchestrator that tracks runs in the forecast_runs tables.
func NewOrchestrator(db *sql.DB, products ProductSource, generator Generator, cfg BatchConfig) *Orchestrator {
	return NewOrchestratorWithStore(NewRepository(db), products, generator, cfg)
}

// NewOrchestratorWithStore creates an Orchestrator over any RunStore.
func NewOrchestratorWithStore(store RunStore, products ProductSource, generator Generator, cfg BatchConfig) *Orchestrator {
	return &Orchestrator{
		products: products,
		store:    store,
		worker:   NewWorker(generator, store, cfg),
	}
}

// Run forecasts every active product.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	products, err := o.products.ListActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active products: %w", err)
	}

	return o.worker.ProcessBatch(ctx, productIDs(products))
}

// Status returns the recorded progress of a run.
func (o *Orchestrator) Status(ctx context.Context, runID uuid.UUID) (*Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// RetryFailed starts a new run over the products that failed in an earlier one.
// It returns nil when nothing failed.
func (o *Orchestrator) RetryFailed(ctx context.Context, runID uuid.UUID) (*Run, error) {
	if _, err := o.Status(ctx, runID); err != nil {
		return nil, err
	}

	ids, err := o.store.FailedProducts(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed products for run %s: %w", runID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return o.worker.ProcessBatch(ctx, ids)
}
