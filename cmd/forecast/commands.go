package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/flowerbelle/backend-go/internal/cache"
	"github.com/flowerbelle/backend-go/internal/config"
	"github.com/flowerbelle/backend-go/internal/pipeline"
	"github.com/flowerbelle/backend-go/internal/repository/postgres"
	"github.com/flowerbelle/backend-go/internal/service"
	"github.com/flowerbelle/backend-go/internal/storage"
)

func forecastFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Regression backend: random_forest or linear",
		},
		&cli.IntFlag{
			Name:  "forecast-days",
			Usage: "Days to forecast after the latest sale",
		},
		&cli.IntFlag{
			Name:  "training-days",
			Usage: "Days of sales history to train on",
		},
	}
}

type deps struct {
	cfg      *config.Config
	db       *postgres.DB
	service  *service.ForecastService
	closeFns []func() error
}

func (r *deps) Close() {
	for _, fn := range r.closeFns {
		if err := fn(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func newDeps(c *cli.Context) *deps {
	cfg := config.Load()
	db := postgres.Wrap(dbFrom(c), "pgx")
	rt := &deps{cfg: cfg, db: db}

	forecastCache, err := cache.NewForecastCache(c.Context, cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, summaries will not be invalidated")
		forecastCache = cache.NewNoopForecastCache()
	}
	rt.closeFns = append(rt.closeFns, forecastCache.Close)

	artifacts, err := storage.New(c.Context, cfg.Storage)
	if err != nil {
		log.Warn().Err(err).Msg("Model storage unavailable, artifacts will not be stored")
		artifacts = storage.NoopStorage{}
	}

	rt.service = service.NewForecastService(
		postgres.NewSalesRepository(db, cfg.Forecast.Location()),
		postgres.NewInventoryRepository(db),
		postgres.NewForecastRepository(db),
		forecastCache,
		artifacts,
		service.OptionsFromConfig(cfg.Forecast),
	)
	return rt
}

func runGenerate(c *cli.Context) error {
	rt := newDeps(c)
	defer rt.Close()

	res, err := rt.service.GenerateForecast(c.Context, service.GenerateRequest{
		ProductID:    c.Int64("product-id"),
		ForecastDays: c.Int("forecast-days"),
		TrainingDays: c.Int("training-days"),
		Backend:      c.String("backend"),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func batchConfig(c *cli.Context, cfg *config.Config) pipeline.BatchConfig {
	bc := pipeline.DefaultBatchConfig()
	if cfg.Forecast.BatchConcurrency > 0 {
		bc.Concurrency = cfg.Forecast.BatchConcurrency
	}
	if n := c.Int("concurrency"); n > 0 {
		bc.Concurrency = n
	}
	bc.Backend = c.String("backend")
	bc.ForecastDays = c.Int("forecast-days")
	bc.TrainingDays = c.Int("training-days")
	return bc
}

func runBatch(c *cli.Context) error {
	rt := newDeps(c)
	defer rt.Close()

	o := pipeline.NewOrchestrator(dbFrom(c), postgres.NewInventoryRepository(rt.db), rt.service, batchConfig(c, rt.cfg))
	run, err := o.Run(c.Context)
	if err != nil {
		return err
	}

	printRun(run)
	return nil
}

func runRetry(c *cli.Context) error {
	runID, err := uuid.Parse(c.String("run-id"))
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	rt := newDeps(c)
	defer rt.Close()

	o := pipeline.NewOrchestrator(dbFrom(c), postgres.NewInventoryRepository(rt.db), rt.service, batchConfig(c, rt.cfg))
	run, err := o.RetryFailed(c.Context, runID)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Println("no failed products to retry")
		return nil
	}

	printRun(run)
	return nil
}

func runStatus(c *cli.Context) error {
	runID, err := uuid.Parse(c.String("run-id"))
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	rt := newDeps(c)
	defer rt.Close()

	o := pipeline.NewOrchestrator(dbFrom(c), postgres.NewInventoryRepository(rt.db), rt.service, batchConfig(c, rt.cfg))
	run, err := o.Status(c.Context, runID)
	if err != nil {
		return err
	}

	printRun(run)
	if run.CompletedAt != nil {
		fmt.Printf("completed at %s\n", run.CompletedAt.Format(time.RFC3339))
	}
	if run.ErrorMessage != "" {
		fmt.Printf("error: %s\n", run.ErrorMessage)
	}
	return nil
}

func runModels(c *cli.Context) error {
	rt := newDeps(c)
	defer rt.Close()

	if ref := c.String("ref"); ref != "" {
		model, err := rt.service.LoadModel(c.Context, ref)
		if err != nil {
			return err
		}
		fmt.Printf("%s: type %s, band %.2f-%.2f, scaled %t\n",
			ref, model.ModelType, model.Band.Lower, model.Band.Upper, model.Scaler != nil)
		return nil
	}

	objects, err := rt.service.ListModelArtifacts(c.Context, c.Int64("product-id"))
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		fmt.Println("no stored models (is MODEL_STORAGE_ENABLED set?)")
		return nil
	}
	for _, o := range objects {
		fmt.Printf("%s\t%d bytes\n", o.Key, o.Size)
	}
	return nil
}

func runCacheFlush(c *cli.Context) error {
	rt := newDeps(c)
	defer rt.Close()

	if err := rt.service.FlushCache(c.Context); err != nil {
		return err
	}
	log.Info().Msg("forecast cache flushed")
	return nil
}

func printRun(run *pipeline.Run) {
	fmt.Printf("run %s %s: %d products, %d processed, %d skipped, %d failed\n",
		run.ID, run.Status, run.TotalProducts, run.ProcessedProducts, run.SkippedProducts, run.FailedProducts)
}
