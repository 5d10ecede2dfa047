package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	_ "time/tzdata"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/flowerbelle/backend-go/pkg/logger"
)

type ctxKey string

const dbKey ctxKey = "db"

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func initDB(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey, db)
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey).(*sql.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) *sql.DB {
	db, _ := c.Context.Value(dbKey).(*sql.DB)
	return db
}

func main() {
	_ = godotenv.Load(".env")

	app := &cli.App{
		Name:  "forecast",
		Usage: "Demand forecasting and restock recommendations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "Write JSON log lines instead of console output",
			},
		},
		Before: func(c *cli.Context) error {
			logger.Configure(c.String("log-level"), !c.Bool("json-logs"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply SQL migrations in lexical order",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:    "dir",
						Usage:   "Directory containing migration files",
						Value:   "./scripts/migrations",
						EnvVars: []string{"MIGRATIONS_DIR"},
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					return runMigrations(c.Context, dbFrom(c), c.String("dir"))
				},
			},
			{
				Name:  "seed",
				Usage: "Load products and completed sales from CSV files",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:    "data-dir",
						Usage:   "Directory containing products.csv and sales.csv",
						Value:   "./data/seeds",
						EnvVars: []string{"SEED_DATA_DIR"},
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					return runSeeder(c.Context, dbFrom(c), c.String("data-dir"))
				},
			},
			{
				Name:  "generate",
				Usage: "Train a model and forecast one product",
				Flags: append(forecastFlags(),
					newDBURLFlag(),
					&cli.Int64Flag{
						Name:     "product-id",
						Required: true,
					},
				),
				Before: initDB,
				After:  closeDB,
				Action: runGenerate,
			},
			{
				Name:  "batch",
				Usage: "Forecast every active product",
				Flags: append(forecastFlags(),
					newDBURLFlag(),
					&cli.IntFlag{
						Name:    "concurrency",
						Usage:   "Products forecast at once (0 uses FORECAST_BATCH_CONCURRENCY)",
						EnvVars: []string{"FORECAST_BATCH_CONCURRENCY"},
					},
				),
				Before: initDB,
				After:  closeDB,
				Action: runBatch,
			},
			{
				Name:  "retry",
				Usage: "Re-run the products that failed in an earlier batch",
				Flags: append(forecastFlags(),
					newDBURLFlag(),
					&cli.StringFlag{
						Name:     "run-id",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "concurrency",
						EnvVars: []string{"FORECAST_BATCH_CONCURRENCY"},
					},
				),
				Before: initDB,
				After:  closeDB,
				Action: runRetry,
			},
			{
				Name:  "run",
				Usage: "Show the progress of a batch run",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:     "run-id",
						Required: true,
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: runStatus,
			},
			{
				Name:  "models",
				Usage: "List stored model artifacts for a product, or inspect one",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.Int64Flag{
						Name:     "product-id",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "ref",
						Usage: "Artifact key to decode",
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: runModels,
			},
			{
				Name:   "cache-flush",
				Usage:  "Drop cached forecast summaries and dashboard stats",
				Flags:  []cli.Flag{newDBURLFlag()},
				Before: initDB,
				After:  closeDB,
				Action: runCacheFlush,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("forecast command failed")
	}
}
