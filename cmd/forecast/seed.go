package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var saleTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// runSeeder loads products.csv (id,name,current_stock,reorder_point,is_active)
// and sales.csv (sold_at,product_id,quantity) in one transaction. Each sale row
// becomes a COMPLETED transaction with a single item.
func runSeeder(ctx context.Context, db *sql.DB, dataDir string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	log.Info().Str("dir", dataDir).Msg("Starting database seeding")

	products, err := seedProducts(ctx, tx, filepath.Join(dataDir, "products.csv"))
	if err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	sales, err := seedSales(ctx, tx, filepath.Join(dataDir, "sales.csv"))
	if err != nil {
		return fmt.Errorf("failed to seed sales: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().Int("products", products).Int("sales", sales).Msg("Database seeding completed")
	return nil
}

// csvRows opens a CSV file and yields each record keyed by header name.
func csvRows(filePath string, fn func(line int, row map[string]string) error) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		if err := fn(line, row); err != nil {
			return fmt.Errorf("%s line %d: %w", filepath.Base(filePath), line, err)
		}
	}
}

func seedProducts(ctx context.Context, tx *sql.Tx, filePath string) (int, error) {
	query := `
		INSERT INTO products (id, name, current_stock, reorder_point, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			current_stock = EXCLUDED.current_stock,
			reorder_point = EXCLUDED.reorder_point,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`

	count := 0
	err := csvRows(filePath, func(line int, row map[string]string) error {
		id, err := strconv.ParseInt(row["id"], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", row["id"])
		}
		stock, err := strconv.Atoi(row["current_stock"])
		if err != nil {
			return fmt.Errorf("invalid current_stock %q", row["current_stock"])
		}

		var reorder sql.NullInt64
		if v := row["reorder_point"]; v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid reorder_point %q", v)
			}
			reorder = sql.NullInt64{Int64: n, Valid: true}
		}

		active := true
		if v := row["is_active"]; v != "" {
			if active, err = strconv.ParseBool(v); err != nil {
				return fmt.Errorf("invalid is_active %q", v)
			}
		}

		if _, err := tx.ExecContext(ctx, query, id, row["name"], stock, reorder, active); err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	// explicit ids leave the sequence behind
	if _, err := tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('products', 'id'), COALESCE((SELECT MAX(id) FROM products), 1))`,
	); err != nil {
		return 0, fmt.Errorf("failed to reset products sequence: %w", err)
	}

	return count, nil
}

func seedSales(ctx context.Context, tx *sql.Tx, filePath string) (int, error) {
	count := 0
	err := csvRows(filePath, func(line int, row map[string]string) error {
		soldAt, err := parseSaleTime(row["sold_at"])
		if err != nil {
			return err
		}
		productID, err := strconv.ParseInt(row["product_id"], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product_id %q", row["product_id"])
		}
		qty, err := strconv.Atoi(row["quantity"])
		if err != nil || qty <= 0 {
			return fmt.Errorf("invalid quantity %q", row["quantity"])
		}

		var txID int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO sales_transactions (status, created_at) VALUES ('COMPLETED', $1) RETURNING id`, soldAt,
		).Scan(&txID); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_items (transaction_id, product_id, quantity) VALUES ($1, $2, $3)`,
			txID, productID, qty,
		); err != nil {
			return fmt.Errorf("failed to insert transaction item: %w", err)
		}
		count++
		return nil
	})
	return count, err
}

func parseSaleTime(v string) (time.Time, error) {
	for _, layout := range saleTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid sold_at %q", v)
}
