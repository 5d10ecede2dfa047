package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/repository"
)

const (
	// completedStatus is the only transaction status counted as a sale.
	completedStatus = "COMPLETED"

	dateLayout = "2006-01-02"
)

type salesRepository struct {
	db *DB
	tz string
}

// NewSalesRepository buckets sale timestamps into calendar days of loc.
func NewSalesRepository(db *DB, loc *time.Location) repository.SalesRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &salesRepository{db: db, tz: loc.String()}
}

func (r *salesRepository) LatestSaleDate(ctx context.Context, productID int64) (time.Time, bool, error) {
	query := `
		SELECT MAX((st.created_at AT TIME ZONE $2)::date)
		FROM transaction_items ti
		JOIN sales_transactions st ON st.id = ti.transaction_id
		WHERE ti.product_id = $1
		  AND st.status = $3
	`

	var latest sql.NullTime
	if err := r.db.GetContext(ctx, &latest, query, productID, r.tz, completedStatus); err != nil {
		return time.Time{}, false, repository.Wrap("latest sale date", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}

	return asDate(latest.Time), true, nil
}

func (r *salesRepository) DailySales(ctx context.Context, productID int64, start, end time.Time) ([]domain.DailySale, error) {
	query := `
		SELECT (st.created_at AT TIME ZONE $2)::date AS sale_date,
		       SUM(ti.quantity)::int AS quantity
		FROM transaction_items ti
		JOIN sales_transactions st ON st.id = ti.transaction_id
		WHERE ti.product_id = $1
		  AND st.status = $3
		  AND (st.created_at AT TIME ZONE $2)::date BETWEEN $4::date AND $5::date
		GROUP BY sale_date
		ORDER BY sale_date
	`

	var sales []domain.DailySale
	if err := r.db.SelectContext(ctx, &sales, query, productID, r.tz, completedStatus, start.Format(dateLayout), end.Format(dateLayout)); err != nil {
		return nil, repository.Wrap("daily sales", err)
	}
	for i := range sales {
		sales[i].Date = asDate(sales[i].Date)
	}

	return sales, nil
}

func (r *salesRepository) MonthlySales(ctx context.Context, productID int64, start, end time.Time) ([]domain.MonthlySales, error) {
	query := `
		SELECT EXTRACT(MONTH FROM st.created_at AT TIME ZONE $2)::int AS month,
		       SUM(ti.quantity)::int AS quantity
		FROM transaction_items ti
		JOIN sales_transactions st ON st.id = ti.transaction_id
		WHERE ti.product_id = $1
		  AND st.status = $3
		  AND (st.created_at AT TIME ZONE $2)::date BETWEEN $4::date AND $5::date
		GROUP BY month
		ORDER BY month
	`

	var months []domain.MonthlySales
	if err := r.db.SelectContext(ctx, &months, query, productID, r.tz, completedStatus, start.Format(dateLayout), end.Format(dateLayout)); err != nil {
		return nil, repository.Wrap("monthly sales", err)
	}

	return months, nil
}

func (r *salesRepository) StoreDailyTotals(ctx context.Context) ([]domain.DailySale, error) {
	query := `
		SELECT (st.created_at AT TIME ZONE $1)::date AS sale_date,
		       SUM(ti.quantity)::int AS quantity
		FROM transaction_items ti
		JOIN sales_transactions st ON st.id = ti.transaction_id
		WHERE st.status = $2
		GROUP BY sale_date
		ORDER BY sale_date
	`

	var totals []domain.DailySale
	if err := r.db.SelectContext(ctx, &totals, query, r.tz, completedStatus); err != nil {
		return nil, repository.Wrap("store daily totals", err)
	}
	for i := range totals {
		totals[i].Date = asDate(totals[i].Date)
	}

	return totals, nil
}

// asDate drops whatever zone the driver attached to a DATE column.
func asDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
