package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/flowerbelle/backend-go/internal/domain"
	"github.com/flowerbelle/backend-go/internal/repository"
)

type inventoryRepository struct {
	db *DB
}

func NewInventoryRepository(db *DB) repository.InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	query := `
		SELECT id, name, current_stock, reorder_point, is_active
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	err := r.db.GetContext(ctx, &p, query, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrProductNotFound
	}
	if err != nil {
		return nil, repository.Wrap("get product", err)
	}

	return &p, nil
}

func (r *inventoryRepository) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT id, name, current_stock, reorder_point, is_active
		FROM products
		WHERE is_active = TRUE
		ORDER BY id
	`

	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, repository.Wrap("list active products", err)
	}

	return products, nil
}
