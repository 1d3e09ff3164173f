package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/repository"
)

type productRepository struct {
	db *DB
}

func NewProductRepository(db *DB) repository.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, sku, name, unit_cost, selling_price, lead_time_days,
		       shelf_life_days, min_order_quantity, max_order_quantity, category, created_at
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("error getting product: %w", err)
	}
	return &p, nil
}

func (r *productRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT id, sku, name, unit_cost, selling_price, lead_time_days,
		       shelf_life_days, min_order_quantity, max_order_quantity, category, created_at
		FROM products
		ORDER BY sku
	`

	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("error listing products: %w", err)
	}
	return products, nil
}

func (r *productRepository) CreateProduct(ctx context.Context, p *domain.Product) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO products (
			sku, name, unit_cost, selling_price, lead_time_days,
			shelf_life_days, min_order_quantity, max_order_quantity, category, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at
	`, p.SKU, p.Name, p.UnitCost, p.SellingPrice, p.LeadTimeDays,
		p.ShelfLifeDays, p.MinOrderQuantity, p.MaxOrderQuantity, p.Category)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("error creating product: %w", err)
	}
	return nil
}
