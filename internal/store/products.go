package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Product mirrors a row of the products table. DiscountedPrice, when valid,
// is the effective selling price.
type Product struct {
	ID              pgtype.UUID
	Slug            string
	Title           string
	Price           int64
	DiscountedPrice pgtype.Int8
	Stock           int32
	CreatedAt       time.Time
}

const productColumns = `id, slug, title, price, discounted_price, stock, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Price, &p.DiscountedPrice, &p.Stock, &p.CreatedAt)
	return p, err
}

// GetProductByID loads a product by primary key.
func (s *Store) GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// GetProductBySlug loads a product by its public slug.
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug)
	return scanProduct(row)
}

// ListProducts returns products ordered by creation time, newest first.
func (s *Store) ListProducts(ctx context.Context, limit, offset int32) ([]Product, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountProducts returns the total number of products.
func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var total int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total)
	return total, err
}
