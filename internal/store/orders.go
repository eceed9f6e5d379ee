package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Order mirrors a row of the orders table. Pricing fields are snapshots taken
// at checkout; they are never recomputed afterwards.
type Order struct {
	ID              pgtype.UUID
	UserID          pgtype.UUID
	CartID          pgtype.UUID
	Status          string
	Currency        string
	Subtotal        int64
	Discount        int64
	ShippingCost    int64
	Total           int64
	CouponID        pgtype.UUID
	CouponCode      pgtype.Text
	ShippingAddress []byte
	PaymentMethod   pgtype.Text
	Notes           pgtype.Text
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem mirrors a row of the order_items table.
type OrderItem struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Title     string
	Slug      string
	Qty       int32
	UnitPrice int64
	Subtotal  int64
}

// CreateOrderParams carries the fields required to insert an order.
type CreateOrderParams struct {
	UserID          pgtype.UUID
	CartID          pgtype.UUID
	Status          string
	Currency        string
	Subtotal        int64
	Discount        int64
	ShippingCost    int64
	Total           int64
	CouponID        pgtype.UUID
	CouponCode      pgtype.Text
	ShippingAddress []byte
	PaymentMethod   pgtype.Text
	Notes           pgtype.Text
}

const orderColumns = `id, user_id, cart_id, status, currency, subtotal, discount,
	shipping_cost, total, coupon_id, coupon_code, shipping_address, payment_method,
	notes, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.CartID, &o.Status, &o.Currency, &o.Subtotal, &o.Discount,
		&o.ShippingCost, &o.Total, &o.CouponID, &o.CouponCode, &o.ShippingAddress,
		&o.PaymentMethod, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// CreateOrder inserts an order inside the supplied transaction.
func (s *Store) CreateOrder(ctx context.Context, tx pgx.Tx, p CreateOrderParams) (Order, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, cart_id, status, currency, subtotal, discount,
			shipping_cost, total, coupon_id, coupon_code, shipping_address,
			payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+orderColumns,
		p.UserID, p.CartID, p.Status, p.Currency, p.Subtotal, p.Discount,
		p.ShippingCost, p.Total, p.CouponID, p.CouponCode, p.ShippingAddress,
		p.PaymentMethod, p.Notes)
	return scanOrder(row)
}

// CreateOrderItem inserts an order line inside the supplied transaction.
func (s *Store) CreateOrderItem(ctx context.Context, tx pgx.Tx, item OrderItem) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, title, slug, qty, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.OrderID, item.ProductID, item.Title, item.Slug, item.Qty, item.UnitPrice, item.Subtotal)
	return err
}

// GetOrderByID loads an order by primary key.
func (s *Store) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUser loads an order scoped to its owner.
func (s *Store) GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (Order, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
	return scanOrder(row)
}

// ListOrdersForUser returns the user's orders, newest first.
func (s *Store) ListOrdersForUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Order, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOrdersForUser returns the total number of orders owned by the user.
func (s *Store) CountOrdersForUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var total int64
	err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}

// ListOrderItems returns all lines of an order.
func (s *Store) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, order_id, product_id, title, slug, qty, unit_price, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Slug, &it.Qty, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateOrderStatus sets the order status unconditionally. Status semantics
// live with the callers; the store does not gate transitions.
func (s *Store) UpdateOrderStatus(ctx context.Context, id pgtype.UUID, status string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

// UpdateOrderStatusFrom sets the order status only when the current status
// matches. It reports whether a row was updated.
func (s *Store) UpdateOrderStatusFrom(ctx context.Context, id pgtype.UUID, from, to string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
