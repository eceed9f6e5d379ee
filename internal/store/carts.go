package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Cart mirrors a row of the carts table.
type Cart struct {
	ID                pgtype.UUID
	UserID            pgtype.UUID
	AnonID            pgtype.Text
	AppliedCouponCode pgtype.Text
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// CartItem mirrors a row of the cart_items table. UnitPrice is the effective
// price snapshotted at add time.
type CartItem struct {
	ID        pgtype.UUID
	CartID    pgtype.UUID
	ProductID pgtype.UUID
	Title     string
	Slug      string
	Qty       int32
	UnitPrice int64
	Subtotal  int64
}

const cartColumns = `id, user_id, anon_id, applied_coupon_code, expires_at, created_at`
const cartItemColumns = `id, cart_id, product_id, title, slug, qty, unit_price, subtotal`

func scanCart(row pgx.Row) (Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.UserID, &c.AnonID, &c.AppliedCouponCode, &c.ExpiresAt, &c.CreatedAt)
	return c, err
}

func scanCartItem(row pgx.Row) (CartItem, error) {
	var it CartItem
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Title, &it.Slug, &it.Qty, &it.UnitPrice, &it.Subtotal)
	return it, err
}

// GetCartByID loads a cart by primary key.
func (s *Store) GetCartByID(ctx context.Context, id pgtype.UUID) (Cart, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	return scanCart(row)
}

// GetActiveCartByUser returns the newest unexpired cart for the user.
func (s *Store) GetActiveCartByUser(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC LIMIT 1`, userID)
	return scanCart(row)
}

// GetActiveCartByAnon returns the newest unexpired cart for the anonymous id.
func (s *Store) GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (Cart, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE anon_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC LIMIT 1`, anonID)
	return scanCart(row)
}

// CreateCart inserts a cart for either a user or an anonymous visitor.
func (s *Store) CreateCart(ctx context.Context, userID pgtype.UUID, anonID pgtype.Text, expiresAt time.Time) (Cart, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO carts (user_id, anon_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING `+cartColumns,
		userID, anonID, expiresAt)
	return scanCart(row)
}

// TouchCart extends the lifetime of a cart.
func (s *Store) TouchCart(ctx context.Context, id pgtype.UUID, expiresAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE carts SET expires_at = $2 WHERE id = $1`, id, expiresAt)
	return err
}

// UpdateCartCoupon attaches or clears the applied coupon code.
func (s *Store) UpdateCartCoupon(ctx context.Context, id pgtype.UUID, code pgtype.Text) error {
	_, err := s.Pool.Exec(ctx, `UPDATE carts SET applied_coupon_code = $2 WHERE id = $1`, id, code)
	return err
}

// ListCartItems returns all items for a cart.
func (s *Store) ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]CartItem, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// FindCartItemByProduct locates an existing line for the product in the cart.
func (s *Store) FindCartItemByProduct(ctx context.Context, cartID, productID pgtype.UUID) (CartItem, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID)
	return scanCartItem(row)
}

// GetCartItemByID loads a single cart item.
func (s *Store) GetCartItemByID(ctx context.Context, id pgtype.UUID) (CartItem, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE id = $1`, id)
	return scanCartItem(row)
}

// CreateCartItem inserts a new line into the cart.
func (s *Store) CreateCartItem(ctx context.Context, item CartItem) (CartItem, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, product_id, title, slug, qty, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+cartItemColumns,
		item.CartID, item.ProductID, item.Title, item.Slug, item.Qty, item.UnitPrice, item.Subtotal)
	return scanCartItem(row)
}

// UpdateCartItemQty updates quantity and the derived subtotal of a line.
func (s *Store) UpdateCartItemQty(ctx context.Context, id pgtype.UUID, qty int32, subtotal int64) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE cart_items SET qty = $2, subtotal = $3 WHERE id = $1`, id, qty, subtotal)
	return err
}

// DeleteCartItem removes a line from the cart.
func (s *Store) DeleteCartItem(ctx context.Context, id, cartID pgtype.UUID) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, id, cartID)
	return err
}
