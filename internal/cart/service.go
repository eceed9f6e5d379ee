package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/catalog"
	"github.com/oakline/storefront/internal/coupon"
	"github.com/oakline/storefront/internal/pricing"
	"github.com/oakline/storefront/internal/store"
)

// ErrNotFound indicates the requested cart or item could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Querier captures the store methods required by the cart service.
type Querier interface {
	GetCartByID(ctx context.Context, id pgtype.UUID) (store.Cart, error)
	GetActiveCartByUser(ctx context.Context, userID pgtype.UUID) (store.Cart, error)
	GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (store.Cart, error)
	CreateCart(ctx context.Context, userID pgtype.UUID, anonID pgtype.Text, expiresAt time.Time) (store.Cart, error)
	TouchCart(ctx context.Context, id pgtype.UUID, expiresAt time.Time) error
	UpdateCartCoupon(ctx context.Context, id pgtype.UUID, code pgtype.Text) error
	ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]store.CartItem, error)
	FindCartItemByProduct(ctx context.Context, cartID, productID pgtype.UUID) (store.CartItem, error)
	GetCartItemByID(ctx context.Context, id pgtype.UUID) (store.CartItem, error)
	CreateCartItem(ctx context.Context, item store.CartItem) (store.CartItem, error)
	UpdateCartItemQty(ctx context.Context, id pgtype.UUID, qty int32, subtotal int64) error
	DeleteCartItem(ctx context.Context, id, cartID pgtype.UUID) error
	GetProductByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
}

// Service encapsulates cart domain operations.
type Service struct {
	Q        Querier
	Coupons  *coupon.Service
	Shipping pricing.Money
	TTL      time.Duration
	Now      func() time.Time
}

// View is the cart payload returned to shoppers.
type View struct {
	ID         string          `json:"id"`
	Items      []ItemView      `json:"items"`
	CouponCode *string         `json:"couponCode,omitempty"`
	Summary    pricing.Summary `json:"summary"`
}

// ItemView is a single cart line.
type ItemView struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Qty       int32  `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
	Subtotal  int64  `json:"subtotal"`
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EnsureCart loads or creates a cart for the provided identifiers.
func (s *Service) EnsureCart(ctx context.Context, userID *string, anonID *string) (store.Cart, error) {
	if s == nil || s.Q == nil {
		return store.Cart{}, errors.New("cart service not configured")
	}
	expires := s.now().Add(s.ttl())

	if userID != nil && *userID != "" {
		uid, err := store.ToUUID(*userID)
		if err != nil {
			return store.Cart{}, fmt.Errorf("parse user id: %w", err)
		}
		c, err := s.Q.GetActiveCartByUser(ctx, uid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.Q.CreateCart(ctx, uid, pgtype.Text{}, expires)
			}
			return store.Cart{}, err
		}
		_ = s.Q.TouchCart(ctx, c.ID, expires)
		return c, nil
	}

	if anonID != nil && *anonID != "" {
		anon := pgtype.Text{String: *anonID, Valid: true}
		c, err := s.Q.GetActiveCartByAnon(ctx, anon)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.Q.CreateCart(ctx, pgtype.UUID{}, anon, expires)
			}
			return store.Cart{}, err
		}
		_ = s.Q.TouchCart(ctx, c.ID, expires)
		return c, nil
	}

	return store.Cart{}, ErrInvalidInput
}

// AddItem inserts or increments a cart line, snapshotting the product's
// effective price at add time.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, qty int) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	cID, err := store.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	pID, err := store.ToUUID(productID)
	if err != nil {
		return fmt.Errorf("parse product id: %w", err)
	}

	expires := s.now().Add(s.ttl())
	item, err := s.Q.FindCartItemByProduct(ctx, cID, pID)
	if err == nil {
		newQty := item.Qty + int32(qty)
		if err := s.Q.UpdateCartItemQty(ctx, item.ID, newQty, int64(newQty)*item.UnitPrice); err != nil {
			return err
		}
		_ = s.Q.TouchCart(ctx, cID, expires)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	product, err := s.Q.GetProductByID(ctx, pID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("product not found: %w", ErrInvalidInput)
		}
		return err
	}
	if product.Stock <= 0 {
		return fmt.Errorf("product out of stock: %w", ErrInvalidInput)
	}
	unitPrice := catalog.EffectivePrice(product)
	if unitPrice < 0 {
		unitPrice = 0
	}
	if _, err := s.Q.CreateCartItem(ctx, store.CartItem{
		CartID:    cID,
		ProductID: pID,
		Title:     product.Title,
		Slug:      product.Slug,
		Qty:       int32(qty),
		UnitPrice: unitPrice,
		Subtotal:  int64(qty) * unitPrice,
	}); err != nil {
		return err
	}
	_ = s.Q.TouchCart(ctx, cID, expires)
	return nil
}

// UpdateQty updates the quantity for a cart item.
func (s *Service) UpdateQty(ctx context.Context, itemID string, qty int) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	id, err := store.ToUUID(itemID)
	if err != nil {
		return fmt.Errorf("parse item id: %w", err)
	}
	item, err := s.Q.GetCartItemByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := s.Q.UpdateCartItemQty(ctx, item.ID, int32(qty), int64(qty)*item.UnitPrice); err != nil {
		return err
	}
	_ = s.Q.TouchCart(ctx, item.CartID, s.now().Add(s.ttl()))
	return nil
}

// RemoveItem deletes a cart item.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	cID, err := store.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	iID, err := store.ToUUID(itemID)
	if err != nil {
		return fmt.Errorf("parse item id: %w", err)
	}
	if err := s.Q.DeleteCartItem(ctx, iID, cID); err != nil {
		return err
	}
	_ = s.Q.TouchCart(ctx, cID, s.now().Add(s.ttl()))
	return nil
}

// ApplyCoupon validates and attaches a coupon to the cart, returning the
// discount it would currently grant.
func (s *Service) ApplyCoupon(ctx context.Context, cartID, code string) (pricing.Money, error) {
	if s == nil || s.Q == nil {
		return 0, errors.New("cart service not configured")
	}
	if s.Coupons == nil {
		return 0, errors.New("coupon service not configured")
	}
	cID, err := store.ToUUID(cartID)
	if err != nil {
		return 0, fmt.Errorf("parse cart id: %w", err)
	}
	c, err := s.Q.GetCartByID(ctx, cID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	subtotal, err := s.subtotal(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	applied, err := s.Coupons.Validate(ctx, code, subtotal)
	if err != nil {
		return 0, err
	}
	if err := s.Q.UpdateCartCoupon(ctx, c.ID, pgtype.Text{String: applied.Coupon.Code, Valid: true}); err != nil {
		return 0, err
	}
	_ = s.Q.TouchCart(ctx, c.ID, s.now().Add(s.ttl()))
	return applied.Discount, nil
}

// RemoveCoupon detaches any coupon from the cart.
func (s *Service) RemoveCoupon(ctx context.Context, cartID string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	cID, err := store.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	if err := s.Q.UpdateCartCoupon(ctx, cID, pgtype.Text{}); err != nil {
		return err
	}
	_ = s.Q.TouchCart(ctx, cID, s.now().Add(s.ttl()))
	return nil
}

// Get assembles the cart view with a priced summary. An attached coupon that
// no longer validates is reported without a discount rather than failing the
// whole view.
func (s *Service) Get(ctx context.Context, cartID string) (View, error) {
	if s == nil || s.Q == nil {
		return View{}, errors.New("cart service not configured")
	}
	cID, err := store.ToUUID(cartID)
	if err != nil {
		return View{}, fmt.Errorf("parse cart id: %w", err)
	}
	c, err := s.Q.GetCartByID(ctx, cID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, ErrNotFound
		}
		return View{}, err
	}
	items, err := s.Q.ListCartItems(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	lines := make([]pricing.LineItem, 0, len(items))
	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.LineItem{Qty: int(it.Qty), UnitPrice: it.UnitPrice})
		views = append(views, ItemView{
			ID:        store.UUIDString(it.ID),
			ProductID: store.UUIDString(it.ProductID),
			Title:     it.Title,
			Slug:      it.Slug,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}
	subtotal := pricing.Subtotal(lines)

	var discount pricing.Money
	view := View{ID: store.UUIDString(c.ID), Items: views}
	if c.AppliedCouponCode.Valid && s.Coupons != nil {
		code := c.AppliedCouponCode.String
		view.CouponCode = &code
		if applied, err := s.Coupons.Validate(ctx, code, subtotal); err == nil {
			discount = applied.Discount
		}
	}
	view.Summary = pricing.Compute(lines, discount, s.Shipping)
	return view, nil
}

func (s *Service) subtotal(ctx context.Context, cartID pgtype.UUID) (pricing.Money, error) {
	items, err := s.Q.ListCartItems(ctx, cartID)
	if err != nil {
		return 0, err
	}
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.LineItem{Qty: int(it.Qty), UnitPrice: it.UnitPrice})
	}
	return pricing.Subtotal(lines), nil
}
