package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/coupon"
	"github.com/oakline/storefront/internal/store"
)

type memStore struct {
	carts    map[[16]byte]store.Cart
	items    map[[16]byte]store.CartItem
	products map[[16]byte]store.Product
	coupons  map[string]store.Coupon
}

func newMemStore() *memStore {
	return &memStore{
		carts:    map[[16]byte]store.Cart{},
		items:    map[[16]byte]store.CartItem{},
		products: map[[16]byte]store.Product{},
		coupons:  map[string]store.Coupon{},
	}
}

func (m *memStore) GetCartByID(ctx context.Context, id pgtype.UUID) (store.Cart, error) {
	if c, ok := m.carts[id.Bytes]; ok {
		return c, nil
	}
	return store.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveCartByUser(ctx context.Context, userID pgtype.UUID) (store.Cart, error) {
	for _, c := range m.carts {
		if c.UserID.Valid && c.UserID.Bytes == userID.Bytes {
			return c, nil
		}
	}
	return store.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (store.Cart, error) {
	for _, c := range m.carts {
		if c.AnonID.Valid && c.AnonID.String == anonID.String {
			return c, nil
		}
	}
	return store.Cart{}, pgx.ErrNoRows
}

func (m *memStore) CreateCart(ctx context.Context, userID pgtype.UUID, anonID pgtype.Text, expiresAt time.Time) (store.Cart, error) {
	c := store.Cart{
		ID:        pgtype.UUID{Bytes: uuid.New(), Valid: true},
		UserID:    userID,
		AnonID:    anonID,
		ExpiresAt: expiresAt,
	}
	m.carts[c.ID.Bytes] = c
	return c, nil
}

func (m *memStore) TouchCart(ctx context.Context, id pgtype.UUID, expiresAt time.Time) error {
	if c, ok := m.carts[id.Bytes]; ok {
		c.ExpiresAt = expiresAt
		m.carts[id.Bytes] = c
	}
	return nil
}

func (m *memStore) UpdateCartCoupon(ctx context.Context, id pgtype.UUID, code pgtype.Text) error {
	c, ok := m.carts[id.Bytes]
	if !ok {
		return pgx.ErrNoRows
	}
	c.AppliedCouponCode = code
	m.carts[id.Bytes] = c
	return nil
}

func (m *memStore) ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]store.CartItem, error) {
	var out []store.CartItem
	for _, it := range m.items {
		if it.CartID.Bytes == cartID.Bytes {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) FindCartItemByProduct(ctx context.Context, cartID, productID pgtype.UUID) (store.CartItem, error) {
	for _, it := range m.items {
		if it.CartID.Bytes == cartID.Bytes && it.ProductID.Bytes == productID.Bytes {
			return it, nil
		}
	}
	return store.CartItem{}, pgx.ErrNoRows
}

func (m *memStore) GetCartItemByID(ctx context.Context, id pgtype.UUID) (store.CartItem, error) {
	if it, ok := m.items[id.Bytes]; ok {
		return it, nil
	}
	return store.CartItem{}, pgx.ErrNoRows
}

func (m *memStore) CreateCartItem(ctx context.Context, item store.CartItem) (store.CartItem, error) {
	item.ID = pgtype.UUID{Bytes: uuid.New(), Valid: true}
	m.items[item.ID.Bytes] = item
	return item, nil
}

func (m *memStore) UpdateCartItemQty(ctx context.Context, id pgtype.UUID, qty int32, subtotal int64) error {
	it, ok := m.items[id.Bytes]
	if !ok {
		return pgx.ErrNoRows
	}
	it.Qty = qty
	it.Subtotal = subtotal
	m.items[id.Bytes] = it
	return nil
}

func (m *memStore) DeleteCartItem(ctx context.Context, id, cartID pgtype.UUID) error {
	delete(m.items, id.Bytes)
	return nil
}

func (m *memStore) GetProductByID(ctx context.Context, id pgtype.UUID) (store.Product, error) {
	if p, ok := m.products[id.Bytes]; ok {
		return p, nil
	}
	return store.Product{}, pgx.ErrNoRows
}

func (m *memStore) GetCouponByCode(ctx context.Context, code string) (store.Coupon, error) {
	if c, ok := m.coupons[code]; ok {
		return c, nil
	}
	return store.Coupon{}, pgx.ErrNoRows
}

func (m *memStore) RedeemCoupon(ctx context.Context, tx pgx.Tx, couponID pgtype.UUID) (bool, error) {
	return true, nil
}

func (m *memStore) InsertCouponRedemption(ctx context.Context, tx pgx.Tx, couponID, orderID, userID pgtype.UUID, amount int64) (bool, error) {
	return true, nil
}

func (m *memStore) addProduct(price int64, discounted *int64) store.Product {
	p := store.Product{
		ID:    pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Slug:  "widget",
		Title: "Widget",
		Price: price,
		Stock: 10,
	}
	if discounted != nil {
		p.DiscountedPrice = pgtype.Int8{Int64: *discounted, Valid: true}
	}
	m.products[p.ID.Bytes] = p
	return p
}

func newService(m *memStore) *Service {
	return &Service{
		Q:       m,
		Coupons: &coupon.Service{Q: m},
	}
}

func TestEnsureCartCreatesForAnon(t *testing.T) {
	m := newMemStore()
	svc := newService(m)
	anon := "guest-1"
	c, err := svc.EnsureCart(context.Background(), nil, &anon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := svc.EnsureCart(context.Background(), nil, &anon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID.Bytes != again.ID.Bytes {
		t.Fatal("expected the same cart on repeat calls")
	}
}

func TestEnsureCartRequiresIdentity(t *testing.T) {
	svc := newService(newMemStore())
	if _, err := svc.EnsureCart(context.Background(), nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAddItemSnapshotsEffectivePrice(t *testing.T) {
	m := newMemStore()
	svc := newService(m)
	discounted := int64(1500)
	p := m.addProduct(2500, &discounted)
	anon := "guest-2"
	c, _ := svc.EnsureCart(context.Background(), nil, &anon)

	if err := svc.AddItem(context.Background(), store.UUIDString(c.ID), store.UUIDString(p.ID), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, _ := m.ListCartItems(context.Background(), c.ID)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].UnitPrice != 1500 || items[0].Subtotal != 3000 {
		t.Fatalf("expected snapshot 1500/3000, got %d/%d", items[0].UnitPrice, items[0].Subtotal)
	}
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	m := newMemStore()
	svc := newService(m)
	p := m.addProduct(1000, nil)
	anon := "guest-3"
	c, _ := svc.EnsureCart(context.Background(), nil, &anon)

	_ = svc.AddItem(context.Background(), store.UUIDString(c.ID), store.UUIDString(p.ID), 1)
	_ = svc.AddItem(context.Background(), store.UUIDString(c.ID), store.UUIDString(p.ID), 2)
	items, _ := m.ListCartItems(context.Background(), c.ID)
	if len(items) != 1 || items[0].Qty != 3 || items[0].Subtotal != 3000 {
		t.Fatalf("expected one merged line qty 3 subtotal 3000, got %+v", items)
	}
}

func TestApplyCouponStoresCode(t *testing.T) {
	m := newMemStore()
	m.coupons["SAVE10"] = store.Coupon{
		ID:         pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Code:       "SAVE10",
		Kind:       "percent",
		PercentBps: pgtype.Int4{Int32: 1000, Valid: true},
		StartAt:    time.Now().Add(-time.Hour),
		EndAt:      time.Now().Add(time.Hour),
		Active:     true,
	}
	svc := newService(m)
	p := m.addProduct(1000, nil)
	anon := "guest-4"
	c, _ := svc.EnsureCart(context.Background(), nil, &anon)
	_ = svc.AddItem(context.Background(), store.UUIDString(c.ID), store.UUIDString(p.ID), 1)

	discount, err := svc.ApplyCoupon(context.Background(), store.UUIDString(c.ID), "save10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discount != 100 {
		t.Fatalf("expected discount 100, got %d", discount)
	}
	view, err := svc.Get(context.Background(), store.UUIDString(c.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.CouponCode == nil || *view.CouponCode != "SAVE10" {
		t.Fatalf("expected applied code SAVE10, got %v", view.CouponCode)
	}
	if view.Summary.Total != 900 {
		t.Fatalf("expected total 900, got %d", view.Summary.Total)
	}
}

func TestApplyCouponBelowMinimum(t *testing.T) {
	m := newMemStore()
	m.coupons["BIG"] = store.Coupon{
		ID:       pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Code:     "BIG",
		Kind:     "fixed",
		Value:    500,
		MinSpend: pgtype.Int8{Int64: 5000, Valid: true},
		StartAt:  time.Now().Add(-time.Hour),
		EndAt:    time.Now().Add(time.Hour),
		Active:   true,
	}
	svc := newService(m)
	p := m.addProduct(1000, nil)
	anon := "guest-5"
	c, _ := svc.EnsureCart(context.Background(), nil, &anon)
	_ = svc.AddItem(context.Background(), store.UUIDString(c.ID), store.UUIDString(p.ID), 1)

	_, err := svc.ApplyCoupon(context.Background(), store.UUIDString(c.ID), "BIG")
	if !errors.Is(err, coupon.ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
}
