package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakline/storefront/internal/coupon"
	"github.com/oakline/storefront/internal/events"
	"github.com/oakline/storefront/internal/obs"
	"github.com/oakline/storefront/internal/order"
	"github.com/oakline/storefront/internal/pricing"
	"github.com/oakline/storefront/internal/store"
)

// ErrCartEmpty is returned when checkout is attempted on a cart with no items.
var ErrCartEmpty = errors.New("cart is empty")

// ErrCartOwnership is returned when the cart belongs to another user.
var ErrCartOwnership = errors.New("cart does not belong to user")

// Addr is the shipping address snapshotted onto the order.
type Addr struct {
	ReceiverName string `json:"receiverName"`
	Phone        string `json:"phone"`
	Country      string `json:"country"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
}

// Input is the checkout request payload.
type Input struct {
	CartID        string  `json:"cartId"`
	Address       Addr    `json:"address"`
	PaymentMethod *string `json:"paymentMethod"`
	CouponCode    *string `json:"couponCode"`
	Notes         *string `json:"notes"`
}

// Output is the created-order payload.
type Output struct {
	OrderID string          `json:"orderId"`
	Status  string          `json:"status"`
	Summary pricing.Summary `json:"summary"`
}

// Querier captures the store methods the checkout service reads through.
type Querier interface {
	GetCartByID(ctx context.Context, id pgtype.UUID) (store.Cart, error)
	ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]store.CartItem, error)
	CreateOrder(ctx context.Context, tx pgx.Tx, p store.CreateOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, tx pgx.Tx, item store.OrderItem) error
	UpdateCartCoupon(ctx context.Context, id pgtype.UUID, code pgtype.Text) error
	GetUserByID(ctx context.Context, id pgtype.UUID) (store.User, error)
}

// Service turns a cart into an order inside one transaction. Coupon
// validation happens up front; the usage quota is consumed by a conditional
// increment inside the same transaction that inserts the order, so a quota
// exhausted by a concurrent checkout rolls the whole order back.
type Service struct {
	Q        Querier
	Pool     *pgxpool.Pool
	Coupons  *coupon.Service
	Events   *events.Bus
	Currency string
	Shipping pricing.Money
}

// Create places an order for the user's cart.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Output, error) {
	if s == nil || s.Q == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if userID == "" {
		return Output{}, errors.New("user is required for checkout")
	}
	if in.CartID == "" {
		return Output{}, errors.New("cartId is required")
	}
	cID, err := store.ToUUID(in.CartID)
	if err != nil {
		return Output{}, fmt.Errorf("invalid cart id: %w", err)
	}
	uID, err := store.ToUUID(userID)
	if err != nil {
		return Output{}, fmt.Errorf("invalid user id: %w", err)
	}

	cartRow, err := s.Q.GetCartByID(ctx, cID)
	if err != nil {
		return Output{}, err
	}
	if cartRow.UserID.Valid && !store.UUIDEqual(cartRow.UserID, uID) {
		return Output{}, ErrCartOwnership
	}
	items, err := s.Q.ListCartItems(ctx, cID)
	if err != nil {
		return Output{}, err
	}
	if len(items) == 0 {
		obs.CheckoutTotal.WithLabelValues("empty_cart").Inc()
		return Output{}, ErrCartEmpty
	}
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.LineItem{Qty: int(it.Qty), UnitPrice: it.UnitPrice})
	}
	subtotal := pricing.Subtotal(lines)

	couponCode := ""
	if in.CouponCode != nil && *in.CouponCode != "" {
		couponCode = *in.CouponCode
	} else if cartRow.AppliedCouponCode.Valid {
		couponCode = cartRow.AppliedCouponCode.String
	}
	var applied coupon.Applied
	var hasCoupon bool
	if couponCode != "" && s.Coupons != nil {
		applied, err = s.Coupons.Validate(ctx, couponCode, subtotal)
		if err != nil {
			obs.CheckoutTotal.WithLabelValues("coupon_rejected").Inc()
			return Output{}, err
		}
		hasCoupon = true
	}

	summary := pricing.Compute(lines, applied.Discount, s.Shipping)

	if s.Pool == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Output{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	params := store.CreateOrderParams{
		UserID:          uID,
		CartID:          cID,
		Status:          string(order.StatusPending),
		Currency:        s.Currency,
		Subtotal:        summary.Subtotal,
		Discount:        summary.Discount,
		ShippingCost:    summary.Shipping,
		Total:           summary.Total,
		ShippingAddress: toJSON(in.Address),
		PaymentMethod:   store.NullableText(in.PaymentMethod),
		Notes:           store.NullableText(in.Notes),
	}
	if hasCoupon {
		params.CouponID = applied.Coupon.ID
		params.CouponCode = pgtype.Text{String: applied.Coupon.Code, Valid: true}
	}
	created, err := s.Q.CreateOrder(ctx, tx, params)
	if err != nil {
		obs.CheckoutTotal.WithLabelValues("error").Inc()
		return Output{}, err
	}
	for _, it := range items {
		if err := s.Q.CreateOrderItem(ctx, tx, store.OrderItem{
			OrderID:   created.ID,
			ProductID: it.ProductID,
			Title:     it.Title,
			Slug:      it.Slug,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		}); err != nil {
			return Output{}, err
		}
	}
	if hasCoupon {
		if err := s.Coupons.Redeem(ctx, tx, applied.Coupon.ID, created.ID, uID, summary.Discount); err != nil {
			obs.CheckoutTotal.WithLabelValues("coupon_rejected").Inc()
			return Output{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Output{}, err
	}
	obs.CheckoutTotal.WithLabelValues("ok").Inc()

	_ = s.Q.UpdateCartCoupon(ctx, cID, pgtype.Text{})

	if s.Events != nil {
		payload := map[string]any{
			"orderId": store.UUIDString(created.ID),
			"userId":  userID,
			"total":   summary.Total,
		}
		if user, err := s.Q.GetUserByID(ctx, uID); err == nil && user.Email != "" {
			payload["email"] = user.Email
		}
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, created.ID, payload)
	}

	return Output{
		OrderID: store.UUIDString(created.ID),
		Status:  created.Status,
		Summary: summary,
	}, nil
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
