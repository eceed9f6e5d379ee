package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/obs"
	"github.com/oakline/storefront/internal/pricing"
	"github.com/oakline/storefront/internal/store"
)

// Querier captures the database methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	RedeemCoupon(ctx context.Context, tx pgx.Tx, couponID pgtype.UUID) (bool, error)
	InsertCouponRedemption(ctx context.Context, tx pgx.Tx, couponID, orderID, userID pgtype.UUID, amount int64) (bool, error)
}

// Applied describes a coupon that passed validation for a given subtotal.
type Applied struct {
	Coupon   store.Coupon
	Rule     Rule
	Discount pricing.Money
}

// Service evaluates coupon rules and records redemptions.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Validate resolves the code, checks the rule against the subtotal, and
// computes the discount. It mutates nothing.
func (s *Service) Validate(ctx context.Context, code string, subtotal pricing.Money) (Applied, error) {
	if s == nil || s.Q == nil {
		return Applied{}, errors.New("coupon service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Applied{}, ErrNotFound
	}
	row, err := s.Q.GetCouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			obs.CouponValidationTotal.WithLabelValues("not_found").Inc()
			return Applied{}, ErrNotFound
		}
		return Applied{}, err
	}
	rule := RuleFromRow(row)
	if err := rule.Validate(s.now(), subtotal); err != nil {
		obs.CouponValidationTotal.WithLabelValues(resultLabel(err)).Inc()
		return Applied{}, err
	}
	obs.CouponValidationTotal.WithLabelValues("ok").Inc()
	return Applied{Coupon: row, Rule: rule, Discount: rule.Discount(subtotal)}, nil
}

// Redeem records a redemption for the order inside the caller's transaction.
// The redemption row is inserted first so a replay of the same order is a
// no-op; only a fresh row consumes quota via the conditional increment. A
// failed increment rolls back with the transaction.
func (s *Service) Redeem(ctx context.Context, tx pgx.Tx, couponID, orderID, userID pgtype.UUID, amount pricing.Money) error {
	if s == nil || s.Q == nil {
		return errors.New("coupon service not configured")
	}
	if amount < 0 {
		amount = 0
	}
	inserted, err := s.Q.InsertCouponRedemption(ctx, tx, couponID, orderID, userID, amount)
	if err != nil {
		return err
	}
	if !inserted {
		obs.CouponRedeemTotal.WithLabelValues("replay").Inc()
		return nil
	}
	ok, err := s.Q.RedeemCoupon(ctx, tx, couponID)
	if err != nil {
		return err
	}
	if !ok {
		obs.CouponRedeemTotal.WithLabelValues("usage_exceeded").Inc()
		return ErrUsageExceeded
	}
	obs.CouponRedeemTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RuleFromRow converts a stored coupon into a Rule for evaluation.
func RuleFromRow(c store.Coupon) Rule {
	rule := Rule{
		Code:      c.Code,
		Kind:      Kind(c.Kind),
		Value:     c.Value,
		StartAt:   c.StartAt,
		EndAt:     c.EndAt,
		UsedCount: c.UsedCount,
		Active:    c.Active,
	}
	if c.PercentBps.Valid {
		rule.PercentBps = c.PercentBps.Int32
	}
	if c.MinSpend.Valid {
		min := pricing.Money(c.MinSpend.Int64)
		rule.MinSpend = &min
	}
	if c.MaxDiscount.Valid {
		max := pricing.Money(c.MaxDiscount.Int64)
		rule.MaxDiscount = &max
	}
	if c.UsageLimit.Valid {
		limit := c.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	return rule
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrOutOfWindow):
		return "out_of_window"
	case errors.Is(err, ErrUsageExceeded):
		return "usage_exceeded"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	default:
		return "error"
	}
}

// ErrorCode maps a validation error to the stable identifier returned over HTTP.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "COUPON_NOT_FOUND"
	case errors.Is(err, ErrInactive):
		return "COUPON_INACTIVE"
	case errors.Is(err, ErrOutOfWindow):
		return "COUPON_EXPIRED"
	case errors.Is(err, ErrUsageExceeded):
		return "COUPON_USAGE_EXCEEDED"
	case errors.Is(err, ErrBelowMinimum):
		return "COUPON_MIN_ORDER"
	default:
		return "INTERNAL"
	}
}
