package coupon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oakline/storefront/internal/pricing"
)

var (
	// ErrNotFound is returned when no coupon matches the supplied code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon has been disabled by an administrator.
	ErrInactive = errors.New("coupon not active")
	// ErrOutOfWindow is returned when the current time falls outside the coupon validity window.
	ErrOutOfWindow = errors.New("coupon not valid at this time")
	// ErrUsageExceeded indicates the coupon has exhausted its usage quota.
	ErrUsageExceeded = errors.New("coupon usage limit reached")
	// ErrBelowMinimum indicates the order subtotal did not meet the coupon requirement.
	ErrBelowMinimum = errors.New("minimum order value not met")
)

// MinimumSpendError wraps ErrBelowMinimum and carries the required minimum for display.
type MinimumSpendError struct {
	Minimum pricing.Money
}

// Error implements the error interface.
func (e MinimumSpendError) Error() string {
	return fmt.Sprintf("minimum order value of %d not met", e.Minimum)
}

// Unwrap lets errors.Is match against ErrBelowMinimum.
func (e MinimumSpendError) Unwrap() error { return ErrBelowMinimum }

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercent applies a basis-point percentage of the subtotal.
	KindPercent Kind = "percent"
	// KindFixed applies a fixed amount capped at the subtotal.
	KindFixed Kind = "fixed"
)

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code        string
	Kind        Kind
	Value       pricing.Money
	PercentBps  int32
	MinSpend    *pricing.Money
	MaxDiscount *pricing.Money
	StartAt     time.Time
	EndAt       time.Time
	UsageLimit  *int32
	UsedCount   int32
	Active      bool
}

// NormalizeCode uppercases and trims a coupon code for case-insensitive lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the rule against the provided instant and subtotal. Checks
// run in a fixed order and the first failure wins: inactive, validity window,
// usage limit, minimum spend. Lookup failures (ErrNotFound) are the caller's
// concern and precede all of these.
func (r Rule) Validate(now time.Time, subtotal pricing.Money) error {
	if !r.Active {
		return ErrInactive
	}
	if now.Before(r.StartAt) || now.After(r.EndAt) {
		return ErrOutOfWindow
	}
	if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
		return ErrUsageExceeded
	}
	if r.MinSpend != nil && subtotal < *r.MinSpend {
		return MinimumSpendError{Minimum: *r.MinSpend}
	}
	return nil
}

// Discount computes the discount amount for a validated rule. The result is
// never negative and never exceeds the subtotal; percentage discounts are
// additionally capped at MaxDiscount when present.
func (r Rule) Discount(subtotal pricing.Money) pricing.Money {
	if subtotal <= 0 {
		return 0
	}
	var discount pricing.Money
	switch r.Kind {
	case KindPercent:
		if r.PercentBps <= 0 {
			return 0
		}
		discount = (subtotal * pricing.Money(r.PercentBps)) / 10000
		if r.MaxDiscount != nil && discount > *r.MaxDiscount {
			discount = *r.MaxDiscount
		}
	case KindFixed:
		discount = r.Value
	default:
		return 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}
