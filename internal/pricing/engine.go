package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// LineItem describes a single priced line used for subtotal calculation.
// DiscountedPrice, when set, takes precedence over UnitPrice.
type LineItem struct {
	Qty             int
	UnitPrice       Money
	DiscountedPrice *Money
}

// EffectivePrice returns the discounted price when present, the base price otherwise.
func (it LineItem) EffectivePrice() Money {
	if it.DiscountedPrice != nil {
		return *it.DiscountedPrice
	}
	return it.UnitPrice
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Shipping Money `json:"shippingCost"`
	Total    Money `json:"total"`
}

// Subtotal sums effective price times quantity across line items.
// Non-positive quantities are skipped. An empty list yields zero.
func Subtotal(items []LineItem) Money {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.EffectivePrice()
	}
	return subtotal
}

// Total computes subtotal - discount + shipping. The discount is clamped to
// the subtotal so the result never goes negative through discounting alone.
func Total(subtotal, discount, shipping Money) Money {
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return subtotal - discount + shipping
}

// Compute calculates the full pricing summary for a set of line items.
// Shipping is a caller-supplied policy value, not derived here.
func Compute(items []LineItem, discount, shipping Money) Summary {
	subtotal := Subtotal(items)
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	if shipping < 0 {
		shipping = 0
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    subtotal - discount + shipping,
	}
}
