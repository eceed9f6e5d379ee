package pricing

import "testing"

func money(v int64) *Money {
	m := Money(v)
	return &m
}

func TestSubtotalEmpty(t *testing.T) {
	if got := Subtotal(nil); got != 0 {
		t.Fatalf("expected 0 subtotal for empty items, got %d", got)
	}
}

func TestSubtotalEffectivePrice(t *testing.T) {
	items := []LineItem{
		{Qty: 2, UnitPrice: 20},
		{Qty: 1, UnitPrice: 25, DiscountedPrice: money(15)},
	}
	if got := Subtotal(items); got != 55 {
		t.Fatalf("expected subtotal 55, got %d", got)
	}
}

func TestSubtotalSkipsNonPositiveQty(t *testing.T) {
	items := []LineItem{
		{Qty: 0, UnitPrice: 100},
		{Qty: -3, UnitPrice: 100},
		{Qty: 1, UnitPrice: 40},
	}
	if got := Subtotal(items); got != 40 {
		t.Fatalf("expected subtotal 40, got %d", got)
	}
}

func TestTotalIdentity(t *testing.T) {
	if got := Total(100, 15, 0); got != 85 {
		t.Fatalf("expected 85, got %d", got)
	}
	if got := Total(100, 15, 10); got != 95 {
		t.Fatalf("expected 95, got %d", got)
	}
}

func TestTotalClampsDiscount(t *testing.T) {
	if got := Total(50, 75, 0); got != 0 {
		t.Fatalf("expected clamped total 0, got %d", got)
	}
	if got := Total(50, -10, 0); got != 50 {
		t.Fatalf("expected negative discount ignored, got %d", got)
	}
}

func TestComputeSummary(t *testing.T) {
	items := []LineItem{{Qty: 2, UnitPrice: 20}, {Qty: 1, UnitPrice: 25, DiscountedPrice: money(15)}}
	sum := Compute(items, 5, 10)
	if sum.Subtotal != 55 || sum.Discount != 5 || sum.Shipping != 10 || sum.Total != 60 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestComputeIdempotent(t *testing.T) {
	items := []LineItem{{Qty: 3, UnitPrice: 7}}
	first := Compute(items, 2, 0)
	second := Compute(items, 2, 0)
	if first != second {
		t.Fatalf("expected identical summaries, got %+v vs %+v", first, second)
	}
}
