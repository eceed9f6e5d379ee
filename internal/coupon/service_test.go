package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/store"
)

type stubQueries struct {
	coupon      store.Coupon
	redeemOK    bool
	insertOK    bool
	redeemCalls int
	insertCalls int
}

func (s *stubQueries) GetCouponByCode(ctx context.Context, code string) (store.Coupon, error) {
	if s.coupon.Code == "" || s.coupon.Code != code {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return s.coupon, nil
}

func (s *stubQueries) RedeemCoupon(ctx context.Context, tx pgx.Tx, couponID pgtype.UUID) (bool, error) {
	s.redeemCalls++
	return s.redeemOK, nil
}

func (s *stubQueries) InsertCouponRedemption(ctx context.Context, tx pgx.Tx, couponID, orderID, userID pgtype.UUID, amount int64) (bool, error) {
	s.insertCalls++
	return s.insertOK, nil
}

func newCoupon(kind string) store.Coupon {
	c := store.Coupon{
		ID:      uuidToPg(uuid.New()),
		Code:    "PROMO",
		Kind:    kind,
		Value:   500,
		StartAt: time.Now().Add(-time.Hour),
		EndAt:   time.Now().Add(time.Hour),
		Active:  true,
	}
	if kind == string(KindPercent) {
		c.PercentBps = pgtype.Int4{Int32: 1000, Valid: true}
	}
	return c
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func TestValidateNotFound(t *testing.T) {
	svc := &Service{Q: &stubQueries{}}
	_, err := svc.Validate(context.Background(), "missing", 1000)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateNormalizesCode(t *testing.T) {
	svc := &Service{Q: &stubQueries{coupon: newCoupon(string(KindPercent))}}
	applied, err := svc.Validate(context.Background(), "  promo ", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.Discount != 100 {
		t.Fatalf("expected discount 100, got %d", applied.Discount)
	}
}

func TestValidateBelowMinimum(t *testing.T) {
	c := newCoupon(string(KindFixed))
	c.MinSpend = pgtype.Int8{Int64: 2000, Valid: true}
	svc := &Service{Q: &stubQueries{coupon: c}}
	_, err := svc.Validate(context.Background(), "PROMO", 1000)
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
	var minErr MinimumSpendError
	if !errors.As(err, &minErr) || minErr.Minimum != 2000 {
		t.Fatalf("expected MinimumSpendError carrying 2000, got %v", err)
	}
}

func TestValidateFrozenClock(t *testing.T) {
	c := newCoupon(string(KindFixed))
	c.StartAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.EndAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	svc := &Service{
		Q:   &stubQueries{coupon: c},
		Now: func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
	_, err := svc.Validate(context.Background(), "PROMO", 1000)
	if !errors.Is(err, ErrOutOfWindow) {
		t.Fatalf("expected ErrOutOfWindow, got %v", err)
	}
}

func TestRedeemConsumesQuotaOnce(t *testing.T) {
	q := &stubQueries{coupon: newCoupon(string(KindFixed)), redeemOK: true, insertOK: true}
	svc := &Service{Q: q}
	if err := svc.Redeem(context.Background(), nil, q.coupon.ID, uuidToPg(uuid.New()), uuidToPg(uuid.New()), 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.insertCalls != 1 || q.redeemCalls != 1 {
		t.Fatalf("expected one insert and one increment, got %d/%d", q.insertCalls, q.redeemCalls)
	}
}

func TestRedeemReplayIsNoop(t *testing.T) {
	q := &stubQueries{coupon: newCoupon(string(KindFixed)), redeemOK: true, insertOK: false}
	svc := &Service{Q: q}
	if err := svc.Redeem(context.Background(), nil, q.coupon.ID, uuidToPg(uuid.New()), uuidToPg(uuid.New()), 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.redeemCalls != 0 {
		t.Fatalf("replayed redemption must not touch the counter, got %d increments", q.redeemCalls)
	}
}

func TestRedeemExhaustedQuota(t *testing.T) {
	q := &stubQueries{coupon: newCoupon(string(KindFixed)), redeemOK: false, insertOK: true}
	svc := &Service{Q: q}
	err := svc.Redeem(context.Background(), nil, q.coupon.ID, uuidToPg(uuid.New()), uuidToPg(uuid.New()), 500)
	if !errors.Is(err, ErrUsageExceeded) {
		t.Fatalf("expected ErrUsageExceeded, got %v", err)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := map[error]string{
		ErrNotFound:                 "COUPON_NOT_FOUND",
		ErrInactive:                 "COUPON_INACTIVE",
		ErrOutOfWindow:              "COUPON_EXPIRED",
		ErrUsageExceeded:            "COUPON_USAGE_EXCEEDED",
		MinimumSpendError{Minimum: 10}: "COUPON_MIN_ORDER",
	}
	for err, want := range cases {
		if got := ErrorCode(err); got != want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}
