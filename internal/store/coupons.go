package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Coupon mirrors a row of the coupons table.
type Coupon struct {
	ID          pgtype.UUID
	Code        string
	Kind        string
	Value       int64
	PercentBps  pgtype.Int4
	MinSpend    pgtype.Int8
	MaxDiscount pgtype.Int8
	StartAt     time.Time
	EndAt       time.Time
	UsageLimit  pgtype.Int4
	UsedCount   int32
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CouponParams carries the mutable fields for coupon create/update.
type CouponParams struct {
	Code        string
	Kind        string
	Value       int64
	PercentBps  pgtype.Int4
	MinSpend    pgtype.Int8
	MaxDiscount pgtype.Int8
	StartAt     time.Time
	EndAt       time.Time
	UsageLimit  pgtype.Int4
	Active      bool
}

const couponColumns = `id, code, kind, value, percent_bps, min_spend, max_discount,
	start_at, end_at, usage_limit, used_count, active, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Kind, &c.Value, &c.PercentBps, &c.MinSpend, &c.MaxDiscount,
		&c.StartAt, &c.EndAt, &c.UsageLimit, &c.UsedCount, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// GetCouponByCode loads a coupon by its uppercase-normalized code.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = upper($1)`, code)
	return scanCoupon(row)
}

// CreateCoupon inserts a coupon; the code is stored uppercase.
func (s *Store) CreateCoupon(ctx context.Context, p CouponParams) (Coupon, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO coupons (code, kind, value, percent_bps, min_spend, max_discount,
			start_at, end_at, usage_limit, active)
		VALUES (upper($1), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+couponColumns,
		p.Code, p.Kind, p.Value, p.PercentBps, p.MinSpend, p.MaxDiscount,
		p.StartAt, p.EndAt, p.UsageLimit, p.Active)
	return scanCoupon(row)
}

// UpdateCoupon mutates an existing coupon identified by code.
func (s *Store) UpdateCoupon(ctx context.Context, p CouponParams) (Coupon, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE coupons SET kind = $2, value = $3, percent_bps = $4, min_spend = $5,
			max_discount = $6, start_at = $7, end_at = $8, usage_limit = $9,
			active = $10, updated_at = now()
		WHERE code = upper($1)
		RETURNING `+couponColumns,
		p.Code, p.Kind, p.Value, p.PercentBps, p.MinSpend, p.MaxDiscount,
		p.StartAt, p.EndAt, p.UsageLimit, p.Active)
	return scanCoupon(row)
}

// ListCoupons returns coupons ordered by creation time, newest first.
func (s *Store) ListCoupons(ctx context.Context, limit, offset int32) ([]Coupon, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCoupons returns the total number of coupons.
func (s *Store) CountCoupons(ctx context.Context) (int64, error) {
	var total int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM coupons`).Scan(&total)
	return total, err
}

// RedeemCoupon performs the conditional used_count increment in a single
// statement. It reports whether a row was updated; false means the usage
// limit was already exhausted by a concurrent redemption.
func (s *Store) RedeemCoupon(ctx context.Context, tx pgx.Tx, couponID pgtype.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`,
		couponID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertCouponRedemption records which order consumed the coupon. The unique
// order constraint makes redemption idempotent per order.
func (s *Store) InsertCouponRedemption(ctx context.Context, tx pgx.Tx, couponID, orderID, userID pgtype.UUID, amount int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, order_id, user_id, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING`,
		couponID, orderID, userID, amount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
