package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PaymentIntent mirrors a row of the payment_intents table.
type PaymentIntent struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	Provider  string
	Reference string
	Amount    int64
	Currency  string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

const paymentIntentColumns = `id, order_id, provider, reference, amount, currency,
	status, expires_at, created_at, updated_at`

func scanPaymentIntent(row pgx.Row) (PaymentIntent, error) {
	var pi PaymentIntent
	err := row.Scan(&pi.ID, &pi.OrderID, &pi.Provider, &pi.Reference, &pi.Amount,
		&pi.Currency, &pi.Status, &pi.ExpiresAt, &pi.CreatedAt, &pi.UpdatedAt)
	return pi, err
}

// CreatePaymentIntent inserts a provider payment intent for an order.
func (s *Store) CreatePaymentIntent(ctx context.Context, orderID pgtype.UUID, provider, reference string, amount int64, currency string, expiresAt time.Time) (PaymentIntent, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO payment_intents (order_id, provider, reference, amount, currency, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING `+paymentIntentColumns,
		orderID, provider, reference, amount, currency, expiresAt)
	return scanPaymentIntent(row)
}

// GetPaymentIntentByReference loads an intent by its provider reference.
func (s *Store) GetPaymentIntentByReference(ctx context.Context, provider, reference string) (PaymentIntent, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+paymentIntentColumns+` FROM payment_intents WHERE provider = $1 AND reference = $2`,
		provider, reference)
	return scanPaymentIntent(row)
}

// GetLatestPaymentIntentByOrder returns the newest intent for an order.
func (s *Store) GetLatestPaymentIntentByOrder(ctx context.Context, orderID pgtype.UUID) (PaymentIntent, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+paymentIntentColumns+` FROM payment_intents WHERE order_id = $1
		 ORDER BY created_at DESC LIMIT 1`, orderID)
	return scanPaymentIntent(row)
}

// UpdatePaymentIntentStatus moves an intent to a new status.
func (s *Store) UpdatePaymentIntentStatus(ctx context.Context, id pgtype.UUID, status string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE payment_intents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}
