package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/order"
	"github.com/oakline/storefront/internal/store"
)

// Intent status values stored in payment_intents.status.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
	StatusExpired = "expired"
)

// Querier captures the store methods the payment service reads through.
type Querier interface {
	GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (store.Order, error)
	CreatePaymentIntent(ctx context.Context, orderID pgtype.UUID, provider, reference string, amount int64, currency string, expiresAt time.Time) (store.PaymentIntent, error)
	GetLatestPaymentIntentByOrder(ctx context.Context, orderID pgtype.UUID) (store.PaymentIntent, error)
}

// Service opens payment intents for pending orders.
type Service struct {
	Q         Querier
	Provider  Provider
	IntentTTL time.Duration
	Currency  string
}

// IntentView is the client-facing shape of a payment intent.
type IntentView struct {
	OrderID     string    `json:"orderId"`
	Provider    string    `json:"provider"`
	Reference   string    `json:"reference"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// CreateIntent opens a provider intent for the user's pending order.
func (s *Service) CreateIntent(ctx context.Context, userID, orderID string) (IntentView, error) {
	if s == nil || s.Q == nil || s.Provider == nil {
		return IntentView{}, errors.New("payment service not configured")
	}
	oID, err := store.ToUUID(orderID)
	if err != nil {
		return IntentView{}, common.NewAppError("BAD_REQUEST", "invalid order id", http.StatusBadRequest, err)
	}
	uID, err := store.ToUUID(userID)
	if err != nil {
		return IntentView{}, common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, err)
	}
	ord, err := s.Q.GetOrderForUser(ctx, oID, uID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IntentView{}, common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
		}
		return IntentView{}, err
	}
	if ord.Status != string(order.StatusPending) {
		return IntentView{}, common.NewAppError("ORDER_NOT_PAYABLE", "order is not awaiting payment", http.StatusConflict, nil)
	}

	ttl := s.IntentTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	resp, err := s.Provider.CreateIntent(ctx, IntentRequest{
		OrderID:   orderID,
		Amount:    ord.Total,
		Currency:  ord.Currency,
		ExpiresIn: int(ttl.Seconds()),
	})
	if err != nil {
		return IntentView{}, err
	}
	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = time.Now().Add(ttl)
	}
	intent, err := s.Q.CreatePaymentIntent(ctx, ord.ID, resp.Provider, resp.Reference, ord.Total, ord.Currency, expiresAt)
	if err != nil {
		return IntentView{}, err
	}
	view := toIntentView(intent)
	view.RedirectURL = resp.RedirectURL
	return view, nil
}

// Status returns the newest intent for the user's order.
func (s *Service) Status(ctx context.Context, userID, orderID string) (IntentView, error) {
	if s == nil || s.Q == nil {
		return IntentView{}, errors.New("payment service not configured")
	}
	oID, err := store.ToUUID(orderID)
	if err != nil {
		return IntentView{}, common.NewAppError("BAD_REQUEST", "invalid order id", http.StatusBadRequest, err)
	}
	uID, err := store.ToUUID(userID)
	if err != nil {
		return IntentView{}, common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, err)
	}
	if _, err := s.Q.GetOrderForUser(ctx, oID, uID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IntentView{}, common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
		}
		return IntentView{}, err
	}
	intent, err := s.Q.GetLatestPaymentIntentByOrder(ctx, oID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IntentView{}, common.NewAppError("PAYMENT_NOT_FOUND", "no payment intent for order", http.StatusNotFound, err)
		}
		return IntentView{}, err
	}
	return toIntentView(intent), nil
}

func toIntentView(pi store.PaymentIntent) IntentView {
	return IntentView{
		OrderID:   store.UUIDString(pi.OrderID),
		Provider:  pi.Provider,
		Reference: pi.Reference,
		Amount:    pi.Amount,
		Currency:  pi.Currency,
		Status:    pi.Status,
		ExpiresAt: pi.ExpiresAt,
	}
}
