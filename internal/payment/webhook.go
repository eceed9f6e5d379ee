package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"

	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/events"
	"github.com/oakline/storefront/internal/obs"
	"github.com/oakline/storefront/internal/order"
	"github.com/oakline/storefront/internal/store"
)

// WebhookQuerier captures the store methods the webhook handler needs.
type WebhookQuerier interface {
	GetLatestPaymentIntentByOrder(ctx context.Context, orderID pgtype.UUID) (store.PaymentIntent, error)
	UpdatePaymentIntentStatus(ctx context.Context, id pgtype.UUID, status string) error
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	UpdateOrderStatusFrom(ctx context.Context, id pgtype.UUID, from, to string) (bool, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (store.User, error)
}

// Webhook handles provider callbacks. A duplicate delivery is detected via a
// Redis SETNX keyed on the payload hash and answered with 409 before any
// state changes.
type Webhook struct {
	Q         WebhookQuerier
	Providers map[string]Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    *events.Bus
}

// Handle processes POST /api/v1/webhooks/payment/{provider}.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil || h.Providers == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	result, err := provider.VerifyWebhook(r, body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "invalid_signature").Inc()
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	ctx := r.Context()
	if h.Replay != nil && h.ReplayTTL > 0 {
		sum := sha256.Sum256(body)
		key := "wh:" + providerKey + ":" + hex.EncodeToString(sum[:])
		fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			obs.PaymentWebhookTotal.WithLabelValues(providerKey, "replay").Inc()
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	orderID, err := store.ToUUID(result.OrderID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order identifier", nil)
		return
	}
	intent, err := h.Q.GetLatestPaymentIntentByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "payment not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_FETCH_ERROR", err.Error(), nil)
		return
	}
	if result.Amount > 0 && intent.Amount != result.Amount {
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "amount_mismatch").Inc()
		common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "provider amount mismatch", nil)
		return
	}

	status := result.Status
	if status == "" {
		status = StatusPending
	}
	firstSettle := status == StatusPaid && intent.Status != StatusPaid
	if err := h.Q.UpdatePaymentIntentStatus(ctx, intent.ID, status); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_UPDATE_ERROR", err.Error(), nil)
		return
	}

	switch status {
	case StatusPaid:
		if firstSettle {
			moved, err := h.Q.UpdateOrderStatusFrom(ctx, orderID,
				string(order.StatusPending), string(order.StatusProcessing))
			if err != nil {
				common.JSONError(w, http.StatusInternalServerError, "ORDER_UPDATE_ERROR", err.Error(), nil)
				return
			}
			if moved {
				obs.OrderStatusChangeTotal.WithLabelValues(string(order.StatusProcessing)).Inc()
			}
			h.emit(ctx, events.TopicOrderPaid, orderID, status)
		}
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "paid").Inc()
	case StatusFailed, StatusExpired:
		h.emit(ctx, events.TopicPaymentFailed, orderID, status)
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, status).Inc()
	default:
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "pending").Inc()
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h Webhook) emit(ctx context.Context, topic string, orderID pgtype.UUID, status string) {
	if h.Events == nil {
		return
	}
	payload := map[string]any{
		"orderId": store.UUIDString(orderID),
		"status":  status,
	}
	if ord, err := h.Q.GetOrderByID(ctx, orderID); err == nil {
		if user, err := h.Q.GetUserByID(ctx, ord.UserID); err == nil && user.Email != "" {
			payload["email"] = user.Email
		}
	}
	_, _ = h.Events.Emit(ctx, topic, orderID, payload)
}
