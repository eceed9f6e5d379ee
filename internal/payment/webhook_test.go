package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oakline/storefront/internal/events"
	"github.com/oakline/storefront/internal/order"
	"github.com/oakline/storefront/internal/store"
)

type webhookStub struct {
	intent      store.PaymentIntent
	order       store.Order
	statusSet   string
	orderMoves  [][2]string
	user        store.User
	intentFound bool
}

func (s *webhookStub) GetLatestPaymentIntentByOrder(ctx context.Context, orderID pgtype.UUID) (store.PaymentIntent, error) {
	if !s.intentFound {
		return store.PaymentIntent{}, pgx.ErrNoRows
	}
	return s.intent, nil
}

func (s *webhookStub) UpdatePaymentIntentStatus(ctx context.Context, id pgtype.UUID, status string) error {
	s.statusSet = status
	return nil
}

func (s *webhookStub) GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error) {
	return s.order, nil
}

func (s *webhookStub) UpdateOrderStatusFrom(ctx context.Context, id pgtype.UUID, from, to string) (bool, error) {
	s.orderMoves = append(s.orderMoves, [2]string{from, to})
	return s.order.Status == from, nil
}

func (s *webhookStub) GetUserByID(ctx context.Context, id pgtype.UUID) (store.User, error) {
	return s.user, nil
}

type recordingEventStore struct {
	topics []string
}

func (r *recordingEventStore) InsertDomainEvent(ctx context.Context, topic string, entityID pgtype.UUID, payload []byte) error {
	r.topics = append(r.topics, topic)
	return nil
}

func newWebhookFixture(t *testing.T) (Webhook, *webhookStub, *recordingEventStore, Sandbox, string) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	orderID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	stub := &webhookStub{
		intent: store.PaymentIntent{
			ID:      pgtype.UUID{Bytes: uuid.New(), Valid: true},
			OrderID: orderID,
			Amount:  5000,
			Status:  StatusPending,
		},
		order:       store.Order{ID: orderID, Status: string(order.StatusPending)},
		user:        store.User{Email: "buyer@example.com"},
		intentFound: true,
	}
	eventStore := &recordingEventStore{}
	sandbox := Sandbox{Secret: "whsec"}
	wh := Webhook{
		Q:         stub,
		Providers: map[string]Provider{"sandbox": sandbox},
		Replay:    client,
		ReplayTTL: time.Minute,
		Events:    &events.Bus{Store: eventStore},
	}
	return wh, stub, eventStore, sandbox, store.UUIDString(orderID)
}

func postWebhook(t *testing.T, wh Webhook, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment/sandbox", bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", "sandbox")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	wh.Handle(rec, req)
	return rec
}

func signedBody(t *testing.T, sandbox Sandbox, orderID, status string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"orderId":   orderID,
		"status":    status,
		"amount":    amount,
		"signature": sandbox.Sign(orderID, status, amount),
	})
	require.NoError(t, err)
	return body
}

func TestWebhookPaidMovesOrderToProcessing(t *testing.T) {
	wh, stub, eventStore, sandbox, orderID := newWebhookFixture(t)

	rec := postWebhook(t, wh, signedBody(t, sandbox, orderID, "PAID", 5000))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, StatusPaid, stub.statusSet)
	require.Len(t, stub.orderMoves, 1)
	require.Equal(t, [2]string{string(order.StatusPending), string(order.StatusProcessing)}, stub.orderMoves[0])
	require.Equal(t, []string{events.TopicOrderPaid}, eventStore.topics)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	wh, stub, _, _, orderID := newWebhookFixture(t)

	body, err := json.Marshal(map[string]any{
		"orderId":   orderID,
		"status":    "PAID",
		"amount":    5000,
		"signature": "forged",
	})
	require.NoError(t, err)

	rec := postWebhook(t, wh, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, stub.statusSet)
}

func TestWebhookReplayReturnsConflict(t *testing.T) {
	wh, stub, eventStore, sandbox, orderID := newWebhookFixture(t)
	body := signedBody(t, sandbox, orderID, "PAID", 5000)

	require.Equal(t, http.StatusNoContent, postWebhook(t, wh, body).Code)
	require.Equal(t, http.StatusConflict, postWebhook(t, wh, body).Code)
	require.Len(t, stub.orderMoves, 1)
	require.Len(t, eventStore.topics, 1)
}

func TestWebhookAmountMismatch(t *testing.T) {
	wh, stub, _, sandbox, orderID := newWebhookFixture(t)

	rec := postWebhook(t, wh, signedBody(t, sandbox, orderID, "PAID", 4999))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, stub.statusSet)
}

func TestWebhookFailedEmitsPaymentFailed(t *testing.T) {
	wh, stub, eventStore, sandbox, orderID := newWebhookFixture(t)

	rec := postWebhook(t, wh, signedBody(t, sandbox, orderID, "FAILED", 5000))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, StatusFailed, stub.statusSet)
	require.Empty(t, stub.orderMoves)
	require.Equal(t, []string{events.TopicPaymentFailed}, eventStore.topics)
}
