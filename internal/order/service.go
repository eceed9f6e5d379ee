package order

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/audit"
	"github.com/oakline/storefront/internal/events"
	"github.com/oakline/storefront/internal/obs"
	"github.com/oakline/storefront/internal/store"
)

// ErrNotFound indicates the order does not exist or is not visible to the caller.
var ErrNotFound = errors.New("order not found")

// ErrNotCancellable is returned when a shopper cancels a finished order.
var ErrNotCancellable = errors.New("order can no longer be cancelled")

// Querier captures the store methods required by the order service.
type Querier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (store.Order, error)
	ListOrdersForUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Order, error)
	CountOrdersForUser(ctx context.Context, userID pgtype.UUID) (int64, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id pgtype.UUID, status string) error
	GetUserByID(ctx context.Context, id pgtype.UUID) (store.User, error)
}

// Service owns order reads and status changes with their side effects.
type Service struct {
	Q      Querier
	Events *events.Bus
	Audit  audit.Service
}

// SetStatus assigns the target status and runs the side-effecting hooks:
// audit entry, domain event, and the status-change metric. Any state may be
// assigned from any other.
func (s *Service) SetStatus(ctx context.Context, actor audit.Actor, orderID pgtype.UUID, target Status) (store.Order, error) {
	if s == nil || s.Q == nil {
		return store.Order{}, errors.New("order service not configured")
	}
	ord, err := s.Q.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrNotFound
		}
		return store.Order{}, err
	}
	previous := ord.Status
	if err := s.Q.UpdateOrderStatus(ctx, ord.ID, string(target)); err != nil {
		return store.Order{}, err
	}
	ord.Status = string(target)
	obs.OrderStatusChangeTotal.WithLabelValues(string(target)).Inc()

	_ = s.Audit.Record(ctx, actor, "order.status_change", "order", ord.ID, map[string]any{
		"from": previous,
		"to":   string(target),
	})

	if s.Events != nil {
		topic := events.TopicOrderStatusChanged
		if target == StatusCancelled {
			topic = events.TopicOrderCancelled
		}
		payload := map[string]any{
			"orderId": store.UUIDString(ord.ID),
			"status":  string(target),
			"from":    previous,
		}
		if user, err := s.Q.GetUserByID(ctx, ord.UserID); err == nil && user.Email != "" {
			payload["email"] = user.Email
		}
		_, _ = s.Events.Emit(ctx, topic, ord.ID, payload)
	}
	return ord, nil
}

// Cancel lets a shopper cancel their own order while it is still open.
func (s *Service) Cancel(ctx context.Context, userID, orderID pgtype.UUID) (store.Order, error) {
	if s == nil || s.Q == nil {
		return store.Order{}, errors.New("order service not configured")
	}
	ord, err := s.Q.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrNotFound
		}
		return store.Order{}, err
	}
	switch Status(ord.Status) {
	case StatusDelivered, StatusCancelled:
		return store.Order{}, ErrNotCancellable
	}
	actor := audit.Actor{Kind: audit.ActorKindUser, UserID: userID}
	return s.SetStatus(ctx, actor, ord.ID, StatusCancelled)
}
