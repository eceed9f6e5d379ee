package order

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/audit"
	"github.com/oakline/storefront/internal/events"
	"github.com/oakline/storefront/internal/store"
)

type stubQueries struct {
	order     store.Order
	user      store.User
	setStatus string
}

func (s *stubQueries) GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error) {
	if !s.order.ID.Valid {
		return store.Order{}, pgx.ErrNoRows
	}
	return s.order, nil
}

func (s *stubQueries) GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (store.Order, error) {
	if !s.order.ID.Valid || !store.UUIDEqual(s.order.UserID, userID) {
		return store.Order{}, pgx.ErrNoRows
	}
	return s.order, nil
}

func (s *stubQueries) ListOrdersForUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Order, error) {
	return []store.Order{s.order}, nil
}

func (s *stubQueries) CountOrdersForUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	return 1, nil
}

func (s *stubQueries) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error) {
	return nil, nil
}

func (s *stubQueries) UpdateOrderStatus(ctx context.Context, id pgtype.UUID, status string) error {
	s.setStatus = status
	s.order.Status = status
	return nil
}

func (s *stubQueries) GetUserByID(ctx context.Context, id pgtype.UUID) (store.User, error) {
	return s.user, nil
}

type memEventStore struct {
	topics []string
}

func (m *memEventStore) InsertDomainEvent(ctx context.Context, topic string, entityID pgtype.UUID, payload []byte) error {
	m.topics = append(m.topics, topic)
	return nil
}

type memAuditStore struct {
	actions []string
}

func (m *memAuditStore) InsertAuditLog(ctx context.Context, actorID pgtype.UUID, action, resource string, resourceID pgtype.UUID, details []byte) error {
	m.actions = append(m.actions, action)
	return nil
}

func pendingOrder() store.Order {
	return store.Order{
		ID:     pgtype.UUID{Bytes: uuid.New(), Valid: true},
		UserID: pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Status: string(StatusPending),
	}
}

func TestSetStatusRunsSideEffects(t *testing.T) {
	q := &stubQueries{order: pendingOrder(), user: store.User{Email: "shopper@example.com"}}
	evStore := &memEventStore{}
	auditStore := &memAuditStore{}
	svc := &Service{
		Q:      q,
		Events: &events.Bus{Store: evStore},
		Audit:  audit.Service{Store: auditStore, Enabled: true},
	}
	actor := audit.Actor{Kind: audit.ActorKindUser, UserID: pgtype.UUID{Bytes: uuid.New(), Valid: true}}
	ord, err := svc.SetStatus(context.Background(), actor, q.order.ID, StatusShipped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ord.Status != string(StatusShipped) {
		t.Fatalf("expected SHIPPED, got %s", ord.Status)
	}
	if len(evStore.topics) != 1 || evStore.topics[0] != events.TopicOrderStatusChanged {
		t.Fatalf("expected one status-changed event, got %v", evStore.topics)
	}
	if len(auditStore.actions) != 1 || auditStore.actions[0] != "order.status_change" {
		t.Fatalf("expected audit entry, got %v", auditStore.actions)
	}
}

func TestSetStatusCancelledEmitsCancelTopic(t *testing.T) {
	q := &stubQueries{order: pendingOrder()}
	evStore := &memEventStore{}
	svc := &Service{Q: q, Events: &events.Bus{Store: evStore}}
	_, err := svc.SetStatus(context.Background(), audit.Actor{Kind: audit.ActorKindUser}, q.order.ID, StatusCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evStore.topics) != 1 || evStore.topics[0] != events.TopicOrderCancelled {
		t.Fatalf("expected cancelled event, got %v", evStore.topics)
	}
}

func TestSetStatusNotFound(t *testing.T) {
	svc := &Service{Q: &stubQueries{}}
	_, err := svc.SetStatus(context.Background(), audit.Actor{}, pgtype.UUID{Bytes: uuid.New(), Valid: true}, StatusShipped)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelFinishedOrder(t *testing.T) {
	q := &stubQueries{order: pendingOrder()}
	q.order.Status = string(StatusDelivered)
	svc := &Service{Q: q}
	_, err := svc.Cancel(context.Background(), q.order.UserID, q.order.ID)
	if !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestCancelOpenOrder(t *testing.T) {
	q := &stubQueries{order: pendingOrder()}
	svc := &Service{Q: q}
	ord, err := svc.Cancel(context.Background(), q.order.UserID, q.order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ord.Status != string(StatusCancelled) {
		t.Fatalf("expected CANCELLED, got %s", ord.Status)
	}
}
