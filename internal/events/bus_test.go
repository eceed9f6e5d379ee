package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/oakline/storefront/internal/events"
)

type stubStore struct {
	topic    string
	entityID pgtype.UUID
	payload  []byte
	err      error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, entityID pgtype.UUID, payload []byte) error {
	s.topic = topic
	s.entityID = entityID
	s.payload = payload
	return s.err
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicOrderCreated, toUUID(uuid.New()), map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.topic)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, ev.Topic, notifier.events[0].Topic)
}

func TestEmitRequiresEntityID(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, pgtype.UUID{}, nil)
	require.Error(t, err)
}

func TestEmitSurvivesNotifierFailure(t *testing.T) {
	store := &stubStore{}
	failing := &captureNotifier{err: errors.New("smtp down")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, toUUID(uuid.New()), nil)
	require.Error(t, err)
	require.Len(t, ok.events, 1, "later notifiers still run")
	require.NotEmpty(t, store.topic, "event persisted despite notifier failure")
}

func TestEmitRejectsInvalidJSONPayload(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, toUUID(uuid.New()), []byte("not-json"))
	require.Error(t, err)
}
