package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

type captureStore struct {
	actorID  pgtype.UUID
	action   string
	resource string
	details  []byte
	calls    int
}

func (c *captureStore) InsertAuditLog(_ context.Context, actorID pgtype.UUID, action, resource string, resourceID pgtype.UUID, details []byte) error {
	c.actorID = actorID
	c.action = action
	c.resource = resource
	c.details = details
	c.calls++
	return nil
}

func TestRecordDisabled(t *testing.T) {
	cs := &captureStore{}
	svc := Service{Store: cs}
	err := svc.Record(context.Background(), Actor{Kind: ActorKindUser}, "order.status_change", "order", pgtype.UUID{}, nil)
	require.NoError(t, err)
	require.Zero(t, cs.calls)
}

func TestRecordPersistsEntry(t *testing.T) {
	cs := &captureStore{}
	svc := Service{Store: cs, Enabled: true}
	actor := Actor{Kind: ActorKindUser, UserID: pgtype.UUID{Bytes: uuid.New(), Valid: true}}
	err := svc.Record(context.Background(), actor, "order.status_change", "order",
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, map[string]any{"from": "PENDING", "to": "SHIPPED"})
	require.NoError(t, err)
	require.Equal(t, 1, cs.calls)
	require.Equal(t, "order.status_change", cs.action)
	require.True(t, cs.actorID.Valid)
	require.Contains(t, string(cs.details), "SHIPPED")
}

func TestRecordSystemActorHasNoUser(t *testing.T) {
	cs := &captureStore{}
	svc := Service{Store: cs, Enabled: true}
	actor := Actor{Kind: ActorKindSystem, UserID: pgtype.UUID{Bytes: uuid.New(), Valid: true}}
	err := svc.Record(context.Background(), actor, "payment.webhook", "order", pgtype.UUID{}, nil)
	require.NoError(t, err)
	require.False(t, cs.actorID.Valid)
}

func TestRecordRequiresAction(t *testing.T) {
	svc := Service{Store: &captureStore{}, Enabled: true}
	err := svc.Record(context.Background(), Actor{Kind: ActorKindUser}, "  ", "order", pgtype.UUID{}, nil)
	require.Error(t, err)
}
