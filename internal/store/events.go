package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertDomainEvent persists a domain event. Payload is pre-marshalled JSON.
func (s *Store) InsertDomainEvent(ctx context.Context, topic string, entityID pgtype.UUID, payload []byte) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO domain_events (topic, entity_id, payload)
		VALUES ($1, $2, $3)`,
		topic, entityID, payload)
	return err
}
