package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertAuditLog appends an audit entry. Details is pre-marshalled JSON and
// may be nil.
func (s *Store) InsertAuditLog(ctx context.Context, actorID pgtype.UUID, action, resource string, resourceID pgtype.UUID, details []byte) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, resource, resource_id, details)
		VALUES ($1, $2, $3, $4, $5)`,
		actorID, action, resource, resourceID, details)
	return err
}
