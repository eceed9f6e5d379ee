package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/store"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindUser represents an authenticated end-user.
	ActorKindUser ActorKind = "user"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID pgtype.UUID
}

// Store defines the database operation required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, actorID pgtype.UUID, action, resource string, resourceID pgtype.UUID, details []byte) error
}

// Service persists audit logs for administrative and checkout flows.
type Service struct {
	Store   Store
	Enabled bool
}

// Record persists an audit log entry when auditing is enabled.
func (s Service) Record(ctx context.Context, actor Actor, action, resource string, resourceID pgtype.UUID, details map[string]any) error {
	if !s.Enabled {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return errors.New("audit: action is required")
	}
	var encoded []byte
	if len(details) > 0 {
		var err error
		encoded, err = json.Marshal(details)
		if err != nil {
			return err
		}
	}
	actorID := actor.UserID
	if actor.Kind == ActorKindSystem {
		actorID = pgtype.UUID{}
	}
	return s.Store.InsertAuditLog(ctx, actorID, action, resource, resourceID, encoded)
}

var _ Store = (*store.Store)(nil)
