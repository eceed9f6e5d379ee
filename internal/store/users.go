package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// User mirrors a row of the users table.
type User struct {
	ID           pgtype.UUID
	Email        string
	PasswordHash string
	Name         pgtype.Text
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const userColumns = `id, email, password_hash, name, roles, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a user with the given roles.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, name pgtype.Text, roles []string) (User, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, roles)
		VALUES (lower($1), $2, $3, $4)
		RETURNING `+userColumns,
		email, passwordHash, name, roles)
	return scanUser(row)
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
	return scanUser(row)
}

// GetUserByID loads a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id pgtype.UUID) (User, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}
