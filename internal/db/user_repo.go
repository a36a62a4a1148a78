package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"yardlink/internal/types"
)

// UserRepository provides the minimal profile lookups the platform
// needs from the users table: contact details for invoice and
// notification emails. Identity itself is established upstream; this
// repository never touches credentials.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Contact is a user's displayable name and email address.
type Contact struct {
	UserID string
	Name   string
	Email  string
}

// GetContact returns the contact details for a user. Missing users map
// to an internal error since every actor id reaching this layer came
// from a verified identity.
func (r *UserRepository) GetContact(ctx context.Context, userID string) (*Contact, error) {
	var c Contact
	err := r.db.QueryRow(ctx,
		`SELECT id, COALESCE(full_name, ''), email FROM users WHERE id = $1`,
		userID,
	).Scan(&c.UserID, &c.Name, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "user record missing for authenticated actor", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user contact", err)
	}
	return &c, nil
}
