// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/songbook/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides CRUD access for administrator accounts.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// UpdateProfile changes username and display name.
	UpdateProfile(ctx context.Context, id uuid.UUID, username, displayName string) (*model.User, error)
	// SetPassword replaces the password hash and salt and bumps the session
	// generation, returning the updated user.
	SetPassword(ctx context.Context, id uuid.UUID, pwdHash, salt []byte) (*model.User, error)
	// SessionGeneration returns the user's current session generation.
	SessionGeneration(ctx context.Context, id uuid.UUID) (int64, error)
	// BumpSessionGeneration invalidates every session issued so far.
	BumpSessionGeneration(ctx context.Context, id uuid.UUID) (int64, error)
}
