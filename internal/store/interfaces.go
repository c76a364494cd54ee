// Package store defines the persistence contracts the server is written
// against. Postgres implementations live in store/postgres, in-memory ones
// in store/memory; handlers and the delivery core only see the interfaces.
package store

import (
	"context"

	"github.com/technologicalMayhem/chat-app/internal/models"
)

// UserStore persists accounts and their credentials.
type UserStore interface {
	// CreateUser inserts a user and its credential record as one unit.
	// Returns apperr.ErrUsernameTaken when the name is already registered.
	CreateUser(ctx context.Context, username, salt, passwordHash string) (*models.User, error)

	// GetByName returns a user and its credential, or (nil, nil, nil)
	// when no such user exists.
	GetByName(ctx context.Context, username string) (*models.User, *models.Credential, error)

	// GetByID returns a user, or nil when the id is unknown.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// ResolveNames maps each id to its username; ids without a user are
	// present in the result with an empty string.
	ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// MessageStore is the append-only message log backend. The backend assigns
// sequence ids from a never-reused, strictly increasing sequence.
type MessageStore interface {
	// Append stores a message and returns it with ID and CreatedAt set.
	Append(ctx context.Context, userID int64, text string) (*models.Message, error)

	// Since returns messages with id > cursor in ascending id order.
	// limit <= 0 means no limit. Safe to call concurrently with Append;
	// a torn or partial message is never observed.
	Since(ctx context.Context, cursor int64, limit int) ([]models.Message, error)

	// LastID returns the highest assigned sequence id, 0 when empty.
	LastID(ctx context.Context) (int64, error)
}
