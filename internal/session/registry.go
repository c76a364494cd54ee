// Package session maps opaque tokens to authenticated users.
//
// Expiry is lazy: an idle-expired token is removed by the validation
// attempt that discovers it. An active sweeper could be added without
// changing observable behavior, but nothing requires one — an expired
// entry costs a few bytes until someone presents its token again.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidSession is returned when a token is unknown or expired.
var ErrInvalidSession = errors.New("invalid or expired session")

// Registry is the server-side session table. Multiple tokens may map to
// the same user concurrently; multi-login is a feature, not a conflict.
type Registry interface {
	// Create issues a fresh unguessable token for the user.
	Create(ctx context.Context, userID int64) (string, error)

	// Validate resolves a token to its user and refreshes last-activity.
	// Fails with ErrInvalidSession for unknown or idle-expired tokens;
	// an expired entry is removed on the spot.
	Validate(ctx context.Context, token string) (int64, error)

	// Revoke removes a token. Revoking an already-gone token is not an
	// error.
	Revoke(ctx context.Context, token string) error
}

type entry struct {
	userID    int64
	createdAt time.Time
	lastSeen  time.Time
}

// MemoryRegistry keeps sessions in a mutex-guarded map.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]*entry
	idleTTL time.Duration
	now     func() time.Time
}

func NewMemoryRegistry(idleTTL time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]*entry),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (r *MemoryRegistry) Create(ctx context.Context, userID int64) (string, error) {
	// uuid v4: 122 random bits from crypto/rand, unguessable in practice.
	token := uuid.NewString()
	now := r.now()

	r.mu.Lock()
	r.entries[token] = &entry{userID: userID, createdAt: now, lastSeen: now}
	r.mu.Unlock()

	return token, nil
}

func (r *MemoryRegistry) Validate(ctx context.Context, token string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[token]
	if !ok {
		return 0, ErrInvalidSession
	}

	now := r.now()
	if now.Sub(e.lastSeen) > r.idleTTL {
		delete(r.entries, token)
		return 0, ErrInvalidSession
	}

	e.lastSeen = now
	return e.userID, nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, token string) error {
	r.mu.Lock()
	delete(r.entries, token)
	r.mu.Unlock()
	return nil
}
