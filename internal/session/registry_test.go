package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndValidate(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(time.Hour)

	token, err := r.Create(context.Background(), 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := r.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestValidateUnknownToken(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(time.Hour)

	_, err := r.Validate(context.Background(), "not-a-real-token")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestMultipleSessionsPerUser(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(time.Hour)

	tokenA, err := r.Create(context.Background(), 7)
	require.NoError(t, err)
	tokenB, err := r.Create(context.Background(), 7)
	require.NoError(t, err)
	require.NotEqual(t, tokenA, tokenB)

	// Revoking one login must not touch the other, even for the same
	// user.
	require.NoError(t, r.Revoke(context.Background(), tokenA))

	_, err = r.Validate(context.Background(), tokenA)
	assert.ErrorIs(t, err, ErrInvalidSession)

	userID, err := r.Validate(context.Background(), tokenB)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}

func TestRevokeIsIdempotent(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(time.Hour)

	token, err := r.Create(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, r.Revoke(context.Background(), token))
	require.NoError(t, r.Revoke(context.Background(), token))
	require.NoError(t, r.Revoke(context.Background(), "never-existed"))
}

func TestIdleExpiry(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(10 * time.Minute)

	now := time.Now()
	r.now = func() time.Time { return now }

	token, err := r.Create(context.Background(), 5)
	require.NoError(t, err)

	// Activity just inside the window refreshes last-seen.
	now = now.Add(9 * time.Minute)
	_, err = r.Validate(context.Background(), token)
	require.NoError(t, err)

	// Another 9 minutes of idleness: still fine, because the previous
	// validation reset the clock.
	now = now.Add(9 * time.Minute)
	_, err = r.Validate(context.Background(), token)
	require.NoError(t, err)

	// Past the idle window: lazily invalidated and removed.
	now = now.Add(11 * time.Minute)
	_, err = r.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidSession)

	// And it stays gone even if time rewinds (entry was deleted).
	now = now.Add(-11 * time.Minute)
	_, err = r.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestTokensAreUnique(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := r.Create(context.Background(), int64(i))
		require.NoError(t, err)
		require.False(t, seen[token], "token collision")
		seen[token] = true
	}
}
