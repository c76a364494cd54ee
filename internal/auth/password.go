// Package auth wraps the password hashing primitive behind a narrow
// interface so the rest of the server never sees bcrypt directly.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords against a per-credential salt.
// Implementations must never expose plaintext back to the caller.
type Hasher interface {
	// Hash derives a storable hash from a password and salt.
	Hash(password, salt string) (string, error)

	// Verify reports whether password+salt matches the stored hash.
	// It must run in time independent of how close the guess is.
	Verify(password, salt, hash string) bool
}

// BcryptHasher is the default Hasher.
//
// bcrypt embeds its own random salt, but the credential schema carries an
// explicit salt column as well; we prefix it to the password before
// hashing so a stolen hash table can't be attacked with a single
// precomputed dictionary even if bcrypt's internal salt were ignored.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(password, salt string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(salt+password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(password, salt, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(salt+password)) == nil
}

// NewSalt returns a fresh random salt, hex-encoded.
func NewSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
