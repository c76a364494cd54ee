// Package apperr defines the error taxonomy shared between the API layer
// and its collaborators. Handlers translate these into HTTP statuses and
// never leak storage-specific detail past this boundary.
package apperr

import "errors"

var (
	// ErrValidation marks malformed input, rejected before touching storage.
	ErrValidation = errors.New("invalid input")

	// ErrUnauthorized marks a missing, unknown, or expired session, or bad
	// login credentials. The caller must (re-)authenticate.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUsernameTaken is returned when registering a username that exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrStorage marks a failure in the persistence collaborator. Not
	// retried silently: sequence ids must come from storage, never guessed.
	ErrStorage = errors.New("storage failure")

	// ErrHubFull is returned when the pending-waiter bound is reached.
	ErrHubFull = errors.New("too many pending waiters")
)
