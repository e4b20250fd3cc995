// Package errs holds the sentinel errors shared across layers. Callers
// branch with errors.Is; each layer wraps with fmt.Errorf("%w: ...") to add
// detail without losing the kind.
package errs

import "errors"

var (
	// ErrValidation covers user-correctable input problems (empty message,
	// empty title). Nothing is committed when it is returned.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound covers both missing rows and ownership mismatches; the two
	// are deliberately indistinguishable to callers.
	ErrNotFound = errors.New("not found")

	// ErrBackend means the generative backend failed, timed out, or produced
	// no usable text. The user turn is already persisted and the same prompt
	// is safe to retry.
	ErrBackend = errors.New("backend failure")

	// ErrStore is a connectivity or integrity failure in the relational
	// store, scoped to the step it occurred in.
	ErrStore = errors.New("storage failure")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidPassword    = errors.New("password does not meet requirements")
)
