package store

import "errors"

// Store errors.
var (
	// ErrUsernameTaken is returned by SetProfile when the requested
	// username collides with a different signing key's profile.
	ErrUsernameTaken = errors.New("store: username already taken")

	// ErrNotFound is returned by lookups that find no matching row.
	ErrNotFound = errors.New("store: not found")
)
