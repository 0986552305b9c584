package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row or key.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername reports a unique violation on users.username.
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrDuplicateEmail reports a unique violation on users.email.
	ErrDuplicateEmail = errors.New("duplicate email")
)
