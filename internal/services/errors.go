package services

import "errors"

var (
	// ErrUnauthorized means the token is missing, malformed, expired or
	// resolves to no identity, or credentials did not match.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation means the request violates an input constraint.
	ErrValidation = errors.New("validation failed")
	// ErrStorage means a backing store was unreachable or failed unexpectedly.
	ErrStorage = errors.New("storage failure")
	// ErrConflict means a unique value such as an email is already taken.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is only returned by deletes in strict mode.
	ErrNotFound = errors.New("not found")
)
