// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (stored updated_at differs
	// from the caller's last-known value).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates a missing, expired or invalid session, or bad credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated request that failed the anti-forgery check.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input rejected before reaching storage.
	ErrValidation = errors.New("validation")
)
