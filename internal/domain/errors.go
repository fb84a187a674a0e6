// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed or missing input. Messages wrapping it are
// safe to show to the user verbatim.
var ErrValidation = errors.New("validation failed")

// ErrRateLimited indicates the store throttled the request.
var ErrRateLimited = errors.New("rate limit exceeded")
