package subscriptions

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no subscription exists with the given id.
	ErrNotFound = errors.New("webhook subscription not found")

	// ErrCrossTenant is returned when a subscription exists but belongs to a
	// different societe than the caller. The gateway maps it to the same
	// not-found response as ErrNotFound so existence does not leak.
	ErrCrossTenant = errors.New("webhook subscription belongs to another societe")
)

// URLValidationError is a synchronous validation failure: the candidate URL
// did not accept the liveness probe. No subscription record is created.
type URLValidationError struct {
	URL    string
	Reason string
}

func (e *URLValidationError) Error() string {
	return fmt.Sprintf("URL validation failed for %s: %s", e.URL, e.Reason)
}

// ValidationError is any synchronous error a caller should treat as bad input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
