package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Boundary errors.
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")

	// Collaborator and invariant errors.
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrSessionNotFound is a NotFound for processor checkout sessions.
	ErrSessionNotFound = fmt.Errorf("checkout session %w", ErrNotFound)

	// Auth errors.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("token expired: %w", ErrUnauthorized)
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindInvalid       Kind = "invalid"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUnavailable   Kind = "unavailable"
	KindInconsistency Kind = "inconsistency"
	KindInternal      Kind = "internal"
)

// KindOf maps err onto the taxonomy. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalid
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrInternalInconsistency):
		return KindInconsistency
	default:
		return KindInternal
	}
}

// Retryable reports whether repeating the same call may succeed.
func Retryable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// Unavailable wraps a collaborator failure as ErrUpstreamUnavailable while
// keeping the cause in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

// Invalid builds an ErrInvalidInput with a client-facing reason.
func Invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
