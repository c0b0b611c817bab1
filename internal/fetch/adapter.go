package fetch

import (
	"context"
	"errors"
	"fmt"

	"pricewatch/internal/domain"
)

// Adapter is the source adapter capability: given a target, it returns zero
// or more raw observations or fails with a classified *Error. The core
// treats it as opaque; site-specific parsing lives behind this interface.
// Implementations must be safe for concurrent use across different targets
// of the same source up to the configured concurrency limit.
type Adapter interface {
	Fetch(ctx context.Context, target domain.Target) ([]*domain.Observation, error)
}

// Error is a classified fetch failure. The Kind drives retry decisions:
// transient kinds are retried with backoff, permanent kinds surface
// immediately.
type Error struct {
	Kind    domain.ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errf creates a classified fetch error.
func Errf(kind domain.ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind domain.ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the error kind from an adapter error. Context deadline
// expiry counts as a timeout (and therefore transient); anything
// unclassified is a protocol error.
func KindOf(err error) domain.ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrKindTimeout
	}
	return domain.ErrKindProtocolError
}
