package feed

import (
	"errors"
	"fmt"
)

// ErrInvalidURL is returned before any state change when a candidate URL
// does not carry a recognized scheme.
var ErrInvalidURL = errors.New("invalid feed URL")

type ErrorKind string

const (
	ErrKindTimeout         ErrorKind = "timeout"
	ErrKindBadStatus       ErrorKind = "bad_status"
	ErrKindParse           ErrorKind = "parse_error"
	ErrKindUnsupportedType ErrorKind = "unsupported_type"
	ErrKindNetwork         ErrorKind = "network"
)

// Error is a fetch/parse failure for one source. Timeout, bad-status and
// network kinds are transient: retried on the next sweep, never inline.
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
	cause  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrKindTimeout:
		return "feed request timed out"
	case ErrKindBadStatus:
		return fmt.Sprintf("feed returned HTTP %d", e.Status)
	case ErrKindParse:
		return fmt.Sprintf("feed parse error: %s", e.Detail)
	case ErrKindUnsupportedType:
		return "unsupported feed type"
	default:
		return fmt.Sprintf("feed fetch failed: %s", e.Detail)
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Transient reports whether the failure is expected to resolve without a
// change to the source definition.
func (e *Error) Transient() bool {
	switch e.Kind {
	case ErrKindTimeout, ErrKindBadStatus, ErrKindNetwork:
		return true
	}
	return false
}

func timeoutError(cause error) *Error {
	return &Error{Kind: ErrKindTimeout, cause: cause}
}

func badStatusError(status int) *Error {
	return &Error{Kind: ErrKindBadStatus, Status: status}
}

func parseError(cause error) *Error {
	return &Error{Kind: ErrKindParse, Detail: cause.Error(), cause: cause}
}

func unsupportedTypeError() *Error {
	return &Error{Kind: ErrKindUnsupportedType}
}

func networkError(cause error) *Error {
	return &Error{Kind: ErrKindNetwork, Detail: cause.Error(), cause: cause}
}
