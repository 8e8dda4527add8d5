// Package errs defines the error taxonomy shared across the client,
// backends and transport: a fixed set of sentinel-wrapped kinds so callers
// can distinguish "not found" from "transport failure" from "end of
// iteration" without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way callers need to branch on it.
type Kind int

const (
	KindTransport Kind = iota
	KindProtocol
	KindBackend
	KindNotFound
	KindExists
	KindInvalidArgument
	KindIteratorEnd
	KindNotSupported
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindBackend:
		return "backend"
	case KindNotFound:
		return "not-found"
	case KindExists:
		return "exists"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindIteratorEnd:
		return "iterator-end"
	case KindNotSupported:
		return "not-supported"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a classified failure, optionally wrapping an underlying cause
// (e.g. a backend's own status code and message).
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// use errors.Is(err, errs.NotFound("")) style checks via the Kind helpers
// below instead.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error for a missing entity.
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Exists builds a KindExists error for a uniqueness violation.
func Exists(format string, args ...any) *Error { return newf(KindExists, format, args...) }

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(format string, args ...any) *Error {
	return newf(KindInvalidArgument, format, args...)
}

// IteratorEnd is the single shared end-of-stream sentinel; iterators return
// this exact value (not a fresh copy) so errors.Is works without Kind
// comparison.
var IteratorEnd = newf(KindIteratorEnd, "no more elements")

// NotSupported builds a KindNotSupported error, e.g. atomicity=batch
// requested on a non-transactional backend.
func NotSupported(format string, args ...any) *Error { return newf(KindNotSupported, format, args...) }

// Transport wraps a send/receive failure.
func Transport(cause error, format string, args ...any) *Error {
	e := newf(KindTransport, format, args...)
	e.Err = cause
	return e
}

// Protocol wraps a malformed-reply or id-mismatch failure.
func Protocol(cause error, format string, args ...any) *Error {
	e := newf(KindProtocol, format, args...)
	e.Err = cause
	return e
}

// Backend wraps a failure propagated from a backend capability call,
// carrying the backend's own status/message as cause.
func Backend(cause error, format string, args ...any) *Error {
	e := newf(KindBackend, format, args...)
	e.Err = cause
	return e
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
