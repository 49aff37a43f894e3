// Package apperr carries the typed error kinds used across the lifecycle
// operations. Store and provider failures are wrapped into one of these kinds
// with the original cause attached; callers classify with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindNotFound: a document or assistant the operation needs is missing.
	KindNotFound Kind = "not_found"
	// KindInvalidState: the document status forbids the operation.
	KindInvalidState Kind = "invalid_state"
	// KindForbidden: ownership mismatch.
	KindForbidden Kind = "forbidden"
	// KindBadRequest: malformed caller input.
	KindBadRequest Kind = "bad_request"
	// KindInvalidReference: a stored file URI that cannot be parsed into a key.
	KindInvalidReference Kind = "invalid_reference"
	// KindProvider: external AI provider failure.
	KindProvider Kind = "provider"
	// KindInternal: store read/write failure or any other internal error.
	KindInternal Kind = "internal"
)

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a kinded error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
