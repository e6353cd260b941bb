package okapi

import (
	"errors"
	"fmt"

	"github.com/okapidb/okapi/pkg/db"
)

// Kind classifies every failure the engine surfaces. Low-level backend
// errors are translated to a Kind at the API boundary; no other error
// shapes cross it.
type Kind uint8

const (
	KindOK Kind = iota
	KindArgsInvalid
	KindNotFound
	KindConflict
	KindOutOfMemory
	KindIO
	KindCorruption
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindArgsInvalid:
		return "args_invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindOutOfMemory:
		return "out_of_memory"
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error carries a Kind, a human-readable message and an optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Unwrap() error { return e.cause }

// Is makes two engine errors match when their kinds match, so callers can
// compare against the exported sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.kind == other.kind
}

// Sentinels for errors.Is checks. The engine never returns these values
// directly; it returns errors that match them by kind.
var (
	ErrArgsInvalid = &Error{kind: KindArgsInvalid, msg: "invalid argument"}
	ErrNotFound    = &Error{kind: KindNotFound, msg: "not found"}
	ErrConflict    = &Error{kind: KindConflict, msg: "serialization conflict"}
	ErrOutOfMemory = &Error{kind: KindOutOfMemory, msg: "allocation failed"}
	ErrIO          = &Error{kind: KindIO, msg: "backend i/o failure"}
	ErrCorruption  = &Error{kind: KindCorruption, msg: "data corruption"}
	ErrUnsupported = &Error{kind: KindUnsupported, msg: "capability not supported"}
)

// KindOf extracts the Kind from any error returned by the engine.
// Non-engine errors report KindIO; nil reports KindOK.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindIO
}

func errArgs(format string, args ...any) *Error {
	return &Error{kind: KindArgsInvalid, msg: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) *Error {
	return &Error{kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

func errConflict(format string, args ...any) *Error {
	return &Error{kind: KindConflict, msg: fmt.Sprintf(format, args...)}
}

func errUnsupported(format string, args ...any) *Error {
	return &Error{kind: KindUnsupported, msg: fmt.Sprintf(format, args...)}
}

func errOOM(msg string) *Error {
	return &Error{kind: KindOutOfMemory, msg: msg}
}

func errCorruption(format string, args ...any) *Error {
	return &Error{kind: KindCorruption, msg: fmt.Sprintf(format, args...)}
}

func isNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}

// translate maps a backend failure into the taxonomy. Errors that already
// carry a Kind pass through unchanged.
func translate(err error, msg string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return &Error{kind: KindNotFound, msg: msg, cause: err}
	case errors.Is(err, db.ErrClosed):
		return &Error{kind: KindArgsInvalid, msg: msg, cause: err}
	default:
		return &Error{kind: KindIO, msg: msg, cause: err}
	}
}
