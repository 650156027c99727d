package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes every failure the roulette core reports.
type ErrorKind string

const (
	// KindValidation marks a malformed pool definition. It is raised when a
	// pool is installed and never at draw time.
	KindValidation ErrorKind = "VALIDATION_ERROR"

	// KindPoolNotFound marks a draw against an unknown pool id.
	KindPoolNotFound ErrorKind = "POOL_NOT_FOUND"

	// KindPoolExhausted marks a draw with no eligible entries left. It is a
	// legitimate terminal outcome, not a failure of the system.
	KindPoolExhausted ErrorKind = "POOL_EXHAUSTED"

	// KindPersistence marks a storage read or write error. A draw reporting
	// it did not happen.
	KindPersistence ErrorKind = "PERSISTENCE_FAILURE"

	// KindTimeout marks a bounded storage wait that expired. The outcome is
	// unknown; check history before retrying.
	KindTimeout ErrorKind = "TIMEOUT"

	// KindContention marks a per-key lock that could not be acquired in
	// time. Nothing was touched; retrying is safe.
	KindContention ErrorKind = "CONTENTION"
)

// Error carries an ErrorKind plus the context it happened in.
type Error struct {
	Kind ErrorKind

	// Op names the operation that failed ("draw", "append", "replace", ...).
	Op string

	PoolID string
	UserID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	switch {
	case e.PoolID != "" && e.UserID != "":
		fmt.Fprintf(&b, " (pool=%s, user=%s)", e.PoolID, e.UserID)
	case e.PoolID != "":
		fmt.Fprintf(&b, " (pool=%s)", e.PoolID)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of the first *Error in err's chain, or ""
// when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether err carries the given kind.
// Uses errors.As to handle wrapped errors.
func HasKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsValidation returns true if err is a pool validation error.
func IsValidation(err error) bool {
	return HasKind(err, KindValidation)
}

// IsNotFound returns true if err reports an unknown pool.
func IsNotFound(err error) bool {
	return HasKind(err, KindPoolNotFound)
}

// IsExhausted returns true if err reports a pool with no eligible entries.
func IsExhausted(err error) bool {
	return HasKind(err, KindPoolExhausted)
}

// NewValidationError creates a validation error for a pool definition.
func NewValidationError(poolID, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      "validate",
		PoolID:  poolID,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFoundError creates a PoolNotFound error.
func NewNotFoundError(poolID string) *Error {
	return &Error{
		Kind:    KindPoolNotFound,
		Op:      "load",
		PoolID:  poolID,
		Message: "no such pool",
	}
}

// NewExhaustedError creates a PoolExhausted error for a user on a pool.
func NewExhaustedError(poolID, userID string) *Error {
	return &Error{
		Kind:    KindPoolExhausted,
		Op:      "draw",
		PoolID:  poolID,
		UserID:  userID,
		Message: "no eligible entries remain",
	}
}

// Wrap attaches kind and operation context to a lower-level error.
func Wrap(kind ErrorKind, op, poolID, userID string, err error) *Error {
	return &Error{
		Kind:   kind,
		Op:     op,
		PoolID: poolID,
		UserID: userID,
		Err:    err,
	}
}
