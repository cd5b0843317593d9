// Package fault holds the error taxonomy shared by the engine, the reconciliation
// pipeline and the HTTP layer.
package fault

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown id or token. Expired invitations are reported
// with this error too.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the entity kind.
func NotFound(kind string) error {
	return fmt.Errorf("%s %w", kind, ErrNotFound)
}

// ValidationError is a user-visible input problem. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

// ConflictError reports an action on an entity that is not in the expected state.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

// Conflict builds a ConflictError.
func Conflict(reason string) error {
	return ConflictError{Reason: reason}
}

// TransientError wraps a failure of an external collaborator that may succeed
// on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error { return e.Err }

// Transient builds a TransientError.
func Transient(op string, err error) error {
	return TransientError{Op: op, Err: err}
}

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}
