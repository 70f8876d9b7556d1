// Package apperr defines the error kinds surfaced at operation
// boundaries. Handlers map each kind to an HTTP status; everything else
// is treated as an internal fault.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind int

const (
	// KindValidation marks a missing or ill-formed required field,
	// rejected before any mutation.
	KindValidation Kind = iota
	// KindNotFound marks an unknown id.
	KindNotFound
	// KindConflict marks a referential conflict: a delete blocked by
	// existing references, or an unresolvable correspondent/service id
	// on create.
	KindConflict
	// KindForbidden marks an authorization failure for the acting user.
	KindForbidden
)

// Error is a structured, user-presentable operation failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err and whether err is an apperr.Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsValidation(err error) bool { k, ok := KindOf(err); return ok && k == KindValidation }
func IsNotFound(err error) bool   { k, ok := KindOf(err); return ok && k == KindNotFound }
func IsConflict(err error) bool   { k, ok := KindOf(err); return ok && k == KindConflict }
func IsForbidden(err error) bool  { k, ok := KindOf(err); return ok && k == KindForbidden }
