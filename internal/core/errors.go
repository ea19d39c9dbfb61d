package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so transport layers can map it to a
// response code without matching on message text.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindUnauthorized
	KindConflict
	KindInternal
)

// Error is a domain error with a kind and a user-facing message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invalidf returns a validation error (maps to 400).
func Invalidf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a not-found error (maps to 404).
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a concurrent-modification error (maps to 409).
func Conflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

// Unauthorized returns an authentication error (maps to 401).
func Unauthorized(message string) error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Internalf wraps err as an internal error (maps to 500).
func Internalf(err error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err. Unclassified errors get a
// generic message so internal details never leak to responses.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "Internal server error"
}
