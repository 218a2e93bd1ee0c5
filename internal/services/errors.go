package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindInvalidFormat ErrorKind = "invalid_format"
	KindForbidden     ErrorKind = "forbidden"
)

// ClockSyncHint accompanies rejected one-time codes.
const ClockSyncHint = "check that your device clock is synchronized"

// AuthError is a failure the client can act on. Anything else returned by
// this package is an infrastructure error.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func notFound(message string, err error) *AuthError {
	return &AuthError{Kind: KindNotFound, Message: message, Err: err}
}

func unauthorized(message string, err error) *AuthError {
	return &AuthError{Kind: KindUnauthorized, Message: message, Err: err}
}

func invalidFormat(message string, err error) *AuthError {
	return &AuthError{Kind: KindInvalidFormat, Message: message, Err: err}
}

// IsKind reports whether err is an AuthError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}
