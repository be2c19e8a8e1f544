// Package apperrors defines the failure kinds a detection request can end in.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Unreachable
	AuthFailed
	ModelLoading
	RateLimited
	ProviderFault
	MalformedResponse
	UnexpectedShape
)

var kindNames = map[Kind]string{
	Internal:          "INTERNAL",
	Validation:        "VALIDATION_ERROR",
	Unreachable:       "UNREACHABLE",
	AuthFailed:        "AUTH_FAILED",
	ModelLoading:      "MODEL_LOADING",
	RateLimited:       "RATE_LIMITED",
	ProviderFault:     "PROVIDER_FAULT",
	MalformedResponse: "MALFORMED_RESPONSE",
	UnexpectedShape:   "UNEXPECTED_SHAPE",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns Internal for errors that were never classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// MessageOf returns the client facing message of err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
