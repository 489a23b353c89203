// Package apperror holds the failure categories shared by the handlers,
// the completion aggregator and the spreadsheet client.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Upstream
	Authorization
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Upstream:
		return "upstream"
	case Authorization:
		return "authorization"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is safe to show to the caller through Message; Err keeps the
// underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

func UpstreamError(message string, err error) *Error {
	return &Error{Kind: Upstream, Message: message, Err: err}
}

func AuthorizationError(message string, err error) *Error {
	return &Error{Kind: Authorization, Message: message, Err: err}
}

// From returns err as an *Error, wrapping unknown errors as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: Internal, Message: "internal server error", Err: err}
}

func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
