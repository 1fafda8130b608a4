package clierr

import (
	"context"
	"errors"
	"fmt"

	"github.com/habedi/tokenguard/auth"
)

// Type categorizes a CLI-facing error for consistent messaging & potential exit codes.
type Type string

const (
	Validation     Type = "validation"
	SessionExpired Type = "session_expired"
	Request        Type = "request"
	Canceled       Type = "canceled"
	Internal       Type = "internal"
)

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

// FromError classifies err for display. A 401 that survived the executor means the session could
// not be renewed and the user has to log in again.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var cliErr *Error
	if errors.As(err, &cliErr) {
		return cliErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return New(Canceled, "request canceled: "+err.Error(), err)
	}
	if auth.IsUnauthorized(err) {
		return New(SessionExpired, "session expired, run `tokenguard login` to sign in again", err)
	}
	if status, ok := auth.StatusCode(err); ok {
		return New(Request, fmt.Sprintf("request failed with status %d", status), err)
	}
	return New(Internal, err.Error(), err)
}

// ExitCode maps an error type to a process exit code.
func (t Type) ExitCode() int {
	switch t {
	case Validation:
		return 2
	case SessionExpired:
		return 3
	case Request:
		return 4
	case Canceled:
		return 130
	default:
		return 1
	}
}
