package location

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies why a position could not be acquired.
type ErrorCode string

const (
	CodeUnsupported         ErrorCode = "unsupported"
	CodePermissionDenied    ErrorCode = "permission_denied"
	CodePositionUnavailable ErrorCode = "position_unavailable"
	CodeTimeout             ErrorCode = "timeout"
	CodeUnknown             ErrorCode = "unknown"
)

// Error is the typed failure returned by Resolve and by Geolocator implementations.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("location [%s]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrTimeout) works on wrapped causes.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrUnsupported         = &Error{Code: CodeUnsupported, Message: "device has no location capability"}
	ErrPermissionDenied    = &Error{Code: CodePermissionDenied, Message: "user denied location permission"}
	ErrPositionUnavailable = &Error{Code: CodePositionUnavailable, Message: "position information is unavailable"}
	ErrTimeout             = &Error{Code: CodeTimeout, Message: "timed out acquiring position"}
	ErrUnknown             = &Error{Code: CodeUnknown, Message: "could not acquire position"}
)

// CodeOf extracts the error code. Context deadlines map to CodeTimeout; anything else untyped is CodeUnknown.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnknown
}

// normalize turns any acquisition failure into a *Error.
func normalize(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	code := CodeOf(err)
	msg := ErrUnknown.Message
	if code == CodeTimeout {
		msg = ErrTimeout.Message
	}
	return &Error{Code: code, Message: msg, Err: err}
}
