package geoquest

import (
	"errors"
	"net/http"
)

// Code is a machine-readable failure kind.
type Code string

const (
	CodeTokenMissing       Code = "TOKEN_MISSING"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeSessionNotFound    Code = "SESSION_NOT_FOUND"
	CodeChallengeCompleted Code = "CHALLENGE_COMPLETED"
	CodeAttemptsExhausted  Code = "ATTEMPTS_EXHAUSTED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidRiddle      Code = "INVALID_RIDDLE"
	CodeConfig             Code = "CONFIG"
	CodeInternal           Code = "INTERNAL"
)

// HTTPStatus maps a code to the response status used by the HTTP layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeTokenMissing, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeTokenInvalid:
		return http.StatusForbidden
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeChallengeCompleted:
		return http.StatusConflict
	case CodeAttemptsExhausted, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a coded challenge failure.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// ErrorCode returns the code carried by err, or CodeInternal.
func ErrorCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
