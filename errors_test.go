package geoquest

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeTokenMissing, http.StatusUnauthorized},
		{CodeTokenExpired, http.StatusUnauthorized},
		{CodeTokenInvalid, http.StatusForbidden},
		{CodeSessionNotFound, http.StatusNotFound},
		{CodeChallengeCompleted, http.StatusConflict},
		{CodeAttemptsExhausted, http.StatusTooManyRequests},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeInvalidRiddle, http.StatusInternalServerError},
		{CodeConfig, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Fatalf("HTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("handler: %w", wrapError(CodeInternal, "failed to load session", cause))

	if !errors.Is(err, &Error{Code: CodeInternal}) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, &Error{Code: CodeSessionNotFound}) {
		t.Error("errors.Is matched a different code")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if got := ErrorCode(err); got != CodeInternal {
		t.Errorf("ErrorCode = %s", got)
	}
	if got := ErrorCode(errors.New("plain")); got != CodeInternal {
		t.Errorf("ErrorCode(plain) = %s", got)
	}
	if got := newError(CodeInvalidInput, "bad").Error(); got != "bad" {
		t.Errorf("Error() = %q", got)
	}
	if got := wrapError(CodeConfig, "load", cause).Error(); got != "load: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}
