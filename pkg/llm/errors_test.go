package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestError_Error_WithStatusCode tests Error.Error() includes status code
func TestError_Error_WithStatusCode(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeServer,
		Message:    "server error",
		StatusCode: 503,
	}

	result := err.Error()
	if !strings.Contains(result, "HTTP 503") {
		t.Errorf("expected error message to contain 'HTTP 503', got: %s", result)
	}
	if !strings.Contains(result, "server error") {
		t.Errorf("expected error message to contain 'server error', got: %s", result)
	}
}

// TestError_Error_WithModel tests Error.Error() includes model name
func TestError_Error_WithModel(t *testing.T) {
	err := &Error{
		Type:    ErrorTypeRateLimit,
		Message: "rate limited",
		Model:   "gpt-4o",
	}

	result := err.Error()
	if !strings.Contains(result, "model=gpt-4o") {
		t.Errorf("expected error message to contain 'model=gpt-4o', got: %s", result)
	}
}

// TestError_Error_WithCause tests Error.Error() includes the wrapped cause
func TestError_Error_WithCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := &Error{
		Type:    ErrorTypeEndpoint,
		Message: "connection failed",
		Cause:   cause,
	}

	result := err.Error()
	if !strings.Contains(result, "connection refused") {
		t.Errorf("expected error message to contain cause, got: %s", result)
	}
}

// TestError_Unwrap tests errors.Is can see through to the cause
func TestError_Unwrap(t *testing.T) {
	sentinel := errors.New("boom")
	err := &Error{Type: ErrorTypeUnknown, Message: "llm error", Cause: sentinel}

	if !errors.Is(err, sentinel) {
		t.Error("expected errors.Is to match the wrapped cause")
	}
}

// TestClassifyError covers the classification table
func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{
			name:      "401 unauthorized",
			err:       errors.New("error, status code: 401, message: invalid api key"),
			wantType:  ErrorTypeAuth,
			retryable: false,
		},
		{
			name:      "model does not exist",
			err:       errors.New("the model `gpt-9` does not exist"),
			wantType:  ErrorTypeModel,
			retryable: false,
		},
		{
			name:      "404 endpoint",
			err:       errors.New("error, status code: 404, message: not found"),
			wantType:  ErrorTypeEndpoint,
			retryable: false,
		},
		{
			name:      "connection refused",
			err:       errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"),
			wantType:  ErrorTypeEndpoint,
			retryable: true,
		},
		{
			name:      "deadline exceeded",
			err:       errors.New("context deadline exceeded"),
			wantType:  ErrorTypeEndpoint,
			retryable: true,
		},
		{
			name:      "429 rate limit",
			err:       errors.New("error, status code: 429, message: rate limit exceeded"),
			wantType:  ErrorTypeRateLimit,
			retryable: true,
		},
		{
			name:      "503 server error",
			err:       errors.New("error, status code: 503, message: service unavailable"),
			wantType:  ErrorTypeServer,
			retryable: true,
		},
		{
			name:      "unknown",
			err:       errors.New("something strange happened"),
			wantType:  ErrorTypeUnknown,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err, "test-model", "http://localhost:8000/v1")
			if classified.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, classified.Type)
			}
			if classified.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, classified.Retryable)
			}
			if classified.Model != "test-model" {
				t.Errorf("expected model to be stamped, got %q", classified.Model)
			}
			if !errors.Is(classified, tt.err) {
				t.Error("expected classified error to wrap the original")
			}
		})
	}
}

// TestClassifyError_Nil tests nil passes through
func TestClassifyError_Nil(t *testing.T) {
	if got := ClassifyError(nil, "m", "e"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

// TestClassifyError_AlreadyClassified tests an *Error passes through unchanged
func TestClassifyError_AlreadyClassified(t *testing.T) {
	original := &Error{Type: ErrorTypeAuth, Message: "authentication failed"}
	got := ClassifyError(original, "other-model", "other-endpoint")
	if got != original {
		t.Error("expected already-classified error to be returned as-is")
	}
}

// TestIsRetryable tests the retryability helper
func TestIsRetryable(t *testing.T) {
	retryable := &Error{Type: ErrorTypeServer, Retryable: true}
	if !IsRetryable(retryable) {
		t.Error("expected retryable error to report retryable")
	}

	permanent := &Error{Type: ErrorTypeAuth, Retryable: false}
	if IsRetryable(permanent) {
		t.Error("expected auth error to report not retryable")
	}

	if IsRetryable(errors.New("plain error")) {
		t.Error("expected plain error to report not retryable")
	}
}

// TestGetErrorType tests type extraction, including wrapped errors
func TestGetErrorType(t *testing.T) {
	inner := &Error{Type: ErrorTypeRateLimit, Message: "rate limited"}
	wrapped := fmt.Errorf("assist call failed: %w", inner)

	if got := GetErrorType(wrapped); got != ErrorTypeRateLimit {
		t.Errorf("expected rate_limit, got %s", got)
	}
	if got := GetErrorType(errors.New("plain")); got != ErrorTypeUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
}
