package retry_test

import (
	"errors"
	"testing"

	"github.com/prepflow-inc/prepflow-engine/pkg/llm"
	"github.com/prepflow-inc/prepflow-engine/pkg/retry"
)

// TestIsRetryable_WithLLMError verifies that retry.IsRetryable correctly
// recognizes llm.Error retryability via the IsRetryable() interface method.
func TestIsRetryable_WithLLMError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable llm.Error (503)",
			err:      llm.ClassifyError(errors.New("error, status code: 503"), "gpt-4o", "http://localhost:8000/v1"),
			expected: true,
		},
		{
			name:     "retryable llm.Error (429)",
			err:      llm.ClassifyError(errors.New("error, status code: 429, message: rate limit"), "gpt-4o", "http://localhost:8000/v1"),
			expected: true,
		},
		{
			name:     "non-retryable llm.Error (401)",
			err:      llm.ClassifyError(errors.New("error, status code: 401, message: unauthorized"), "gpt-4o", "http://localhost:8000/v1"),
			expected: false,
		},
		{
			name:     "non-retryable llm.Error (model not found)",
			err:      llm.ClassifyError(errors.New("the model does not exist"), "gpt-4o", "http://localhost:8000/v1"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := retry.IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

// TestIsRetryable_ClassifiedUnknown verifies unknown llm errors are treated
// as permanent.
func TestIsRetryable_ClassifiedUnknown(t *testing.T) {
	err := llm.ClassifyError(errors.New("malformed response body"), "gpt-4o", "")
	if retry.IsRetryable(err) {
		t.Error("expected unknown llm error to be non-retryable")
	}
}
