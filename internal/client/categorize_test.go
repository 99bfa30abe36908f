package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

// TestCategorizeError verifies that CategorizeError keeps decode and network failures
// distinguishable, including through wrapping.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"decode", ErrDecode, ErrorCategoryDecode},
		{"wrapped decode", fmt.Errorf("%w: missing field raining", ErrDecode), ErrorCategoryDecode},
		{"network", ErrNetwork, ErrorCategoryNetwork},
		{"network with status", fmt.Errorf("%w: HTTP 502", ErrNetwork), ErrorCategoryNetwork},
		{"deadline", fmt.Errorf("%w: %w", ErrNetwork, context.DeadlineExceeded), ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryTimeout},
		{"net timeout", fmt.Errorf("%w: %w", ErrNetwork, timeoutErr{}), ErrorCategoryTimeout},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
