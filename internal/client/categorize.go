package client

import (
	"context"
	"errors"
)

// ErrorCategory is a stable label for error classification in logs and metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout ErrorCategory = "timeout"
	ErrorCategoryNetwork ErrorCategory = "network"
	ErrorCategoryDecode  ErrorCategory = "decode"
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// CategorizeError maps a Fetch error to an ErrorCategory. Timeouts are reported separately
// from other network failures; decode failures signal a provider contract violation.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrDecode) {
		return ErrorCategoryDecode
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrNetwork) {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
