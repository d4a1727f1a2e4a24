package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryTransport   ErrorCategory = "transport"
	ErrorCategoryAuth        ErrorCategory = "auth"
	ErrorCategoryRateLimited ErrorCategory = "rate_limited"
	ErrorCategorySchema      ErrorCategory = "schema"
	ErrorCategoryUnavailable ErrorCategory = "unavailable"
	ErrorCategoryCache       ErrorCategory = "cache"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// Categorize maps an error to a stable ErrorCategory.
func Categorize(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrAuth) {
		return ErrorCategoryAuth
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorCategoryRateLimited
	}
	if errors.Is(err, ErrSchema) {
		return ErrorCategorySchema
	}
	if errors.Is(err, ErrDataUnavailable) {
		return ErrorCategoryUnavailable
	}
	if errors.Is(err, ErrTransport) {
		if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline") {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryTransport
	}

	errStr := err.Error()
	if strings.Contains(errStr, "cache") {
		return ErrorCategoryCache
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection") {
		return ErrorCategoryTransport
	}
	return ErrorCategoryUnknown
}
