package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode classifies why a fallback stage (LLM reformatting, cache
// lookups) failed.
type ErrorCode string

const (
	ErrTimeout          ErrorCode = "timeout"
	ErrRateLimit        ErrorCode = "rate_limit"
	ErrModelUnavailable ErrorCode = "model_unavailable"
	ErrAuthFailed       ErrorCode = "auth_failed"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrEmptyResponse    ErrorCode = "empty_response"
	ErrContentTooLarge  ErrorCode = "content_too_large"
	ErrNoRecords        ErrorCode = "no_records"
	ErrNotAvailable     ErrorCode = "not_available"
	ErrProcessingError  ErrorCode = "processing_error"
)

// FallbackError is a structured error for a failed fallback stage.
type FallbackError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *FallbackError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Millisecond), e.Timeout.Truncate(time.Millisecond))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FallbackError) Unwrap() error {
	return e.Cause
}

// NewFallbackError builds a FallbackError without a cause.
func NewFallbackError(code ErrorCode, stage, message string) *FallbackError {
	return &FallbackError{Code: code, Stage: stage, Message: message}
}

// messagePattern maps lowercase substrings of an error message to a code.
// Rules are checked in order and the first hit wins.
type messagePattern struct {
	code    ErrorCode
	matches []string
}

var messagePatterns = []messagePattern{
	{ErrContentTooLarge, []string{"too large", "exceeds maximum", "context_length_exceeded", "maximum context length"}},
	{ErrAuthFailed, []string{"401", "403", "invalid api key", "incorrect api key", "unauthorized", "permission denied"}},
	{ErrRateLimit, []string{"rate limit", "429", "too many requests", "quota exceeded", "insufficient_quota"}},
	{ErrModelUnavailable, []string{"connection refused", "unavailable", "503", "502", "no such host", "model_not_found"}},
	{ErrEmptyResponse, []string{"empty response", "no choices", "empty content"}},
}

// ClassifyError inspects an error and returns a *FallbackError with the
// appropriate code. An error that already is a FallbackError keeps its code.
// Unrecognized errors are classified as ErrProcessingError.
func ClassifyError(err error, stage string) *FallbackError {
	if err == nil {
		return nil
	}

	var existing *FallbackError
	if errors.As(err, &existing) {
		return existing
	}

	fe := &FallbackError{Stage: stage, Cause: err}

	if errors.Is(err, context.DeadlineExceeded) {
		fe.Code = ErrTimeout
		fe.Message = "operation timed out"
		return fe
	}
	if errors.Is(err, context.Canceled) {
		fe.Code = ErrContextCancelled
		fe.Message = "operation cancelled"
		return fe
	}
	if errors.Is(err, ErrNotConfigured) {
		fe.Code = ErrNotAvailable
		fe.Message = err.Error()
		return fe
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	fe.Message = msg

	for _, p := range messagePatterns {
		for _, m := range p.matches {
			if strings.Contains(lower, m) {
				fe.Code = p.code
				return fe
			}
		}
	}

	fe.Code = ErrProcessingError
	return fe
}

// IsTimeout returns true if the error is a classified timeout.
func IsTimeout(err error) bool {
	var fe *FallbackError
	if errors.As(err, &fe) {
		return fe.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient and worth
// retrying, according to ErrorCode.Retryable.
func IsErrorRetryable(err error) bool {
	var fe *FallbackError
	if errors.As(err, &fe) {
		return fe.Code.Retryable()
	}
	return false
}

// CodeOf returns the classified code of err, or "" when err is nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return ClassifyError(err, "").Code
}
