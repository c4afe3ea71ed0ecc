package llmerrors

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ClassifyContextError maps context cancellation and deadline errors, or
// returns nil when err is not context-related.
func ClassifyContextError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request canceled")
	}
	return nil
}

// ClassifyStatusCode maps an HTTP status code to a structured error.
// Unrecognized codes fall through to text classification.
func ClassifyStatusCode(statusCode int, err error) *Error {
	switch statusCode {
	case 401:
		return NewErrorWithStatus(ErrorTypeAuth, statusCode, "authentication failed - check API key")
	case 403:
		return NewErrorWithStatus(ErrorTypeAuth, statusCode, "permission denied - check API access")
	case 429:
		return NewErrorWithStatus(ErrorTypeRateLimit, statusCode, "rate limit exceeded")
	case 400:
		return NewErrorWithStatus(ErrorTypeBadPrompt, statusCode, "bad request - check prompt format and parameters")
	case 500, 502, 503, 504:
		return NewErrorWithStatus(ErrorTypeTransient, statusCode, "server error")
	default:
		return ClassifyErrorText(err)
	}
}

// ClassifyErrorText falls back to keyword matching on the error text.
// Providers wrap this with their own SDK-specific checks first.
func ClassifyErrorText(err error) *Error {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "network"),
		strings.Contains(errStr, "temporary"),
		strings.Contains(errStr, "EOF"),
		strings.Contains(errStr, "reset"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "limit"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "auth"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "unauthorized"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	case strings.Contains(lower, "invalid"),
		strings.Contains(lower, "malformed"),
		strings.Contains(lower, "too large"),
		strings.Contains(lower, "token"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, "prompt or request error")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
	}
}

// ExtractStatusCode attempts to extract an HTTP status code from an error
// string. SDKs often include status codes in error messages rather than
// exposing the response.
func ExtractStatusCode(errStr string) int {
	patterns := []string{
		"status code: ",
		"status: ",
		"http ",
		"code ",
	}

	lower := strings.ToLower(errStr)
	known := []int{400, 401, 403, 404, 429, 500, 502, 503, 504}

	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start >= len(errStr) {
			continue
		}
		end := start + 3
		if end > len(errStr) {
			end = len(errStr)
		}
		statusStr := errStr[start:end]
		for _, code := range known {
			if strings.HasPrefix(statusStr, strconv.Itoa(code)) {
				return code
			}
		}
	}

	return 0
}
