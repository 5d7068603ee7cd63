// Package providers contains the LLM backend adapters. Each adapter
// translates the canonical message list to its provider's wire format,
// performs the HTTP call through the official SDK, and maps provider errors
// onto a small shared taxonomy.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the taxonomy the iteration loop inspects. The raw provider
// message is preserved alongside for logs and diagnostics.
type ErrorKind string

const (
	KindRateLimit             ErrorKind = "rate-limit"
	KindModelNotFound         ErrorKind = "model-not-found"
	KindAuth                  ErrorKind = "auth-failure"
	KindQuota                 ErrorKind = "quota-exceeded"
	KindServerError           ErrorKind = "server-error"
	KindBadRequest            ErrorKind = "bad-request"
	KindMalformedFunctionCall ErrorKind = "malformed-function-call"
	KindSafetyBlocked         ErrorKind = "safety-blocked"
	KindMaxTokens             ErrorKind = "max-tokens"
	KindTimeout               ErrorKind = "timeout"
	KindUnknown               ErrorKind = "unknown"
)

// IsRetryable reports whether a request failing with this kind is worth
// retrying against the same provider.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case KindRateLimit, KindServerError, KindTimeout:
		return true
	default:
		return false
	}
}

// ProviderError is the uniform error shape for provider failures.
type ProviderError struct {
	Provider   string
	Model      string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Provider)
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError builds a ProviderError around a cause, classifying it from
// the error text when no kind is supplied later via WithKind.
func NewProviderError(provider, model string, cause error) *ProviderError {
	pe := &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     ClassifyError(cause),
		Cause:    cause,
	}
	if cause != nil {
		pe.Message = cause.Error()
	}
	return pe
}

// WithKind overrides the classified kind.
func (e *ProviderError) WithKind(kind ErrorKind) *ProviderError {
	e.Kind = kind
	return e
}

// WithStatus records the HTTP status and refines the kind when it is still
// unknown.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.StatusCode = status
	if e.Kind == KindUnknown || e.Kind == "" {
		e.Kind = classifyStatusCode(status)
	}
	return e
}

// WithMessage replaces the human-readable message.
func (e *ProviderError) WithMessage(message string) *ProviderError {
	e.Message = message
	return e
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsProviderError reports whether err carries a ProviderError.
func IsProviderError(err error) bool {
	_, ok := GetProviderError(err)
	return ok
}

func classifyStatusCode(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusNotFound:
		return KindModelNotFound
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// ClassifyError maps an arbitrary error to a kind by message inspection.
// Status-code classification is preferred when available; this is the
// fallback for transport-level and SDK-wrapped failures.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if pe, ok := GetProviderError(err); ok {
		return pe.Kind
	}
	// A cancelled call must not be retried as a timeout.
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "quota"), strings.Contains(msg, "billing"),
		strings.Contains(msg, "insufficient credit"):
		return KindQuota
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "invalid x-api-key"), strings.Contains(msg, "authentication"),
		strings.Contains(msg, "permission denied"), strings.Contains(msg, "403"):
		return KindAuth
	case strings.Contains(msg, "model not found"), strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "unknown model"), strings.Contains(msg, "not_found_error"):
		return KindModelNotFound
	case strings.Contains(msg, "malformed_function_call"),
		strings.Contains(msg, "malformed function call"):
		return KindMalformedFunctionCall
	case strings.Contains(msg, "safety"), strings.Contains(msg, "content filter"),
		strings.Contains(msg, "blocked"):
		return KindSafetyBlocked
	case strings.Contains(msg, "context canceled"):
		return KindUnknown
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "internal server error"), strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"), strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return KindServerError
	default:
		return KindUnknown
	}
}
