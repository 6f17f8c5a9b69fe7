package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrEmptyResponse is returned when a backend answers with no usable text.
var ErrEmptyResponse = errors.New("empty response received from model")

// APIError is a backend error response, already mapped from the provider SDK.
type APIError struct {
	Provider   string
	StatusCode int
	Reason     string // rate_limit, auth_error, provider_overloaded, bad_request, unknown
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s %s (HTTP %d): %s", e.Provider, e.Reason, e.StatusCode, e.Message)
}

// NewAPIError classifies an HTTP status code into an APIError.
func NewAPIError(provider string, status int, message string) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: status,
		Reason:     reasonForStatus(status),
		Message:    truncate(strings.TrimSpace(message), 600),
	}
}

func reasonForStatus(status int) string {
	switch {
	case status == 429:
		return "rate_limit"
	case status == 401 || status == 403:
		return "auth_error"
	case status == 502 || status == 503 || status == 529:
		return "provider_overloaded"
	case status >= 400 && status < 500:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by a Provider onto the failure taxonomy.
// ctx is the context the call ran under; an expired or cancelled context
// always yields Timeout.
func Classify(ctx context.Context, err error) FailureKind {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ProviderError
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ProviderError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return NetworkFailure
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NetworkFailure
	}
	return ProviderError
}

// redact removes every secret from s.
func redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "[REDACTED]")
	}
	return s
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
