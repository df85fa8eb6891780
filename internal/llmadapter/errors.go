package llmadapter

import (
	"errors"
	"net/http"
	"strings"
)

// FailoverReason categorizes why a provider request failed, so the
// session actor's transient-retry logic can tell a worth-retrying
// error (rate limit, server hiccup) from a permanent one (bad API key,
// malformed request).
type FailoverReason string

const (
	FailoverBilling        FailoverReason = "billing"
	FailoverRateLimit      FailoverReason = "rate_limit"
	FailoverAuth           FailoverReason = "auth"
	FailoverTimeout        FailoverReason = "timeout"
	FailoverServerError    FailoverReason = "server_error"
	FailoverInvalidRequest FailoverReason = "invalid_request"
	FailoverContentFilter  FailoverReason = "content_filter"
	FailoverUnknown        FailoverReason = "unknown"
)

// IsRetryable reports whether retrying the same request has a chance
// of succeeding.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ProviderError is the structured error this adapter returns for any
// failure talking to Anthropic, carrying enough context for the
// caller's retry and logging decisions.
type ProviderError struct {
	Reason    FailoverReason
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, "["+string(e.Reason)+"]", "anthropic")
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsProviderError reports whether err is (or wraps) a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

func asProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable classifies err, whether or not it has already been
// wrapped into a *ProviderError.
func IsRetryable(err error) bool {
	if pe, ok := asProviderError(err); ok {
		return pe.Reason.IsRetryable()
	}
	return classifyError(err).IsRetryable()
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return FailoverTimeout
	case strings.Contains(s, "rate limit"), strings.Contains(s, "rate_limit"), strings.Contains(s, "429"):
		return FailoverRateLimit
	case strings.Contains(s, "unauthorized"), strings.Contains(s, "invalid api key"), strings.Contains(s, "401"), strings.Contains(s, "403"):
		return FailoverAuth
	case strings.Contains(s, "billing"), strings.Contains(s, "quota"), strings.Contains(s, "402"):
		return FailoverBilling
	case strings.Contains(s, "content_filter"), strings.Contains(s, "content policy"), strings.Contains(s, "blocked"):
		return FailoverContentFilter
	case strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "504"), strings.Contains(s, "server error"):
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}
