package llmadapter

import (
	"errors"
	"testing"
)

func TestClassifyErrorRetryableCategories(t *testing.T) {
	cases := []struct {
		msg       string
		reason    FailoverReason
		retryable bool
	}{
		{"rate_limit_error: too many requests", FailoverRateLimit, true},
		{"503 service unavailable", FailoverServerError, true},
		{"context deadline exceeded", FailoverTimeout, true},
		{"401 unauthorized: invalid api key", FailoverAuth, false},
		{"insufficient quota, please add billing", FailoverBilling, false},
		{"completely unrecognized failure", FailoverUnknown, false},
	}
	for _, c := range cases {
		got := classifyError(errors.New(c.msg))
		if got != c.reason {
			t.Errorf("classifyError(%q) = %s, want %s", c.msg, got, c.reason)
		}
		if got.IsRetryable() != c.retryable {
			t.Errorf("IsRetryable(%q) = %v, want %v", c.msg, got.IsRetryable(), c.retryable)
		}
	}
}

func TestProviderErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	pe := &ProviderError{Reason: FailoverServerError, Model: "claude-sonnet-4-20250514", Cause: cause}
	if !errors.Is(pe, cause) {
		t.Fatal("expected errors.Is to see through ProviderError to its cause")
	}
	if pe.Error() == "" {
		t.Fatal("expected a non-empty error string")
	}
}

func TestIsRetryablePrefersClassifiedProviderError(t *testing.T) {
	pe := &ProviderError{Reason: FailoverRateLimit, Cause: errors.New("429")}
	if !IsRetryable(pe) {
		t.Fatal("expected a rate-limit ProviderError to be retryable")
	}
	pe2 := &ProviderError{Reason: FailoverAuth, Cause: errors.New("401")}
	if IsRetryable(pe2) {
		t.Fatal("expected an auth ProviderError to not be retryable")
	}
}
