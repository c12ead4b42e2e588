package provider

import (
	"errors"
	"fmt"
	"strings"
)

// FailoverReason classifies why a provider call failed, for retry and
// failover decisions.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether a call failing for this reason is worth
// retrying with backoff.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ProviderError wraps a failed provider call with a stable reason and
// whatever diagnostic detail the upstream API returned.
type ProviderError struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Cause.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError builds a ProviderError, classifying cause's reason
// immediately.
func NewProviderError(providerName, model string, cause error) *ProviderError {
	return &ProviderError{
		Provider: providerName,
		Model:    model,
		Cause:    cause,
		Reason:   ClassifyError(cause),
	}
}

func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// ClassifyError does best-effort substring classification on an error's
// text. Upstream SDKs vary in how much structure they expose, so this is
// the fallback every adapter uses alongside any status-code classification
// it can do directly.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return FailoverTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return FailoverRateLimit
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "401"):
		return FailoverAuth
	case strings.Contains(msg, "billing"), strings.Contains(msg, "quota"), strings.Contains(msg, "insufficient_quota"):
		return FailoverBilling
	case strings.Contains(msg, "content filter"), strings.Contains(msg, "content_policy"):
		return FailoverContentFilter
	case strings.Contains(msg, "model_not_found"), strings.Contains(msg, "model not found"), strings.Contains(msg, "overloaded"):
		return FailoverModelUnavailable
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "server error"):
		return FailoverServerError
	case strings.Contains(msg, "400"), strings.Contains(msg, "invalid_request"):
		return FailoverInvalidRequest
	default:
		return FailoverUnknown
	}
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == 401 || status == 403:
		return FailoverAuth
	case status == 429:
		return FailoverRateLimit
	case status == 400 || status == 404 || status == 422:
		return FailoverInvalidRequest
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "rate_limit_exceeded":
		return FailoverRateLimit
	case "insufficient_quota", "billing_hard_limit_reached":
		return FailoverBilling
	case "invalid_api_key", "authentication_error":
		return FailoverAuth
	case "content_policy_violation":
		return FailoverContentFilter
	case "model_not_found", "overloaded_error":
		return FailoverModelUnavailable
	default:
		return FailoverUnknown
	}
}

// IsRetryable reports whether err (possibly wrapping a *ProviderError)
// should be retried.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	return false
}
