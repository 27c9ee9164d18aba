package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/normgraph/normgraph/internal/types"
)

// NewAuthError creates a non-retryable authentication error for a provider.
func NewAuthError(provider string, cause error) *types.Error {
	return &types.Error{
		Code:    types.LLM_AUTH_FAILED,
		Message: fmt.Sprintf("provider %q authentication failed", provider),
		Cause:   cause,
	}
}

// NewRateLimitError creates a retryable error for rate limiting.
func NewRateLimitError(provider string) *types.Error {
	return &types.Error{
		Code:      types.LLM_RATE_LIMITED,
		Message:   "rate limit exceeded for provider: " + provider,
		Retryable: true,
	}
}

// NewUnavailableError creates a retryable error for a provider that is
// temporarily unreachable.
func NewUnavailableError(provider string, cause error) *types.Error {
	return &types.Error{
		Code:      types.LLM_UNAVAILABLE,
		Message:   "provider temporarily unavailable: " + provider,
		Retryable: true,
		Cause:     cause,
	}
}

// NewContextExceededError creates an error for when the context window is exceeded.
func NewContextExceededError(provider string, cause error) *types.Error {
	return &types.Error{
		Code:    types.LLM_CONTEXT_EXCEEDED,
		Message: "context window exceeded for provider: " + provider,
		Cause:   cause,
	}
}

// NewInvalidRequestError creates an error for invalid requests.
func NewInvalidRequestError(message string) *types.Error {
	return types.NewError(types.LLM_REQUEST_INVALID, message)
}

// NewCompletionError creates an error for completion failures.
func NewCompletionError(message string, cause error) *types.Error {
	return types.WrapError(types.LLM_COMPLETION_FAILED, message, cause)
}

// TranslateError translates provider client errors into coded errors based
// on the error message, since langchaingo surfaces provider failures as
// plain errors.
func TranslateError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var ne *types.Error
	if errors.As(err, &ne) {
		return err
	}

	lowerMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerMsg, "unauthorized") || strings.Contains(lowerMsg, "authentication") || strings.Contains(lowerMsg, "api key"):
		return NewAuthError(provider, err)
	case strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests"):
		return NewRateLimitError(provider)
	case strings.Contains(lowerMsg, "context length") || strings.Contains(lowerMsg, "maximum context") || strings.Contains(lowerMsg, "token limit"):
		return NewContextExceededError(provider, err)
	case strings.Contains(lowerMsg, "timeout") || strings.Contains(lowerMsg, "deadline"):
		return types.WrapRetryableError(types.LLM_UNAVAILABLE, "request timed out: "+provider, err)
	case strings.Contains(lowerMsg, "network") || strings.Contains(lowerMsg, "connection"):
		return NewUnavailableError(provider, err)
	default:
		return NewCompletionError("completion failed: "+provider, err)
	}
}
