package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

var (
	// ErrNotConfigured indicates no API credential was supplied
	ErrNotConfigured = errors.New("ai provider not configured")
	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = errors.New("no choices in response")
)

// Failure reasons reported in logs and spans
const (
	ReasonRateLimited   = "rate_limited"
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
	ReasonAPIError      = "api_error"
	ReasonEmpty         = "empty_response"
	ReasonTransport     = "transport_error"
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	IsPermanent bool // true for quota errors, false for rate limits
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// ExtractAPIError extracts API error details from an error returned by the SDK
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		return &APIError{
			Message:     sdkErr.Message,
			Type:        sdkErr.Type,
			Code:        sdkErr.Code,
			StatusCode:  sdkErr.StatusCode,
			IsPermanent: sdkErr.Code == "insufficient_quota" || sdkErr.Type == "insufficient_quota",
		}
	}

	return nil
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	apiErr := ExtractAPIError(err)
	if apiErr != nil {
		return apiErr.StatusCode == http.StatusTooManyRequests && !apiErr.IsPermanent
	}
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	apiErr := ExtractAPIError(err)
	if apiErr != nil {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}
	if err == nil {
		return false
	}

	return strings.Contains(strings.ToLower(err.Error()), "insufficient_quota")
}

// FailureReason classifies a provider error for logging
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case IsQuotaError(err):
		return ReasonQuotaExceeded
	case IsRateLimitError(err):
		return ReasonRateLimited
	case ExtractAPIError(err) != nil:
		return ReasonAPIError
	case errors.Is(err, ErrNoChoicesInResponse):
		return ReasonEmpty
	default:
		return ReasonTransport
	}
}
