package ai

import (
	"context"

	"github.com/benvon/zentask/internal/logger"
	"github.com/benvon/zentask/internal/request"
	"github.com/google/uuid"
)

// Context key types for logging (to avoid collisions with string keys)
type contextKey string

const taskIDContextKey contextKey = "task_id"

const (
	// MaxPreviewLength is the maximum length for preview strings in logs
	MaxPreviewLength = 200
	// RedactedValue is the value used to replace sensitive data
	RedactedValue = "[REDACTED]"
)

// WithTaskID returns a context carrying the id of the task a request is for
func WithTaskID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, taskIDContextKey, id)
}

// ExtractTaskID extracts a task ID from context if available
func ExtractTaskID(ctx context.Context) string {
	if id, ok := ctx.Value(taskIDContextKey).(uuid.UUID); ok {
		return id.String()
	}
	return ""
}

// ExtractRequestID extracts the originating HTTP request ID from context if available
func ExtractRequestID(ctx context.Context) string {
	return request.IDFromContext(ctx)
}

// SanitizeAPIKey sanitizes an API key for logging
func SanitizeAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return RedactedValue
	}
	// Show first 4 and last 4 characters, redact the middle
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// SanitizePrompt creates a safe preview of a prompt for logging.
// fullLog raises the length cap but still strips control characters.
func SanitizePrompt(prompt string, fullLog bool) string {
	if fullLog {
		return logger.SanitizeDebugContent(prompt)
	}
	return logger.SanitizeString(prompt, MaxPreviewLength)
}

// SanitizeResponse creates a safe preview of a response for logging
func SanitizeResponse(response string, fullLog bool) string {
	return SanitizePrompt(response, fullLog)
}
