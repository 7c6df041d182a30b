package ai

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	// ProviderGemini selects Google Gemini through its OpenAI-compatible endpoint
	ProviderGemini = "gemini"
	// DefaultGeminiModel is the model used when AI_MODEL is unset
	DefaultGeminiModel = "gemini-2.5-flash"
	// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible API root
	GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// RegisterGemini registers the Gemini provider. Requests go through the
// OpenAI client against Gemini's compatibility endpoint.
func RegisterGemini(registry *ProviderRegistry) {
	registry.Register(ProviderGemini, func(s Settings, log *zap.Logger) (TipGenerator, error) {
		if s.APIKey == "" {
			return nil, fmt.Errorf("gemini api key is required: %w", ErrNotConfigured)
		}
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = GeminiOpenAIBaseURL
		}
		model := s.Model
		if model == "" {
			model = DefaultGeminiModel
		}
		return NewOpenAIProviderWithLogger(s.APIKey, baseURL, model, log, s.DebugMode), nil
	})
}
