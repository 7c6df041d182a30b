package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// ProviderOpenAI selects the OpenAI chat completions API
	ProviderOpenAI = "openai"
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second
	// DefaultMaxTipTokens caps the length of generated tips
	DefaultMaxTipTokens = 150

	tipsSystemPrompt = "You are a productivity coach. You answer with short plain-text bullet points and nothing else."
)

// OpenAIProvider implements TipGenerator using OpenAI's chat completions API.
// Any OpenAI-compatible endpoint can be used by changing the base URL.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	// Tip requests are single attempt; the SDK would otherwise retry on 429/5xx.
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		maxTokens: DefaultMaxTipTokens,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Model returns the model name the provider sends requests to
func (p *OpenAIProvider) Model() string {
	return p.model
}

// GenerateTips asks the model for three short bullet points on completing the task
func (p *OpenAIProvider) GenerateTips(ctx context.Context, title string) (string, error) {
	prompt := buildTipsPrompt(title)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(tipsSystemPrompt),
		openai.UserMessage(prompt),
	}
	req := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(p.model),
		Messages:  messages,
		MaxTokens: openai.Int(p.maxTokens),
		// Temperature omitted - some models only support their default value
	}

	requestID := ExtractRequestID(ctx)
	taskID := ExtractTaskID(ctx)

	if p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "generate_tips"),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
			zap.String("task_id", taskID),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", "generate_tips"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("task_id", taskID),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("failed to generate tips: %w", apiErr)
		}
		return "", fmt.Errorf("failed to generate tips: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesInResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "generate_tips"),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("task_id", taskID),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return content, nil
}

// buildTipsPrompt builds the user prompt for a task title
func buildTipsPrompt(title string) string {
	return fmt.Sprintf(`Give 3 very short, actionable bullet points (at most 10 words each) on how to efficiently complete this task: "%s".

Output only the bullet points, one per line.`, title)
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry) {
	registry.Register(ProviderOpenAI, func(s Settings, log *zap.Logger) (TipGenerator, error) {
		if s.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required: %w", ErrNotConfigured)
		}
		return NewOpenAIProviderWithLogger(s.APIKey, s.BaseURL, s.Model, log, s.DebugMode), nil
	})
}
