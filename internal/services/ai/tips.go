package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/zentask/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Text returned in place of tips when a request cannot produce any
const (
	FallbackNotConfigured = "Please configure your API Key to use AI features."
	FallbackNoTips        = "No tips available."
	FallbackFailed        = "Failed to load tips. Please try again later."
)

const tracerName = "github.com/benvon/zentask/internal/services/ai"

// Settings selects and configures the tip generator backend
type Settings struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	DebugMode bool
}

// NewTipGenerator creates the configured backend from the default registry.
// It returns ErrNotConfigured when no API key is set and ErrProviderNotFound
// for an unknown provider name.
func NewTipGenerator(s Settings, log *zap.Logger) (TipGenerator, error) {
	if s.APIKey == "" {
		return nil, ErrNotConfigured
	}

	name := s.Provider
	if name == "" {
		name = ProviderOpenAI
	}
	return NewDefaultRegistry().GetProvider(name, s, log)
}

// TipService turns a TipGenerator into a TipProvider: every outcome,
// including a missing generator, becomes displayable text.
type TipService struct {
	generator TipGenerator
	logger    *zap.Logger
	tracer    trace.Tracer
}

// TipServiceOption configures a TipService
type TipServiceOption func(*TipService)

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) TipServiceOption {
	return func(s *TipService) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewTipService creates a tip service. A nil generator means AI features are
// not configured.
func NewTipService(generator TipGenerator, log *zap.Logger, opts ...TipServiceOption) *TipService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &TipService{
		generator: generator,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether a generator backs the service
func (s *TipService) Configured() bool {
	return s.generator != nil
}

// RequestTips returns tips for the title, or a fallback message
func (s *TipService) RequestTips(ctx context.Context, title string) (tips string) {
	ctx, span := s.tracer.Start(ctx, "ai.request_tips")
	defer span.End()

	fields := []zap.Field{
		zap.String("task_id", ExtractTaskID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
	}

	if s.generator == nil {
		s.logger.Warn("ai_provider_not_configured", fields...)
		span.SetAttributes(attribute.String("ai.outcome", "not_configured"))
		return FallbackNotConfigured
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tip_generator_panic", append(fields, zap.Any("panic", r))...)
			span.SetStatus(codes.Error, "panic")
			tips = FallbackFailed
		}
	}()

	start := time.Now()
	text, err := s.generator.GenerateTips(ctx, title)
	fields = append(fields, zap.Int64("latency_ms", time.Since(start).Milliseconds()))

	if errors.Is(err, ErrNoChoicesInResponse) {
		err, text = nil, ""
	}
	if err != nil {
		reason := FailureReason(err)
		fields = append(fields,
			zap.String("reason", reason),
			zap.String("error", logger.SanitizeError(err)),
		)
		if reason == ReasonQuotaExceeded {
			s.logger.Error("tip_request_failed", fields...)
		} else {
			s.logger.Warn("tip_request_failed", fields...)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		span.SetAttributes(attribute.String("ai.outcome", reason))
		return FallbackFailed
	}

	if strings.TrimSpace(text) == "" {
		s.logger.Info("tip_request_empty", fields...)
		span.SetAttributes(attribute.String("ai.outcome", ReasonEmpty))
		return FallbackNoTips
	}

	s.logger.Info("tip_request_succeeded", append(fields, zap.Int("tips_length", len(text)))...)
	span.SetAttributes(
		attribute.String("ai.outcome", "ok"),
		attribute.Int("ai.tips_length", len(text)),
	)
	return text
}

// String describes the service for startup logs
func (s *TipService) String() string {
	if m, ok := s.generator.(interface{ Model() string }); ok {
		return fmt.Sprintf("tips(model=%s)", m.Model())
	}
	if s.generator == nil {
		return "tips(not configured)"
	}
	return "tips"
}
