package ai

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// TipGenerator is the interface for AI backends that can write completion tips
type TipGenerator interface {
	// GenerateTips returns short, actionable tips for completing the task with the given title
	GenerateTips(ctx context.Context, title string) (string, error)
}

// TipProvider returns displayable tips for a task title. Implementations never
// fail: any problem is reported as fallback text instead.
type TipProvider interface {
	RequestTips(ctx context.Context, title string) string
}

// ProviderFactory creates a tip generator from settings
type ProviderFactory func(s Settings, log *zap.Logger) (TipGenerator, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// NewDefaultRegistry returns a registry with every built-in provider
func NewDefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	RegisterOpenAI(r)
	RegisterGemini(r)
	return r
}

// Register registers a provider factory. Names are case-insensitive.
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[strings.ToLower(name)] = factory
}

// Names lists the registered providers
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, s Settings, log *zap.Logger) (TipGenerator, error) {
	factory, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(s, log)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
