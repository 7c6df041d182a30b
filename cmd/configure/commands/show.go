package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/benvon/zentask/internal/config"
	"github.com/benvon/zentask/internal/middleware"
	"github.com/benvon/zentask/internal/services/ai"
	"github.com/spf13/cobra"
)

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Print the configuration the server would start with. Secrets are redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Server:")
			fmt.Fprintf(out, "  Port: %s\n", cfg.ServerPort)
			fmt.Fprintf(out, "  Debug: %t\n", cfg.ServerDebugMode)
			fmt.Fprintf(out, "  Log format: %s\n", cfg.LogFormat)
			fmt.Fprintf(out, "  HSTS: %t\n", cfg.EnableHSTS)
			fmt.Fprintf(out, "  CORS origins: %s\n", strings.Join(middleware.ParseOrigins(cfg.FrontendURL), ", "))
			fmt.Fprintf(out, "  Trusted proxies: %s\n", valueOrDefault(cfg.TrustedProxies, "none"))

			fmt.Fprintln(out, "AI:")
			fmt.Fprintf(out, "  Provider: %s\n", cfg.AIProvider)
			defaultBaseURL, defaultModel := ai.DefaultOpenAIBaseURL, ai.DefaultOpenAIModel
			if strings.EqualFold(cfg.AIProvider, ai.ProviderGemini) {
				defaultBaseURL, defaultModel = ai.GeminiOpenAIBaseURL, ai.DefaultGeminiModel
			}
			fmt.Fprintf(out, "  Model: %s\n", valueOrDefault(cfg.AIModel, defaultModel))
			fmt.Fprintf(out, "  Base URL: %s\n", valueOrDefault(cfg.AIBaseURL, defaultBaseURL))
			if cfg.AIConfigured() {
				fmt.Fprintf(out, "  API key: %s\n", ai.SanitizeAPIKey(cfg.OpenAIKey))
			} else {
				fmt.Fprintln(out, "  API key: (not set, tips disabled)")
			}

			fmt.Fprintln(out, "Tips:")
			fmt.Fprintf(out, "  Queue: %s\n", cfg.TipsQueue)
			if cfg.TipsQueue == config.QueueRabbitMQ {
				fmt.Fprintf(out, "  RabbitMQ: %s\n", redactURL(cfg.RabbitMQURL))
			}
			fmt.Fprintf(out, "  Worker prefetch: %d\n", cfg.TipsWorkerPrefetch)
			fmt.Fprintf(out, "  Rate limit: %s\n", cfg.TipsRateLimit)
			fmt.Fprintf(out, "  Rate limit store: %s\n", rateStoreName(cfg.RedisURL))

			fmt.Fprintln(out, "Tracing:")
			fmt.Fprintf(out, "  Enabled: %t\n", cfg.OTELEnabled)
			if cfg.OTELEnabled {
				fmt.Fprintf(out, "  Endpoint: %s\n", cfg.OTELEndpoint)
			}

			return nil
		},
	}

	return cmd
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def + " (default)"
	}
	return v
}

func rateStoreName(redisURL string) string {
	if redisURL == "" {
		return "memory"
	}
	return "redis " + redactURL(redisURL)
}

// redactURL hides credentials in connection URLs
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
