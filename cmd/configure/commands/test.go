package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/zentask/internal/config"
	"github.com/benvon/zentask/internal/middleware"
	"github.com/benvon/zentask/internal/queue"
	"github.com/benvon/zentask/internal/services/ai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	var title string
	var skipAI bool

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test configured backends",
		Long:  "Check connectivity to Redis and RabbitMQ when configured, then request tips for a sample task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*ai.DefaultTimeout)
			defer cancel()

			if cfg.RedisURL != "" {
				fmt.Fprintf(out, "Testing Redis: %s\n", redactURL(cfg.RedisURL))
				client, err := middleware.NewRedisClient(cfg.RedisURL)
				if err != nil {
					return fmt.Errorf("redis check failed: %w", err)
				}
				_ = client.Close() // Ping already succeeded
				fmt.Fprintln(out, "✓ Redis is reachable")
			}

			if cfg.TipsQueue == config.QueueRabbitMQ {
				fmt.Fprintf(out, "Testing RabbitMQ: %s\n", redactURL(cfg.RabbitMQURL))
				q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
				if err != nil {
					return fmt.Errorf("rabbitmq check failed: %w", err)
				}
				healthErr := q.HealthCheck(ctx)
				_ = q.Close() // Connection only used for the check
				if healthErr != nil {
					return fmt.Errorf("rabbitmq health check failed: %w", healthErr)
				}
				fmt.Fprintln(out, "✓ RabbitMQ queue is declared and reachable")
			}

			if skipAI {
				return nil
			}

			generator, err := ai.NewTipGenerator(ai.Settings{
				Provider: cfg.AIProvider,
				APIKey:   cfg.OpenAIKey,
				BaseURL:  cfg.AIBaseURL,
				Model:    cfg.AIModel,
			}, zap.NewNop())
			if err != nil {
				return fmt.Errorf("ai provider not usable: %w", err)
			}

			fmt.Fprintf(out, "Requesting tips for %q\n", title)
			start := time.Now()
			tips, err := generator.GenerateTips(ctx, title)
			if err != nil {
				return fmt.Errorf("tip request failed (%s): %w", ai.FailureReason(err), err)
			}
			fmt.Fprintf(out, "✓ Tips received in %s\n\n%s\n", time.Since(start).Round(time.Millisecond), tips)

			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "Plan the week ahead", "Task title to request tips for")
	cmd.Flags().BoolVar(&skipAI, "skip-ai", false, "Only check Redis and RabbitMQ")

	return cmd
}
