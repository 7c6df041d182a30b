package commands

import (
	"fmt"
	"strings"

	"github.com/benvon/zentask/internal/config"
	"github.com/benvon/zentask/internal/services/ai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewTipsCmd creates the tips command. It prints whatever the board would
// show for the title, fallback messages included.
func NewTipsCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "tips",
		Short: "Request completion tips for a task title",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("--title is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// A generator error leaves it nil, which yields the not-configured text
			generator, _ := ai.NewTipGenerator(ai.Settings{
				Provider: cfg.AIProvider,
				APIKey:   cfg.OpenAIKey,
				BaseURL:  cfg.AIBaseURL,
				Model:    cfg.AIModel,
			}, zap.NewNop())

			svc := ai.NewTipService(generator, zap.NewNop())
			fmt.Fprintln(cmd.OutOrStdout(), svc.RequestTips(cmd.Context(), title))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Task title")

	return cmd
}
