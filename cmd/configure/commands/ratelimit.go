package commands

import (
	"fmt"

	"github.com/benvon/zentask/internal/config"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

// NewRatelimitCmd creates the ratelimit command. It checks the tips rate
// limit in the limiter's formatted notation (e.g. 5-S, 10-M, 1000-H).
func NewRatelimitCmd() *cobra.Command {
	var rate string

	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Check the tips rate limit",
		Long:  "Parse TIPS_RATE_LIMIT (or --rate) and print the resulting limit and period.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rate == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				rate = cfg.TipsRateLimit
			}

			parsed, err := limiter.NewRateFromFormatted(rate)
			if err != nil {
				return fmt.Errorf("invalid rate %q (use e.g. 5-S, 10-M, 1000-H): %w", rate, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rate: %s\n", rate)
			fmt.Fprintf(out, "  Limit: %d requests\n", parsed.Limit)
			fmt.Fprintf(out, "  Period: %s\n", parsed.Period)
			return nil
		},
	}

	cmd.Flags().StringVar(&rate, "rate", "", "Rate to check instead of the configured one")

	return cmd
}
