// Package cli implements the storefront command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/config"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// LogLevel overrides LOG_LEVEL when set.
	LogLevel string
}

// NewRootCommand creates the root command for the storefront CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Hellbound Sauces storefront cart and checkout service",
		Long: `Runs the shopper-facing cart and hands checkout off to the
Shopify hosted checkout. Configuration comes from the environment.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel == "" || logger.ValidLevel(opts.LogLevel) {
				return nil
			}
			return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", opts.LogLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// loadConfig reads the environment and builds the service logger.
func loadConfig(opts *RootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, logger.New("storefront", cfg.LogLevel), nil
}
