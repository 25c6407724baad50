package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			log.Info("starting storefront service",
				slog.String("environment", cfg.Environment),
				slog.Int("http_port", cfg.HTTPPort),
				slog.String("signal_backend", cfg.SignalBackend),
				slog.Bool("audit", cfg.AuditEnabled),
				slog.Bool("events", cfg.EventsEnabled),
			)

			application, err := app.NewApp(cfg, log)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}

			// Blocks until the command context is canceled.
			if err := application.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run application: %w", err)
			}

			log.Info("storefront service stopped")
			return nil
		},
	}
}
