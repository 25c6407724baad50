package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chiefduck/hellbound-sauces-sub000/migrations"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/database"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	DryRun bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the checkout audit schema migrations",
		Long: `Apply every pending migration to the checkout audit database.

With --dry-run the pending migrations are listed and nothing is applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			pool, err := database.NewPostgresPool(cmd.Context(), cfg.Postgres(), log)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pool.Close()

			return runMigrate(cmd.Context(), pool, opts, cmd.OutOrStdout(), log)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list pending migrations without applying them")

	return cmd
}

func runMigrate(ctx context.Context, db database.DBTX, opts *MigrateOptions, out io.Writer, log *slog.Logger) error {
	pending, err := database.PendingMigrations(ctx, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("list pending migrations: %w", err)
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "schema is up to date")
		return nil
	}
	for _, name := range pending {
		fmt.Fprintln(out, name)
	}
	if opts.DryRun {
		return nil
	}

	if err := database.RunMigrations(ctx, db, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Fprintf(out, "applied %d migration(s)\n", len(pending))
	return nil
}
