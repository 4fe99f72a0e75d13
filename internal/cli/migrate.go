package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/storewatch/internal/adapter/postgres"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			switch direction {
			case "down":
				if steps < 1 {
					return fmt.Errorf("--steps must be at least 1")
				}
				err = postgres.MigrateDown(cfg.DatabaseURL, steps, log)
			default:
				err = postgres.MigrateUp(cfg.DatabaseURL, log)
			}
			if err != nil {
				return err
			}

			version, dirty, err := postgres.MigrationVersion(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back with down")
	return cmd
}
