package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/user/storewatch/internal/app"
)

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check every known store once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				sum, err := a.Checks.CheckAll(ctx)
				if sum != nil {
					renderSummary(cmd.OutOrStdout(), sum)
				}
				return err
			})
		},
	}
}

func newRecheckDeadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recheck-dead",
		Short: "Check only the stores currently DEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				sum, err := a.Checks.RecheckDead(ctx)
				if sum != nil {
					renderSummary(cmd.OutOrStdout(), sum)
				}
				return err
			})
		},
	}
}
