package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/storewatch/internal/app"
	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/pkg/utils"
)

func newLoadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Add store URLs from a file, one per line (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := readURLFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Stores.Load(ctx, urls)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d new store(s) of %d submitted\n", n, len(urls))
				return nil
			})
		},
	}
}

func readURLFile(stdin io.Reader, path string) ([]string, error) {
	if path == "-" {
		return utils.ReadURLs(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return utils.ReadURLs(f)
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var (
		statusFilter string
		search       string
		list         bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store counts and, optionally, the stores themselves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := entity.ParseStatusList(statusFilter)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				counts, err := a.Stores.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				renderCounts(out, counts)

				if !list && len(statuses) == 0 && search == "" {
					return nil
				}
				stores, err := a.Stores.List(ctx, statuses, search)
				if err != nil {
					return err
				}
				renderStores(out, stores, a.Config.Location())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "comma-separated statuses to list, e.g. DEAD,UNPAID")
	cmd.Flags().StringVar(&search, "search", "", "only list URLs containing this text")
	cmd.Flags().BoolVar(&list, "list", false, "list stores below the counts")
	return cmd
}

func newChangesCommand(opts *rootOptions) *cobra.Command {
	var days, minutes int

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Show recent status transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 || minutes < 0 {
				return fmt.Errorf("--days and --minutes must not be negative")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				changes, err := a.Stores.Changes(ctx, days, minutes)
				if err != nil {
					return err
				}
				if len(changes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No status changes in the selected window")
					return nil
				}
				renderChanges(cmd.OutOrStdout(), changes, a.Config.Location())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "look back this many days (default 7)")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "look back this many minutes; takes precedence over --days")
	cmd.MarkFlagsMutuallyExclusive("days", "minutes")
	return cmd
}
