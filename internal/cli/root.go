// Package cli implements the storewatch command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/app"
	"github.com/user/storewatch/pkg/config"
	"github.com/user/storewatch/pkg/logger"
)

type rootOptions struct {
	envFile string
}

// NewRootCommand builds the storewatch command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "storewatch",
		Short: "Monitor storefront availability",
		Long: `storewatch probes a list of storefront URLs, records whether each one is
LIVE, DEAD, UNPAID or UNKNOWN, and alerts on status changes.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", config.DefaultEnvFile, "path to the .env file")

	cmd.AddCommand(
		newServeCommand(opts),
		newLoadCommand(opts),
		newCheckCommand(opts),
		newRecheckDeadCommand(opts),
		newStatusCommand(opts),
		newChangesCommand(opts),
		newMigrateCommand(opts),
	)
	return cmd
}

// setup loads configuration and builds the logger.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// withApp runs fn with a connected App and a context cancelled on SIGINT/SIGTERM.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := o.setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
