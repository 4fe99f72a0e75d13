package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/adapter/postgres"
	"github.com/user/storewatch/internal/app"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and the background scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !skipMigrate {
				cfg, log, err := opts.setup()
				if err != nil {
					return err
				}
				if err := postgres.MigrateUp(cfg.DatabaseURL, log); err != nil {
					return err
				}
			}
			return opts.withApp(cmd, serve)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on start")
	return cmd
}

func serve(ctx context.Context, a *app.App) error {
	if a.Config.SchedulerAutostart {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	server := &http.Server{
		Addr:              ":" + a.Config.ServerPort,
		Handler:           a.HTTPHandler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Manual check passes answer only when the pass ends, so there is no write timeout.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("Starting server", zap.String("port", a.Config.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on port %s: %w", a.Config.ServerPort, err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
