package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bankcopilot/api"
)

// serve: run the HTTP API until SIGINT or SIGTERM.
func serveCmd() *cobra.Command {
	var (
		addr string
		seed string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					app.Logger.Warn("closing store failed", "error", err.Error())
				}
			}()

			if seed != "" {
				n, err := seedDir(ctx, app.Chat, seed)
				if err != nil {
					return err
				}
				app.Logger.Info("seeded banking documents", "count", n, "dir", seed)
			}
			return serve(ctx, app)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&seed, "seed", "", "load banking documents from this directory first")
	return cmd
}

func serve(ctx context.Context, app *App) error {
	logger := app.Logger.WithComponent("api")
	handler := api.NewRouter(app.Chat, func(o *api.Options) {
		o.Logger = logger
		o.Metrics = app.Metrics
		o.Gatherer = app.Registry
		o.AllowedOrigins = app.Config.Server.AllowedOrigins
	})

	srv := &http.Server{
		Addr:         app.Config.Server.Addr,
		Handler:      handler,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "error", err.Error())
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
		return err
	}
	return nil
}
