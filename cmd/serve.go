package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/alivesay/squire/internal/handlers"
	"github.com/alivesay/squire/internal/ledger"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the published paging lists",
		Long: `Serves the lists directory the daemon publishes into, so the links mailed to
branch staff (<lists_url>/<branch>/index.html) open the latest title list.

Also exposes the run history as JSON at /api/runs and a /healthcheck.`,
		Example: `  # Serve on the default port 8000
  squire serve

  # Serve on a custom address
  squire serve --addr 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := ledger.Open(a.cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			handler := handlers.New(a.cfg.Publish.ListsDir, runs)
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Paging lists available", "addr", addr, "dir", a.cfg.Publish.ListsDir)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "Address to listen on")

	return cmd
}
