package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/webhook"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the extraction API over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	flags.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	return cmd
}

// serve runs the API until ctx is cancelled, then drains in-flight
// requests and harvest jobs.
func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("harvest starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"workers", cfg.Download.Workers,
		"output", cfg.Download.OutputDir,
	)

	h, err := harvest.New(engine.NewHTTPEngine(cfg.Fetch), cfg)
	if err != nil {
		return fmt.Errorf("initialise harvester: %w", err)
	}

	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()
	jobs := handler.NewJobStore(cfg.Server.MaxJobs)

	router := api.NewRouter(cfg, api.Deps{
		Harvester: h,
		Cache:     cc,
		Jobs:      jobs,
		Webhooks:  webhook.NewSender(),
		StartTime: time.Now(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Harvest jobs get the remainder of the window, then are cancelled.
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		slog.Warn("harvest jobs cancelled", "error", err)
	}
	slog.Info("harvest stopped")
	return nil
}
