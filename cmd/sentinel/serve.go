package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/technosupport/sentinel/internal/api"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

func newServeCmd(load configLoader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion API, analysis workers and alert dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	b, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	b.Start(runCtx)
	b.StartSpool(runCtx)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.RouterConfig{
			Clips: api.NewClipHandler(b.gateway, b.tracker, log),
			Queue: b.sched,
			Log:   log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("sentinel backend listening", "addr", srv.Addr, "data_root", cfg.DataRoot)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		serveErr = fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	cancelRun()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Analysis.Timeout()+cfg.Alert.Timeout()+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	if err := b.Stop(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("analysis queue not drained: %w", err))
	}
	log.Info("shutdown complete")
	return serveErr
}
