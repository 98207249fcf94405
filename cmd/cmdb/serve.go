package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inventorycmdb/server/internal/api"
	"github.com/inventorycmdb/server/internal/middleware"
	"github.com/inventorycmdb/server/internal/sync"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background refresh scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(cmdServe)
}

func runServe(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	logger.Info("starting inventory CMDB",
		"inventories", cfg.InventoryNames(),
		"data_path", cfg.DataPath,
		"refresh_interval", cfg.RefreshInterval,
	)
	if len(cfg.Inventories) == 0 {
		logger.Warn("no inventories configured, the CMDB will not become ready")
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open CMDB", "error", err)
		return err
	}

	scheduler := sync.NewScheduler(sync.Config{
		Store:         store,
		Interval:      cfg.RefreshInterval,
		RetryInterval: cfg.RetryInterval,
		Debounce:      10 * time.Second,
		Logger:        logger,
	})

	// Initialize observability
	shutdownTracer, err := middleware.InitTracer(ctx, cfg.OTLPEndpoint, api.Version)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	}

	router, err := api.NewRouter(api.Config{
		Store:           store,
		Scheduler:       scheduler,
		RenderCacheSize: cfg.RenderCacheSize,
		WebhookSecret:   cfg.WebhookSecret,
		WebhookBranch:   cfg.WebhookBranch,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      middleware.Chain(router, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The scheduler runs for the life of the process and is the only writer
	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	schedDone := make(chan struct{})
	go func() {
		scheduler.Start(schedCtx)
		close(schedDone)
	}()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Interrupts a build in flight; the last complete snapshot stays on disk
	schedCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("refresh scheduler did not stop in time")
	}

	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}
