package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pcf-tools/org-mgmt-server/internal/api"
	"github.com/pcf-tools/org-mgmt-server/internal/bitbucket"
	"github.com/pcf-tools/org-mgmt-server/internal/cache"
	"github.com/pcf-tools/org-mgmt-server/internal/config"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
	"github.com/pcf-tools/org-mgmt-server/internal/reader"
	"github.com/pcf-tools/org-mgmt-server/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the org management API server",
	Long: `Start the org management API server.

A background refresher periodically harvests org configuration from
Bitbucket into an in-memory cache; the REST API serves read-only views
of the latest published snapshot. Credentials and endpoints are taken
from the environment (BB_CLIENT_ID, BB_CLIENT_SECRET, BB_OAUTH_URL and
friends).`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides REST_ADDRESS)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Initialize(cfg.LogLevel)
	if address := viper.GetString("address"); address != "" {
		cfg.Address = address
	}

	logger.Infof("Starting org management API server on %s (contexts: %v)", cfg.Address, cfg.Contexts)

	// Bitbucket access layer
	httpClient := bitbucket.NewHTTPClient(cfg)
	tokens := bitbucket.NewTokenProvider(cfg, httpClient)
	client := bitbucket.NewClient(tokens, httpClient)
	paginator := bitbucket.NewPaginator(client, cfg.RESTURL)
	files := bitbucket.NewFileLoader(client, cfg.ProjectsURL)

	// Cache, metrics and refresh pipeline
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)
	store := cache.NewStore()
	rdr := reader.New(cfg.Contexts, paginator, files, store, reader.WithMetrics(metrics))

	refresher := reader.NewRefresher(rdr, cfg.RefreshPeriod)
	refresher.Start(ctx)
	defer refresher.Stop()

	// Manual refresh runs independently of the scheduled path; the
	// store applies whichever replace lands last.
	manualRefresh := func() {
		if err := rdr.Refresh(context.Background()); err != nil {
			logger.Errorf("Manual refresh failed: %v", err)
		}
	}

	handler := api.NewServer(store, manualRefresh,
		api.WithMiddlewares(api.LoggingMiddleware),
		api.WithMetricsGatherer(registry),
	)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("REST API listening on %s", cfg.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Infof("Received signal %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, defaultGracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
