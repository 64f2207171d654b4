package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/joshp123/catgenie/internal/config"
	"github.com/joshp123/catgenie/internal/core"
	"github.com/joshp123/catgenie/internal/logging"
	"github.com/joshp123/catgenie/internal/plugins"
	"github.com/joshp123/catgenie/internal/rate"
	"github.com/joshp123/catgenie/internal/router"
	"github.com/joshp123/catgenie/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", envOrDefault("CATGENIE_CONFIG", config.DefaultPath), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stderr, cfg.Core.LogLevel, cfg.Core.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("catgenie exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	deps, closeSinks, err := connectSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	compiled := plugins.Compiled(cfg, deps)
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		return err
	}
	active := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(active); err != nil {
		return err
	}
	defer closePlugins(active, logger)

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.Core.DashboardDir).Msg("write dashboards failed")
	}

	shared := append(rate.MetricsCollectors(), prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "catgenie_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 }))
	registry, err := core.MetricsRegistry(active, shared...)
	if err != nil {
		return fmt.Errorf("metrics registry: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	router.RegisterPlugins(grpcServer.Health, active)
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, server.NewMux(active, registry))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2+len(active))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.Watch(ctx, grpcServer.Health, active, 15*time.Second)
	}()
	go func() {
		logger.Info().Str("addr", cfg.Core.HTTPAddr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil {
			errs <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", grpcServer.Addr()).Msg("grpc listening")
		if err := grpcServer.Serve(); err != nil {
			errs <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	for _, p := range active {
		runner, ok := p.(core.Runner)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(id string, runner core.Runner) {
			defer wg.Done()
			// A stopped plugin reports ERROR health; the servers stay up.
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("plugin", id).Msg("plugin stopped")
			}
			router.UpdateHealth(grpcServer.Health, active)
		}(p.ID(), runner)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errs:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	grpcServer.Stop()
	wg.Wait()
	return runErr
}

func closePlugins(active []core.Plugin, logger zerolog.Logger) {
	for _, p := range active {
		closer, ok := p.(core.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			logger.Warn().Err(err).Str("plugin", p.ID()).Msg("close plugin")
		}
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
