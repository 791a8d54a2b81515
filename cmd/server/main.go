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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"gatekeeper/internal/catalog"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/httpserver"
	"gatekeeper/internal/platform/logger"
	platformredis "gatekeeper/internal/platform/redis"
	rlconfig "gatekeeper/internal/ratelimit/config"
	rlhandler "gatekeeper/internal/ratelimit/handler"
	"gatekeeper/internal/ratelimit/metrics"
	rlmiddleware "gatekeeper/internal/ratelimit/middleware"
	"gatekeeper/internal/ratelimit/service/requestlimit"
	"gatekeeper/internal/ratelimit/store/remote"
	"gatekeeper/internal/ratelimit/store/window"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		slog.Error("gatekeeper exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)
	for _, warning := range cfg.Warnings {
		log.Warn("configuration value ignored", "detail", warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	windows := window.New(
		window.WithSweepInterval(cfg.RateLimit.SweepInterval),
		window.WithLogger(log),
		window.WithMetrics(m),
	)
	windows.Start()
	defer windows.Stop()

	limiter, err := requestlimit.New(windows,
		rlconfig.NewHolder(rlconfig.Config{
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.MaxRequests,
			Message:     cfg.RateLimit.Message,
		}),
		requestlimit.WithLogger(log),
		requestlimit.WithMetrics(m),
		requestlimit.WithRemoteTimeout(cfg.RateLimit.RemoteTimeout),
	)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	var adminOpts []rlhandler.Option
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	switch {
	case err != nil:
		log.Warn("redis unavailable, rate limiting on local store", "error", err)
	case redisClient != nil:
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("failed to close redis client", "error", err)
			}
		}()
		remoteClient := remote.NewRedisClient(redisClient.Client)
		if err := limiter.RegisterRemoteStore(remoteClient); err != nil {
			return fmt.Errorf("register remote window store: %w", err)
		}
		adminOpts = append(adminOpts, rlhandler.WithRemote(remoteClient, redisClient))
	default:
		log.Info("no REDIS_URL configured, rate limiting on local store")
	}

	router := newRouter(routerDeps{
		logger:     log,
		limiter:    limiter,
		rateLimit:  rlmiddleware.New(limiter, log, rlmiddleware.WithDisabled(cfg.RateLimit.Disabled)),
		admin:      rlhandler.New(limiter, log, adminOpts...),
		adminToken: cfg.Server.AdminToken,
		catalog:    catalog.NewHandler(catalog.NewSeededStore(), log),
		gatherer:   prometheus.DefaultGatherer,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gatekeeper", "addr", cfg.Server.Addr, "backend", limiter.Backend())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
