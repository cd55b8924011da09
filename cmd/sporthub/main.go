// Command sporthub runs the real-time sports-data fan-out hub: one
// upstream feed session, five group kinds, a per-game live-tracker
// bridge, and the HTTP/SSE edge in front of them. Bootstrap follows
// go-server-3/cmd/odin-ws/main.go's signal.NotifyContext shutdown
// pattern, with godotenv + automaxprocs added from go-server-2's main.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	_ "go.uber.org/automaxprocs" // sets GOMAXPROCS from the container CPU quota on import

	"sporthub/internal/config"
	"sporthub/internal/groups"
	"sporthub/internal/hierarchy"
	"sporthub/internal/httpapi"
	"sporthub/internal/livetracker"
	"sporthub/internal/logging"
	"sporthub/internal/metrics"
	"sporthub/internal/registry"
	"sporthub/internal/results"
	"sporthub/internal/store"
	"sporthub/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Flags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewPromRegistry()
	st := store.NewFileStore(cfg.Metrics.StorePath)
	agg := metrics.NewAggregator(prom, st, 20*time.Second)

	session := upstream.New(cfg.Upstream, logger)
	reg := registry.New()

	hier := hierarchy.New(cfg.Group.HierarchyTTL, func(ctx context.Context) (hierarchy.Document, error) {
		if err := session.Ensure(ctx); err != nil {
			return nil, err
		}
		return session.Request(ctx, "get_hierarchy", nil, 20*time.Second)
	})

	manager := groups.NewManager(session, reg, hier, agg, cfg.Group, logger)
	tracker := livetracker.New(cfg.LiveTracker, agg, logger)
	resultsClient := results.New(session)

	edge := httpapi.New(cfg.Server, manager, tracker, agg, resultsClient, logger)

	httpServer := &http.Server{
		Addr:         edge.ListenAddr(),
		Handler:      edge.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go agg.RunFlushLoop(ctx, cfg.Metrics.FlushEvery, func(err error) {
		logger.Warn("metrics flush failed", zap.Error(err))
	})

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Endpoint, prom.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			logger.Info("metrics server starting", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http/sse edge starting", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}
	tracker.Shutdown()
	session.Close()
	if err := agg.Flush(); err != nil {
		logger.Warn("final metrics flush failed", zap.Error(err))
	}
	logger.Info("sporthub stopped")
}
