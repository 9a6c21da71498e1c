// Command orchestratord runs the durable bead orchestrator as a long-lived
// daemon: Event Log, Workflow Engine, Supervision tree, Agent Pool, and
// Messaging Fabric, wired together and exposed over a Prometheus metrics
// endpoint. Entrypoint shape grounded on the teacher's examples — the
// config-then-construct-then-signal-wait flow of
// r3e-network-service_layer's cmd/indexer, and the background metrics
// HTTP server of the teacher's own prometheus_monitoring example.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/beadwright/orchestrator/config"
	"github.com/beadwright/orchestrator/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "orchestratord:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to YAML config file (defaults built in if unset)")
		dbPath      = flag.String("db", "orchestrator.db", "SQLite event log path")
		redisAddr   = flag.String("redis-addr", "", "Redis address for the delivery dedup cache (in-memory if unset)")
		metricsAddr = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	a, err := buildApp(logger, cfg, *dbPath, *redisAddr, registry)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go a.health.Run(runCtx)

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", *metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	logger.Info("orchestratord started", zap.String("db", *dbPath))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	sig := shutdown.SIGTERM
	a.shutdownCo.Initiate(sig)

	overall := time.Duration(cfg.Shutdown.OverallDeadlineSecs) * time.Second
	if overall <= 0 {
		overall = 30 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), overall)
	defer cancelShutdown()

	stats, err := a.shutdownCo.Run(shutdownCtx, a.stopActors(cancelRun, metricsSrv))
	if err != nil {
		logger.Error("shutdown did not complete cleanly", zap.Error(err))
	}
	logger.Info("shutdown complete",
		zap.Int("checkpoints_saved", stats.CheckpointsSaved),
		zap.Int("checkpoints_failed", stats.CheckpointsFailed),
		zap.Int64("duration_ms", stats.TotalDurationMS),
	)

	a.Close(context.Background())
	return nil
}

// stopActors returns the callback shutdown.Coordinator.Run invokes during
// its StoppingActors phase: it tears down the background goroutines Run
// started (health monitor, metrics server) within the phase's own
// sub-deadline.
func (a *app) stopActors(cancelHealth context.CancelFunc, metricsSrv *http.Server) func(context.Context) error {
	return func(ctx context.Context) error {
		cancelHealth()
		return metricsSrv.Shutdown(ctx)
	}
}
