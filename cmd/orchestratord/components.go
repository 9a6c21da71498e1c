package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/beadwright/orchestrator/breaker"
	"github.com/beadwright/orchestrator/channel"
	"github.com/beadwright/orchestrator/config"
	"github.com/beadwright/orchestrator/distribution"
	"github.com/beadwright/orchestrator/emit"
	"github.com/beadwright/orchestrator/eventlog"
	"github.com/beadwright/orchestrator/metrics"
	"github.com/beadwright/orchestrator/pool"
	"github.com/beadwright/orchestrator/replay"
	"github.com/beadwright/orchestrator/shutdown"
	"github.com/beadwright/orchestrator/supervisor"
	"github.com/beadwright/orchestrator/vobj"
	"github.com/beadwright/orchestrator/workflow"
)

// app bundles every long-lived component the daemon wires together. It
// exists purely for lifecycle management (Run/Close); business logic
// lives in each component's own package.
type app struct {
	logger *zap.Logger
	cfg    config.Config

	eventLog   eventlog.Log
	checkpoint replay.CheckpointStore
	objects    *vobj.Manager

	tracerProvider *sdktrace.TracerProvider
	emitter        emit.Emitter
	metrics        *metrics.Metrics

	engine     *workflow.Engine
	registry   *supervisor.Registry
	root       *supervisor.Supervisor
	pool       *pool.Pool
	health     *pool.HealthMonitor
	affinity   *distribution.AffinityStrategy
	channel      *channel.DurableChannel
	messageStore channel.MessageStore
	dedup        channel.DedupCache
	tracker      *channel.DeliveryTracker
	breaker    *breaker.CircuitBreaker[any]
	shutdownCo *shutdown.Coordinator
}

// buildApp constructs every component from cfg but starts none of their
// background goroutines — that's Run's job, so construction failures never
// leave a half-started daemon behind. registry backs every Prometheus
// collector buildApp wires up; main passes the same registry to the
// /metrics HTTP handler.
func buildApp(logger *zap.Logger, cfg config.Config, dbPath, redisAddr string, registry *prometheus.Registry) (*app, error) {
	a := &app{logger: logger, cfg: cfg}
	a.metrics = metrics.New(registry)

	eventLog, err := eventlog.NewSQLiteLog(dbPath)
	if err != nil {
		return nil, err
	}
	eventLog.WithMetrics(a.metrics, "sqlite")
	a.eventLog = eventLog

	a.checkpoint = replay.NewMemCheckpointStore()
	a.objects = vobj.NewManager(vobj.DefaultConfig())

	tp := sdktrace.NewTracerProvider()
	a.tracerProvider = tp
	a.emitter = newFanoutEmitter(
		emit.NewLogEmitter(os.Stdout, false),
		emit.NewOTelEmitter(tp.Tracer("orchestratord")),
	)

	engine, err := workflow.NewEngine(workflow.NewMemStore(),
		workflow.WithCheckpointEnabled(cfg.Engine.CheckpointEnabled),
		workflow.WithRollbackOnFailure(cfg.Engine.RollbackOnFailure),
		workflow.WithMaxConcurrent(maxInt(cfg.Engine.MaxConcurrent, 1)),
		workflow.WithEmitter(a.emitter),
	)
	if err != nil {
		return nil, err
	}
	a.engine = engine.WithCheckpointStore(a.checkpoint)

	a.registry = supervisor.NewRegistry()
	a.root = supervisor.New("root", supervisor.OneForOne{}, supervisor.Config{
		MaxRestarts: uint32(cfg.Supervisor.MaxRestarts),
		Window:      cfg.Supervisor.Window(),
	}, a.spawnChild, a.emitter)
	a.registry.Register(a.root)

	a.pool = pool.New(cfg.Pool.MaxAgents).WithMetrics(a.metrics)
	a.health = pool.NewHealthMonitor(a.pool, cfg.Pool.Health.HeartbeatThreshold(), cfg.Pool.Health.CheckInterval(), a.emitter)
	a.affinity = distribution.NewAffinityStrategy()

	a.dedup = buildDedupCache(redisAddr)
	a.tracker = channel.NewDeliveryTracker(channel.DeliveryTrackerConfig{
		MaxAttempts:         cfg.DeliveryTracker.MaxAttempts,
		EnableDeduplication: cfg.DeliveryTracker.EnableDeduplication,
		DedupTTL:            cfg.DeliveryTracker.DedupTTL(),
	}, a.dedup)

	messageStore, err := buildMessageStore(cfg, dbPath)
	if err != nil {
		return nil, err
	}
	a.messageStore = messageStore
	a.channel, err = channel.NewWithStore(channel.Config{
		ID:            "default",
		MaxQueueDepth: cfg.Channel.MaxQueueDepth,
		DefaultMode:   cfg.Channel.ParseDeliveryMode(),
		MessageTTL:    cfg.Channel.MessageTTL(),
	}, a.tracker, messageStore)
	if err != nil {
		return nil, err
	}

	a.breaker = breaker.New[any](breaker.Config{
		Name:             "agent-dispatch",
		FailureThreshold: uint32(cfg.CircuitBreaker.FailureThreshold),
		SuccessThreshold: uint32(cfg.CircuitBreaker.SuccessThreshold),
		OpenTimeout:      cfg.CircuitBreaker.Timeout(),
		WindowSize:       cfg.CircuitBreaker.WindowSize(),
	}, a.emitter, a.metrics)

	a.shutdownCo = shutdown.New(a.emitter)

	return a, nil
}

// spawnChild is the supervision tree's root Spawner. The orchestrator
// daemon has no statically-known children to restart beyond the
// background tasks Run itself starts, so failures here are logged, not
// re-dispatched — a real deployment would register per-component spawners
// (e.g. "health_monitor", "auto_checkpoint:<workflow_id>") via
// RegisterChild as those subsystems come online.
func (a *app) spawnChild(ctx context.Context, childName string) error {
	a.logger.Info("respawning supervised child", zap.String("child", childName))
	return nil
}

// buildMessageStore picks the Durable Channel's persistence backend per
// cfg.Channel.PersistMessages: a SQLite-backed channel_message table
// alongside the event log's own database file when persistence is
// enabled, or an in-memory store (messages don't survive a restart) when
// it's off.
func buildMessageStore(cfg config.Config, dbPath string) (channel.MessageStore, error) {
	if !cfg.Channel.PersistMessages {
		return channel.NewMemMessageStore(), nil
	}
	return channel.NewSQLiteMessageStore(dbPath + ".channel")
}

func buildDedupCache(redisAddr string) channel.DedupCache {
	if redisAddr == "" {
		return channel.NewMemDedupCache()
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return channel.NewRedisDedupCache(client, "orchestrator:dedup:")
}

func maxInt(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}

// Close releases every component holding an external resource. Safe to
// call once, at the end of a clean or forced shutdown.
func (a *app) Close(ctx context.Context) {
	if err := a.eventLog.Close(); err != nil {
		a.logger.Warn("closing event log", zap.Error(err))
	}
	if err := a.messageStore.Close(); err != nil {
		a.logger.Warn("closing message store", zap.Error(err))
	}
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.emitter.Flush(flushCtx); err != nil {
		a.logger.Warn("flushing emitter", zap.Error(err))
	}
	if err := a.tracerProvider.Shutdown(flushCtx); err != nil {
		a.logger.Warn("shutting down tracer provider", zap.Error(err))
	}
}
