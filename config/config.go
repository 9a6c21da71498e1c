// Package config loads and hot-reloads the orchestrator's YAML
// configuration (spec.md §6), covering every component's externally
// tunable parameters.
package config

import (
	"time"

	"github.com/beadwright/orchestrator/channel"
)

// EventLogConfig configures the Event Log's storage location.
type EventLogConfig struct {
	WALDir    string `yaml:"wal_dir"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
}

// EngineConfig configures the Workflow Engine.
type EngineConfig struct {
	CheckpointEnabled bool `yaml:"checkpoint_enabled"`
	RollbackOnFailure bool `yaml:"rollback_on_failure"`
	MaxConcurrent     int  `yaml:"max_concurrent"`
}

// AutoCheckpointConfig configures the periodic checkpoint timer.
type AutoCheckpointConfig struct {
	IntervalSecs int `yaml:"interval_secs"`
}

// Interval returns the configured interval as a time.Duration.
func (c AutoCheckpointConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// SupervisorConfig configures the per-supervisor restart budget.
type SupervisorConfig struct {
	MaxRestarts int `yaml:"max_restarts"`
	WindowSecs  int `yaml:"window_secs"`
}

// Window returns the configured sliding failure window as a time.Duration.
func (c SupervisorConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// PoolHealthConfig configures the Agent Pool's health monitor.
type PoolHealthConfig struct {
	CheckIntervalSecs      int `yaml:"check_interval_secs"`
	HeartbeatThresholdSecs int `yaml:"heartbeat_threshold_secs"`
}

// CheckInterval returns the health monitor's tick interval.
func (c PoolHealthConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSecs) * time.Second
}

// HeartbeatThreshold returns the staleness threshold before an agent is
// marked Unhealthy.
func (c PoolHealthConfig) HeartbeatThreshold() time.Duration {
	return time.Duration(c.HeartbeatThresholdSecs) * time.Second
}

// PoolConfig configures the Agent Pool.
type PoolConfig struct {
	MaxAgents int              `yaml:"max_agents"`
	Health    PoolHealthConfig `yaml:"health"`
}

// ChannelConfig configures Durable Channel defaults.
type ChannelConfig struct {
	MaxQueueDepth      int    `yaml:"max_queue_depth"`
	DefaultDeliveryMode string `yaml:"default_delivery_mode"`
	PersistMessages    bool   `yaml:"persist_messages"`
	MessageTTLSecs     int    `yaml:"message_ttl_secs"`
}

// ParseDeliveryMode maps a config string to a channel.DeliveryMode,
// defaulting to AtLeastOnce for an empty or unrecognized value.
func (c ChannelConfig) ParseDeliveryMode() channel.DeliveryMode {
	switch c.DefaultDeliveryMode {
	case "AtMostOnce":
		return channel.AtMostOnce
	case "ExactlyOnce":
		return channel.ExactlyOnce
	default:
		return channel.AtLeastOnce
	}
}

// MessageTTL returns the configured message TTL (0 means unlimited).
func (c ChannelConfig) MessageTTL() time.Duration {
	if c.MessageTTLSecs <= 0 {
		return 0
	}
	return time.Duration(c.MessageTTLSecs) * time.Second
}

// DeliveryTrackerConfig configures the Delivery Tracker.
type DeliveryTrackerConfig struct {
	MaxAttempts         int  `yaml:"max_attempts"`
	EnableDeduplication bool `yaml:"enable_deduplication"`
	DedupTTLSecs        int  `yaml:"dedup_ttl_secs"`
}

// DedupTTL returns the configured idempotency cache TTL.
func (c DeliveryTrackerConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSecs) * time.Second
}

// CircuitBreakerConfig configures the shared Circuit Breaker defaults.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	TimeoutSecs      int `yaml:"timeout_secs"`
	WindowSizeSecs   int `yaml:"window_size_secs"`
}

// Timeout returns the configured open-state timeout.
func (c CircuitBreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// WindowSize returns the configured failure-counting window.
func (c CircuitBreakerConfig) WindowSize() time.Duration {
	return time.Duration(c.WindowSizeSecs) * time.Second
}

// ShutdownConfig configures graceful-shutdown deadlines.
type ShutdownConfig struct {
	OverallDeadlineSecs    int `yaml:"overall_deadline_secs"`
	CheckpointDeadlineSecs int `yaml:"checkpoint_deadline_secs"`
}

// Config is the orchestrator's complete externally tunable configuration,
// matching every subsection spec.md §6 enumerates.
type Config struct {
	EventLog        EventLogConfig        `yaml:"event_log"`
	Engine          EngineConfig          `yaml:"engine"`
	AutoCheckpoint  AutoCheckpointConfig  `yaml:"auto_checkpoint"`
	Supervisor      SupervisorConfig      `yaml:"supervisor"`
	Pool            PoolConfig            `yaml:"pool"`
	Channel         ChannelConfig         `yaml:"channel"`
	DeliveryTracker DeliveryTrackerConfig `yaml:"delivery_tracker"`
	CircuitBreaker  CircuitBreakerConfig  `yaml:"circuit_breaker"`
	Shutdown        ShutdownConfig        `yaml:"shutdown"`
}

// Default returns a Config populated with every default value spec.md §6
// names explicitly.
func Default() Config {
	return Config{
		Engine:         EngineConfig{CheckpointEnabled: true, MaxConcurrent: 8},
		AutoCheckpoint: AutoCheckpointConfig{IntervalSecs: 60},
		Pool: PoolConfig{
			MaxAgents: 100,
			Health:    PoolHealthConfig{CheckIntervalSecs: 10, HeartbeatThresholdSecs: 30},
		},
		Channel: ChannelConfig{
			MaxQueueDepth:       10_000,
			DefaultDeliveryMode: "AtLeastOnce",
			PersistMessages:     true,
		},
		DeliveryTracker: DeliveryTrackerConfig{
			MaxAttempts:         3,
			EnableDeduplication: true,
			DedupTTLSecs:        3600,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			TimeoutSecs:      60,
			WindowSizeSecs:   60,
		},
		Shutdown: ShutdownConfig{OverallDeadlineSecs: 30, CheckpointDeadlineSecs: 25},
	}
}
