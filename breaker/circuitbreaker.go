package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/beadwright/orchestrator/emit"
	"github.com/beadwright/orchestrator/metrics"
)

// Config maps spec.md §4.12's sliding-window circuit breaker parameters
// onto gobreaker's Settings.
type Config struct {
	// Name identifies the protected resource in emitted events.
	Name string
	// FailureThreshold trips the circuit after this many consecutive
	// failures while Closed.
	FailureThreshold uint32
	// SuccessThreshold is how many trial requests must succeed in
	// Half-Open before the circuit closes again.
	SuccessThreshold uint32
	// OpenTimeout is how long the circuit stays Open before allowing a
	// trial request (transition to Half-Open).
	OpenTimeout time.Duration
	// WindowSize is the period after which the Closed-state failure count
	// resets, giving the failure threshold a sliding-window character
	// rather than accumulating forever.
	WindowSize time.Duration
}

// DefaultConfig mirrors the original's defaults: 5 failures trips the
// circuit, 2 successes closes it, 60s open timeout, 60s window.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
		WindowSize:       60 * time.Second,
	}
}

// State mirrors gobreaker's three circuit states.
type State = gobreaker.State

const (
	Closed   = gobreaker.StateClosed
	Open     = gobreaker.StateOpen
	HalfOpen = gobreaker.StateHalfOpen
)

// CircuitBreaker[T] wraps gobreaker.CircuitBreaker (the v1 package only
// executes func() (interface{}, error)) with a typed Execute, translating
// spec.md's sliding-window configuration into gobreaker.Settings and
// emitting a telemetry event on every state transition.
type CircuitBreaker[T any] struct {
	inner *gobreaker.CircuitBreaker
}

// New constructs a CircuitBreaker for the result type T. m may be nil, in
// which case state transitions are still emitted as events but not recorded
// as Prometheus metrics.
func New[T any](config Config, emitter emit.Emitter, m *metrics.Metrics) *CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.SuccessThreshold,
		Interval:    config.WindowSize,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.RecordBreakerTransition(name, from.String(), to.String())
			if emitter == nil {
				return
			}
			emitter.Emit(emit.Event{Msg: "circuit_state_changed", Meta: map[string]interface{}{
				"name": name, "from": from.String(), "to": to.String(),
			}})
		},
	}
	return &CircuitBreaker[T]{inner: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the circuit's current state.
func (cb *CircuitBreaker[T]) State() State {
	return cb.inner.State()
}

// Execute runs fn under circuit-breaker protection: if the circuit is
// Open, fn is not called and gobreaker.ErrOpenState is returned. A Closed
// or Half-Open circuit runs fn and records its outcome.
func (cb *CircuitBreaker[T]) Execute(_ context.Context, fn func() (T, error)) (T, error) {
	result, err := cb.inner.Execute(func() (interface{}, error) {
		return fn()
	})
	if result == nil {
		var zero T
		return zero, err
	}
	return result.(T), err
}
