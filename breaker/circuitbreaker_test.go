package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/beadwright/orchestrator/metrics"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := New[string](DefaultConfig(), nil, nil)
	require.Equal(t, Closed, cb.State())
}

func TestCircuitBreaker_RecordsTransitionMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	config := DefaultConfig()
	config.Name = "agent-dispatch"
	config.FailureThreshold = 1
	cb := New[string](config, nil, m)

	_, _ = cb.Execute(context.Background(), func() (string, error) {
		return "", errors.New("boom")
	})
	require.Equal(t, Open, cb.State())

	families, err := registry.Gather()
	require.NoError(t, err)
	var transitions float64
	for _, family := range families {
		if family.GetName() == "orchestrator_breaker_transitions_total" {
			for _, metric := range family.GetMetric() {
				transitions += metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), transitions)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	config := DefaultConfig()
	config.FailureThreshold = 3
	cb := New[string](config, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), func() (string, error) {
			return "", errors.New("boom")
		})
		require.Error(t, err)
	}

	require.Equal(t, Open, cb.State())
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	config := DefaultConfig()
	config.FailureThreshold = 1
	cb := New[string](config, nil, nil)

	_, _ = cb.Execute(context.Background(), func() (string, error) {
		return "", errors.New("boom")
	})
	require.Equal(t, Open, cb.State())

	called := false
	_, err := cb.Execute(context.Background(), func() (string, error) {
		called = true
		return "ok", nil
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestCircuitBreaker_ReturnsSuccessfulResult(t *testing.T) {
	cb := New[int](DefaultConfig(), nil, nil)

	result, err := cb.Execute(context.Background(), func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, result)
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	config := DefaultConfig()
	config.FailureThreshold = 1
	config.OpenTimeout = 10 * time.Millisecond
	cb := New[string](config, nil, nil)

	_, _ = cb.Execute(context.Background(), func() (string, error) {
		return "", errors.New("boom")
	})
	require.Equal(t, Open, cb.State())

	time.Sleep(20 * time.Millisecond)

	result, err := cb.Execute(context.Background(), func() (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", result)
}
