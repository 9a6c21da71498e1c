package pool

import (
	"context"
	"time"

	"github.com/beadwright/orchestrator/emit"
)

// HealthMonitor periodically scans a Pool and marks agents Unhealthy once
// now - last_heartbeat exceeds Threshold.
type HealthMonitor struct {
	Pool      *Pool
	Threshold time.Duration
	Interval  time.Duration
	Emitter   emit.Emitter
}

// NewHealthMonitor constructs a monitor with a NullEmitter unless emitter
// is supplied.
func NewHealthMonitor(p *Pool, threshold, interval time.Duration, emitter emit.Emitter) *HealthMonitor {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &HealthMonitor{Pool: p, Threshold: threshold, Interval: interval, Emitter: emitter}
}

// Run ticks at Interval until ctx is cancelled, marking stale agents
// Unhealthy on each tick. It selects between its ticker and ctx.Done so a
// shutdown can interrupt it between ticks, same as the teacher's graceful
// drain loops select on a shutdown channel.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range m.Pool.markUnhealthyIfStale(now, m.Threshold) {
				m.Emitter.Emit(emit.Event{Msg: "agent_unhealthy", Meta: map[string]interface{}{
					"agent_id": id.String(),
				}})
			}
		}
	}
}
