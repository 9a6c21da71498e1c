// Package pool implements the agent pool: registration, capability
// filtering, bead assignment, and background health monitoring.
package pool

import (
	"time"

	"github.com/beadwright/orchestrator/ids"
)

// State is an Agent's lifecycle state.
type State int

const (
	Idle State = iota
	Working
	Unhealthy
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Working:
		return "working"
	case Unhealthy:
		return "unhealthy"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Agent is a worker in the pool.
type Agent struct {
	ID            ids.ID
	State         State
	Capabilities  map[string]struct{}
	Load          float64
	CurrentBead   ids.ID
	LastHeartbeat time.Time
}

// Available reports whether the agent can accept new work: it must be Idle
// and not yet flagged Unhealthy by the health monitor.
func (a *Agent) Available() bool {
	return a.State == Idle
}

// HasCapability reports whether the agent's capability set contains cap.
func (a *Agent) HasCapability(cap string) bool {
	_, ok := a.Capabilities[cap]
	return ok
}

// NewAgent constructs an Idle agent with the given capability set.
func NewAgent(capabilities ...string) *Agent {
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return &Agent{
		ID:            ids.New(),
		State:         Idle,
		Capabilities:  caps,
		LastHeartbeat: time.Now(),
	}
}
