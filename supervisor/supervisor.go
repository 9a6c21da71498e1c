package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/emit"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// State is the lifecycle state of a Supervisor.
type State int

const (
	Running State = iota
	Stopped
)

// ChildInfo tracks per-child restart bookkeeping.
type ChildInfo struct {
	Name        string
	RestartCount uint32
	LastRestart time.Time
}

// Spawner (re)starts a named child. It is supplied by the owner of the
// supervision tree, not by this package, since spawning a child is
// domain-specific (an agent pool worker, a phase runner, ...).
type Spawner func(ctx context.Context, childName string) error

// Config bounds a Supervisor's restart budget.
type Config struct {
	MaxRestarts uint32
	Window      time.Duration
}

// Supervisor restarts its children according to a RestartStrategy, within a
// bounded restart budget tracked over a sliding time window. When the
// window's failure count exceeds MaxRestarts, the supervisor stops and
// propagates the failure to its own parent via OnTerminate, rather than
// holding a strong reference to it — callers needing to walk back up a
// supervision tree should do so through a Registry lookup by ID, not a
// pointer field, to avoid retention cycles between parent and child.
type Supervisor struct {
	ID       ids.ID
	Name     string
	Strategy RestartStrategy

	mu       sync.Mutex
	config   Config
	children map[string]*ChildInfo
	order    []string
	window   *failureWindow
	spawn    Spawner
	state    State
	emitter  emit.Emitter

	OnTerminate func(reason string)
}

// New constructs a Supervisor. spawn is invoked to (re)start a named child;
// it is the caller's responsibility to have registered the child first via
// RegisterChild.
func New(name string, strategy RestartStrategy, config Config, spawn Spawner, emitter emit.Emitter) *Supervisor {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Supervisor{
		ID:       ids.New(),
		Name:     name,
		Strategy: strategy,
		config:   config,
		children: make(map[string]*ChildInfo),
		window:   newFailureWindow(config.Window),
		spawn:    spawn,
		state:    Running,
		emitter:  emitter,
	}
}

// RegisterChild adds a child under supervision with a zero restart count.
func (s *Supervisor) RegisterChild(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.children[name]; exists {
		return
	}
	s.children[name] = &ChildInfo{Name: name}
	s.order = append(s.order, name)
}

// Children returns a snapshot of tracked child names in registration order.
func (s *Supervisor) Children() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// RestartCount returns the failed restart count recorded for a child.
func (s *Supervisor) RestartCount(name string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.children[name]; ok {
		return c.RestartCount
	}
	return 0
}

// HandleFailure processes a child crash: it consults the sliding failure
// window first (a window-total budget independent of per-child counts),
// then asks the strategy which children to restart, and finally invokes
// Spawner for each. Returns an oerr.InvalidState error if the supervisor
// was already stopped or stops on this failure; when the stop is caused by
// the sliding window, the error also wraps oerr.ErrMaxAttemptsExceeded.
func (s *Supervisor) HandleFailure(ctx context.Context, childName, reason string) error {
	now := time.Now()

	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return oerr.New(oerr.InvalidState, "supervisor %s already stopped", s.Name)
	}

	s.window.Record(now)
	if uint32(s.window.Count(now)) > s.config.MaxRestarts {
		s.state = Stopped
		s.mu.Unlock()
		s.emitter.Emit(emit.Event{WorkflowID: s.Name, Msg: "supervisor_window_exceeded", Meta: map[string]interface{}{
			"child": childName, "reason": reason,
		}})
		if s.OnTerminate != nil {
			s.OnTerminate(fmt.Sprintf("restart window exceeded after %s failure", childName))
		}
		return oerr.New(oerr.InvalidState, "supervisor %s: restart window exceeded", s.Name).
			Wrap(oerr.ErrMaxAttemptsExceeded)
	}

	restartCounts := make(map[string]uint32, len(s.children))
	for name, info := range s.children {
		restartCounts[name] = info.RestartCount
	}
	rctx := RestartContext{
		FailedChild:   childName,
		Reason:        reason,
		Children:      append([]string(nil), s.order...),
		RestartCounts: restartCounts,
		MaxRestarts:   s.config.MaxRestarts,
	}
	decision := s.Strategy.OnChildFailure(rctx)
	s.mu.Unlock()

	if decision.Kind == DecisionStop {
		s.mu.Lock()
		s.state = Stopped
		s.mu.Unlock()
		s.emitter.Emit(emit.Event{WorkflowID: s.Name, Msg: "supervisor_stopped", Meta: map[string]interface{}{
			"child": childName, "strategy": s.Strategy.Name(),
		}})
		if s.OnTerminate != nil {
			s.OnTerminate(fmt.Sprintf("%s: max restarts exceeded for %s", s.Strategy.Name(), childName))
		}
		return oerr.New(oerr.InvalidState, "supervisor %s: max restarts exceeded for %s", s.Name, childName)
	}

	for _, name := range decision.ChildNames {
		if err := s.restartChild(ctx, name, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) restartChild(ctx context.Context, name string, at time.Time) error {
	if err := s.spawn(ctx, name); err != nil {
		return oerr.New(oerr.External, "respawn of child %s failed", name).Wrap(err)
	}

	s.mu.Lock()
	info, ok := s.children[name]
	if !ok {
		info = &ChildInfo{Name: name}
		s.children[name] = info
		s.order = append(s.order, name)
	}
	info.RestartCount++
	info.LastRestart = at
	s.mu.Unlock()

	s.emitter.Emit(emit.Event{WorkflowID: s.Name, Msg: "child_restarted", Meta: map[string]interface{}{
		"child": name,
	}})
	return nil
}

// State reports whether the supervisor is still running.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
