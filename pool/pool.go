package pool

import (
	"sync"
	"time"

	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/metrics"
	"github.com/beadwright/orchestrator/oerr"
)

// Pool is the agent pool: registration, assignment, and capability
// filtering. Reads and writes are guarded by a single RWMutex, matching
// the teacher's read-heavy-map locking idiom (graph/store.MemStore).
type Pool struct {
	mu        sync.RWMutex
	agents    map[ids.ID]*Agent
	order     []ids.ID
	maxAgents int
	metrics   *metrics.Metrics
}

// New constructs a Pool. maxAgents <= 0 means unbounded.
func New(maxAgents int) *Pool {
	return &Pool{
		agents:    make(map[ids.ID]*Agent),
		maxAgents: maxAgents,
	}
}

// WithMetrics attaches a Metrics collector that every subsequent
// state-changing call updates. Nil is a valid, no-op collector (see
// metrics.Metrics's nil-receiver methods), so callers that don't care about
// Prometheus don't need a branch.
func (p *Pool) WithMetrics(m *metrics.Metrics) *Pool {
	p.metrics = m
	return p
}

// refreshAgentMetrics recomputes the per-state agent gauge from the current
// map. Must be called with p.mu held (read or write).
func (p *Pool) refreshAgentMetrics() {
	if p.metrics == nil {
		return
	}
	counts := map[string]int{
		Idle.String():         0,
		Working.String():      0,
		Unhealthy.String():    0,
		ShuttingDown.String(): 0,
		Terminated.String():   0,
	}
	for _, agent := range p.agents {
		counts[agent.State.String()]++
	}
	p.metrics.SetPoolAgentCounts(counts)
}

// Register adds an agent to the pool. Fails if capacity is reached or the
// agent's id is already present.
func (p *Pool) Register(agent *Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.agents[agent.ID]; exists {
		return oerr.New(oerr.Conflict, "agent %s already registered", agent.ID)
	}
	if p.maxAgents > 0 && len(p.agents) >= p.maxAgents {
		return oerr.New(oerr.Conflict, "agent pool at capacity (%d)", p.maxAgents)
	}
	p.agents[agent.ID] = agent
	p.order = append(p.order, agent.ID)
	p.refreshAgentMetrics()
	return nil
}

// Unregister removes an agent and returns its handle.
func (p *Pool) Unregister(id ids.ID) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[id]
	if !ok {
		return nil, oerr.New(oerr.NotFound, "agent %s not found", id)
	}
	delete(p.agents, id)
	for i, aid := range p.order {
		if aid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.refreshAgentMetrics()
	return agent, nil
}

// AssignBead selects the first available agent (registration order) and
// transitions it Idle -> Working.
func (p *Pool) AssignBead(beadID ids.ID) (ids.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		agent := p.agents[id]
		if agent.Available() {
			agent.State = Working
			agent.CurrentBead = beadID
			p.refreshAgentMetrics()
			p.metrics.IncPoolAssignment("assigned")
			return id, nil
		}
	}
	p.metrics.IncPoolAssignment("no_agent_available")
	return ids.ID(""), oerr.New(oerr.NotFound, "no available agent for bead %s", beadID)
}

// AssignBeadTo assigns a bead to a specific agent; fails if unavailable.
func (p *Pool) AssignBeadTo(beadID, agentID ids.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return oerr.New(oerr.NotFound, "agent %s not found", agentID)
	}
	if !agent.Available() {
		return oerr.New(oerr.InvalidState, "agent %s is not available (state=%s)", agentID, agent.State)
	}
	agent.State = Working
	agent.CurrentBead = beadID
	p.refreshAgentMetrics()
	return nil
}

// CompleteBead transitions an agent Working -> Idle.
func (p *Pool) CompleteBead(agentID ids.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return oerr.New(oerr.NotFound, "agent %s not found", agentID)
	}
	if agent.State != Working {
		return oerr.New(oerr.InvalidState, "agent %s is not working", agentID)
	}
	agent.State = Idle
	agent.CurrentBead = ids.ID("")
	p.refreshAgentMetrics()
	return nil
}

// ReleaseBead un-assigns a bead from an agent without marking it complete,
// returning the released bead id.
func (p *Pool) ReleaseBead(agentID ids.ID) (ids.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return ids.ID(""), oerr.New(oerr.NotFound, "agent %s not found", agentID)
	}
	if agent.State != Working {
		return ids.ID(""), oerr.New(oerr.InvalidState, "agent %s is not working", agentID)
	}
	beadID := agent.CurrentBead
	agent.State = Idle
	agent.CurrentBead = ids.ID("")
	p.refreshAgentMetrics()
	return beadID, nil
}

// Heartbeat updates an agent's last-seen timestamp and clears an Unhealthy
// flag if one was set.
func (p *Pool) Heartbeat(agentID ids.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return oerr.New(oerr.NotFound, "agent %s not found", agentID)
	}
	agent.LastHeartbeat = time.Now()
	if agent.State == Unhealthy {
		agent.State = Idle
		p.refreshAgentMetrics()
	}
	return nil
}

// AgentsWithCapability returns available agents whose capability set
// contains cap.
func (p *Pool) AgentsWithCapability(cap string) []*Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Agent
	for _, id := range p.order {
		agent := p.agents[id]
		if agent.Available() && agent.HasCapability(cap) {
			out = append(out, agent)
		}
	}
	return out
}

// Available returns every agent currently eligible for assignment.
func (p *Pool) Available() []*Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Agent
	for _, id := range p.order {
		if agent := p.agents[id]; agent.Available() {
			out = append(out, agent)
		}
	}
	return out
}

// Get returns a snapshot copy of a single agent.
func (p *Pool) Get(id ids.ID) (Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	agent, ok := p.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *agent, true
}

// markUnhealthyIfStale is invoked by the health monitor for every
// registered agent on each check tick.
func (p *Pool) markUnhealthyIfStale(now time.Time, threshold time.Duration) []ids.ID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var marked []ids.ID
	for _, id := range p.order {
		agent := p.agents[id]
		if agent.State == Terminated || agent.State == ShuttingDown {
			continue
		}
		if now.Sub(agent.LastHeartbeat) > threshold && agent.State != Unhealthy {
			agent.State = Unhealthy
			marked = append(marked, id)
		}
	}
	if len(marked) > 0 {
		p.refreshAgentMetrics()
	}
	return marked
}
