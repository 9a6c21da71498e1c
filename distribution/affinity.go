// Package distribution implements pluggable bead/agent selection strategy:
// bead priority selection and capability-weighted agent scoring.
package distribution

import (
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// Mode is the affinity matching strictness.
type Mode int

const (
	// Soft prefers capability-matched agents but falls back to the
	// highest-scoring agent when none fully match.
	Soft Mode = iota
	// Hard filters out any agent that does not fully match required
	// capabilities; no candidate yields no selection.
	Hard
)

// BeadInfo is the subset of bead state the strategy needs to rank work and
// score agents against it.
type BeadInfo struct {
	ID                  ids.ID
	Priority            int
	RetryCount          int
	RequiredCapabilities []string
	PreferredAgents     []string
}

// AgentInfo is the subset of agent state the strategy scores against.
type AgentInfo struct {
	ID           ids.ID
	Capabilities map[string]struct{}
	Load         float64
}

func (a AgentInfo) hasCapability(cap string) bool {
	_, ok := a.Capabilities[cap]
	return ok
}

// defaultPreferenceScore is returned for agents when a bead states no
// preference at all, so affinity never zeroes out unpreferred agents.
const defaultPreferenceScore = 0.5

// AffinityStrategy scores agents on weighted capability, preference, and
// load components that must sum to 1.0.
type AffinityStrategy struct {
	Mode              Mode
	CapabilityWeight  float64
	PreferenceWeight  float64
	LoadWeight        float64
}

// NewAffinityStrategy returns the default soft-affinity strategy with the
// canonical 0.4/0.4/0.2 weight split.
func NewAffinityStrategy() *AffinityStrategy {
	return &AffinityStrategy{
		Mode:             Soft,
		CapabilityWeight: 0.4,
		PreferenceWeight: 0.4,
		LoadWeight:       0.2,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WithMode sets hard or soft affinity.
func (s *AffinityStrategy) WithMode(mode Mode) *AffinityStrategy {
	s.Mode = mode
	return s
}

// WithCapabilityWeight sets the capability-match weight, clamped to [0,1].
func (s *AffinityStrategy) WithCapabilityWeight(w float64) *AffinityStrategy {
	s.CapabilityWeight = clamp01(w)
	return s
}

// WithPreferenceWeight sets the preferred-agent weight, clamped to [0,1].
func (s *AffinityStrategy) WithPreferenceWeight(w float64) *AffinityStrategy {
	s.PreferenceWeight = clamp01(w)
	return s
}

// WithLoadWeight sets the load-balancing weight, clamped to [0,1].
func (s *AffinityStrategy) WithLoadWeight(w float64) *AffinityStrategy {
	s.LoadWeight = clamp01(w)
	return s
}

// Validate fails when the three weights do not sum to within ±0.01 of 1.0.
func (s *AffinityStrategy) Validate() error {
	total := s.CapabilityWeight + s.PreferenceWeight + s.LoadWeight
	if diff := total - 1.0; diff > 0.01 || diff < -0.01 {
		return oerr.New(oerr.Validation, "distribution weights should sum to 1.0, got %.4f", total)
	}
	return nil
}

// Name identifies the strategy for logging/config.
func (s *AffinityStrategy) Name() string {
	if s.Mode == Hard {
		return "affinity_hard"
	}
	return "affinity"
}

// SelectBead picks the ready bead with the highest priority, breaking ties
// by the higher retry count (starved work wins).
func SelectBead(ready []BeadInfo) (BeadInfo, bool) {
	if len(ready) == 0 {
		return BeadInfo{}, false
	}
	best := ready[0]
	for _, b := range ready[1:] {
		if b.Priority > best.Priority || (b.Priority == best.Priority && b.RetryCount > best.RetryCount) {
			best = b
		}
	}
	return best, true
}

func (s *AffinityStrategy) capabilityScore(agent AgentInfo, bead BeadInfo) float64 {
	if len(bead.RequiredCapabilities) == 0 {
		return 1.0
	}
	matches := 0
	for _, cap := range bead.RequiredCapabilities {
		if agent.hasCapability(cap) {
			matches++
		}
	}
	return float64(matches) / float64(len(bead.RequiredCapabilities))
}

func (s *AffinityStrategy) hasAllCapabilities(agent AgentInfo, bead BeadInfo) bool {
	score := s.capabilityScore(agent, bead)
	return score >= 1.0-1e-9
}

func (s *AffinityStrategy) preferenceScore(agent AgentInfo, bead BeadInfo) float64 {
	if len(bead.PreferredAgents) == 0 {
		return defaultPreferenceScore
	}
	for _, preferred := range bead.PreferredAgents {
		if ids.ID(preferred) == agent.ID {
			return 1.0
		}
	}
	return 0.0
}

func (s *AffinityStrategy) loadScore(agent AgentInfo) float64 {
	load := agent.Load
	if load < 0 || load > 1 {
		load = 0.5
	}
	return 1.0 - load
}

func (s *AffinityStrategy) score(agent AgentInfo, bead BeadInfo) float64 {
	return s.capabilityScore(agent, bead)*s.CapabilityWeight +
		s.preferenceScore(agent, bead)*s.PreferenceWeight +
		s.loadScore(agent)*s.LoadWeight
}

func bestByScore(agents []AgentInfo, bead BeadInfo, score func(AgentInfo, BeadInfo) float64) (AgentInfo, bool) {
	if len(agents) == 0 {
		return AgentInfo{}, false
	}
	best := agents[0]
	bestScore := score(best, bead)
	for _, a := range agents[1:] {
		if sc := score(a, bead); sc > bestScore {
			best, bestScore = a, sc
		}
	}
	return best, true
}

// SelectAgent scores the supplied agents against bead and returns the
// winner, honoring Hard/Soft affinity semantics.
func (s *AffinityStrategy) SelectAgent(bead BeadInfo, agents []AgentInfo) (AgentInfo, bool) {
	if len(agents) == 0 {
		return AgentInfo{}, false
	}

	candidates := agents
	if s.Mode == Hard {
		filtered := make([]AgentInfo, 0, len(agents))
		for _, a := range agents {
			if s.hasAllCapabilities(a, bead) {
				filtered = append(filtered, a)
			}
		}
		candidates = filtered
	}

	if len(candidates) == 0 {
		if s.Mode == Soft {
			return bestByScore(agents, bead, s.score)
		}
		return AgentInfo{}, false
	}
	return bestByScore(candidates, bead, s.score)
}
