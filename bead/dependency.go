package bead

import (
	"fmt"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/ids"
)

// Relation names the kind of bead dependency edge.
type Relation string

const (
	// DependsOn means the owning bead cannot proceed until the target
	// completes.
	DependsOn Relation = "depends_on"
	// Blocks means the owning bead's completion is a precondition for the
	// target, the inverse direction of DependsOn.
	Blocks Relation = "blocks"
)

// Edge is one row of the depends_on/blocks relation described in §3.2: a
// derived projection built only from DependencyAdded/DependencyRemoved
// events, never written directly.
type Edge struct {
	BeadID       ids.BeadID
	TargetBeadID ids.BeadID
	Relation     Relation
	RelationType string
	CreatedAt    time.Time
	Metadata     map[string]string
}

// LogicalID returns the edge's logical identifier, {bead_id}:{target_bead_id}:{tag}.
func (e Edge) LogicalID() string {
	return fmt.Sprintf("%s:%s:%s", e.BeadID, e.TargetBeadID, e.RelationType)
}

// DependencyGraph is an in-memory projection of bead dependency edges,
// rebuilt by folding DependencyAdded/DependencyRemoved events the same way
// an Aggregate is folded from its bead's own event stream.
//
// Re-adding an edge with the same logical ID is an UPSERT: it replaces the
// edge's metadata and refreshes created_at rather than erroring, resolving
// spec.md's open question about duplicate (bead_id, target_bead_id) pairs
// per relation.
type DependencyGraph struct {
	mu    sync.RWMutex
	edges map[string]Edge // logical ID -> edge
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[string]Edge)}
}

// Apply folds a single bead Event into the graph; it is a no-op for any
// Kind other than EventDependencyAdded/EventDependencyRemoved.
func (g *DependencyGraph) Apply(e Event) {
	switch e.Kind {
	case EventDependencyAdded:
		g.add(Edge{
			BeadID:       e.BeadID,
			TargetBeadID: e.TargetBeadID,
			Relation:     DependsOn,
			RelationType: e.RelationType,
			CreatedAt:    e.Timestamp,
			Metadata:     e.EdgeMetadata,
		})
	case EventDependencyRemoved:
		g.remove(Edge{
			BeadID:       e.BeadID,
			TargetBeadID: e.TargetBeadID,
			RelationType: e.RelationType,
		}.LogicalID())
	}
}

func (g *DependencyGraph) add(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[e.LogicalID()] = e
}

func (g *DependencyGraph) remove(logicalID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, logicalID)
}

// DependenciesOf returns every edge owned by beadID, in no particular
// order. An unknown bead yields an empty slice, never an error — §8's
// empty-query boundary behavior.
func (g *DependencyGraph) DependenciesOf(beadID ids.BeadID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0)
	for _, e := range g.edges {
		if e.BeadID == beadID {
			out = append(out, e)
		}
	}
	return out
}
