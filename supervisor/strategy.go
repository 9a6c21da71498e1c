// Package supervisor implements actor supervision trees with pluggable
// restart strategies, mirroring the one-for-one / one-for-all / rest-for-one
// Erlang-style behaviors.
package supervisor

// RestartContext is the immutable snapshot handed to a RestartStrategy
// when a child actor fails.
type RestartContext struct {
	FailedChild   string
	Reason        string
	Children      []string
	RestartCounts map[string]uint32
	MaxRestarts   uint32
}

// RestartCountOf returns the failed child's current restart count.
func (c RestartContext) RestartCountOf(name string) uint32 {
	return c.RestartCounts[name]
}

// MaxRestartsExceeded reports whether the failed child has already used up
// its restart budget.
func (c RestartContext) MaxRestartsExceeded() bool {
	return c.RestartCountOf(c.FailedChild) >= c.MaxRestarts
}

// DecisionKind distinguishes the two outcomes a RestartStrategy can reach.
type DecisionKind int

const (
	DecisionRestart DecisionKind = iota
	DecisionStop
)

// RestartDecision is the outcome of a RestartStrategy evaluation.
type RestartDecision struct {
	Kind       DecisionKind
	ChildNames []string
}

// Stop is the canonical decision for "terminate the supervisor".
func Stop() RestartDecision {
	return RestartDecision{Kind: DecisionStop}
}

// Restart is the canonical decision for "respawn these children".
func Restart(children ...string) RestartDecision {
	return RestartDecision{Kind: DecisionRestart, ChildNames: children}
}

// RestartStrategy decides which children to restart when one of them fails.
type RestartStrategy interface {
	Name() string
	OnChildFailure(ctx RestartContext) RestartDecision
}

// OneForOne restarts only the crashed child; siblings are unaffected.
type OneForOne struct{}

func (OneForOne) Name() string { return "one_for_one" }

func (OneForOne) OnChildFailure(ctx RestartContext) RestartDecision {
	if ctx.MaxRestartsExceeded() {
		return Stop()
	}
	return Restart(ctx.FailedChild)
}

// OneForAll restarts every child whenever any one of them crashes.
type OneForAll struct{}

func (OneForAll) Name() string { return "one_for_all" }

func (OneForAll) OnChildFailure(ctx RestartContext) RestartDecision {
	if ctx.MaxRestartsExceeded() {
		return Stop()
	}
	return Restart(ctx.Children...)
}

// RestForOne restarts the crashed child plus every child declared dependent
// on it via WithDependency.
type RestForOne struct {
	dependents map[string][]string
}

// NewRestForOne builds an empty rest-for-one strategy; add edges with
// WithDependency before use.
func NewRestForOne() *RestForOne {
	return &RestForOne{dependents: make(map[string][]string)}
}

// WithDependency declares that dependent must be restarted whenever parent
// crashes. Returns the receiver for chaining.
func (s *RestForOne) WithDependency(parent, dependent string) *RestForOne {
	s.dependents[parent] = append(s.dependents[parent], dependent)
	return s
}

func (s *RestForOne) Name() string { return "rest_for_one" }

func (s *RestForOne) OnChildFailure(ctx RestartContext) RestartDecision {
	if ctx.MaxRestartsExceeded() {
		return Stop()
	}
	children := append([]string{ctx.FailedChild}, s.dependents[ctx.FailedChild]...)
	return Restart(children...)
}
