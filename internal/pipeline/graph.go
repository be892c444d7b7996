// Package pipeline provides the step graph and its executor. A run is
// an explicit DAG of named steps; the executor walks the ready set,
// fails fast on the first error and skips guarded nodes without
// blocking their dependents. Fan-out steps expand a runtime item list
// into per-item sub-graphs executed by a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for graph construction.
var (
	ErrDuplicateStep = errors.New("pipeline: duplicate step")
	ErrUnknownDep    = errors.New("pipeline: unknown dependency")
	ErrUnknownStep   = errors.New("pipeline: unknown step")
)

// Step is one unit of pipeline work.
type Step interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) error
}

// Guard decides at schedule time whether a ready node runs. A false
// guard skips the node; skipped nodes still satisfy their dependents.
type Guard func(rc *RunContext) bool

type node struct {
	step  Step
	guard Guard
	deps  []string
	class string
}

// Graph is a DAG of steps. Dependencies must already be present when a
// step is added, so a finished graph is acyclic by construction.
type Graph struct {
	nodes map[string]*node
	order []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// Add inserts a step that runs after the named dependencies.
func (g *Graph) Add(step Step, deps ...string) error {
	return g.AddGuarded(step, nil, deps...)
}

// AddGuarded inserts a step with a guard evaluated when the node
// becomes ready.
func (g *Graph) AddGuarded(step Step, guard Guard, deps ...string) error {
	name := step.Name()
	if name == "" {
		return fmt.Errorf("pipeline: step with empty name")
	}
	if _, dup := g.nodes[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateStep, name)
	}
	for _, d := range deps {
		if _, ok := g.nodes[d]; !ok {
			return fmt.Errorf("%w: %q depends on %q", ErrUnknownDep, name, d)
		}
	}

	g.nodes[name] = &node{step: step, guard: guard, deps: deps}
	g.order = append(g.order, name)
	return nil
}

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.nodes) }

// Names returns step names in insertion order, which is a valid
// topological order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Deps returns the dependency names of a step.
func (g *Graph) Deps(name string) []string {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	out := make([]string, len(n.deps))
	copy(out, n.deps)
	return out
}

// Guarded reports whether a step carries a guard.
func (g *Graph) Guarded(name string) bool {
	n, ok := g.nodes[name]
	return ok && n.guard != nil
}

// SetResourceClass tags a step with the machine class its resource spec
// is looked up under. The class is advisory placement metadata surfaced
// by plan rendering; the executor does not act on it.
func (g *Graph) SetResourceClass(name, class string) error {
	n, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStep, name)
	}
	n.class = class
	return nil
}

// ResourceClass returns the step's resource class, empty when untagged.
func (g *Graph) ResourceClass(name string) string {
	n, ok := g.nodes[name]
	if !ok {
		return ""
	}
	return n.class
}
