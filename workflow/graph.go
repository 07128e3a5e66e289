package workflow

import (
	"context"
	"fmt"
)

// State is the mutable workflow state threaded through node executions.
// Nodes return partial updates that are merged into it, last write wins.
type State map[string]any

// Clone returns a shallow copy. Values are shared; nodes must treat nested
// structures as read-only or replace them wholesale.
func (s State) Clone() State {
	cp := make(State, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// Merge applies the update on top of the state, last write wins.
func (s State) Merge(update map[string]any) {
	for k, v := range update {
		s[k] = v
	}
}

// NodeFunc is one unit of workflow work. It receives the accumulated state
// and returns an update merged into it. Returning an error created by
// Interrupt suspends the execution at this node.
type NodeFunc func(ctx context.Context, state State) (map[string]any, error)

// Graph is a linear-or-branching workflow definition: named nodes joined
// by directed edges, executed one node at a time from the entry.
type Graph struct {
	nodes map[string]NodeFunc
	edges map[string]string
	entry string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]NodeFunc),
		edges: make(map[string]string),
	}
}

// AddNode registers a node. The first node added becomes the entry unless
// SetEntry overrides it.
func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	g.nodes[name] = fn
	if g.entry == "" {
		g.entry = name
	}
	return g
}

// AddEdge connects from to to. Each node has at most one successor; the
// last edge added for a node wins.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

// SetEntry overrides the entry node.
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// Entry returns the entry node name.
func (g *Graph) Entry() string {
	return g.entry
}

// Node returns the named node function.
func (g *Graph) Node(name string) (NodeFunc, bool) {
	fn, ok := g.nodes[name]
	return fn, ok
}

// Successor returns the node executed after name, or "" at the end of the
// graph.
func (g *Graph) Successor(name string) string {
	return g.edges[name]
}

// Validate checks that the graph has an entry and that every edge points
// at a registered node.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph has no entry node")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry node %q is not registered", g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge source %q is not registered", from)
		}
		if _, ok := g.nodes[to]; !ok {
			return fmt.Errorf("edge target %q is not registered", to)
		}
	}
	return nil
}
