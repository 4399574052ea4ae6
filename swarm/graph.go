// Package swarm implements a multi-agent orchestration engine: a fixed
// directed graph of specialist calls to a generation service, executed
// with controlled parallelism, merged into reducer-governed shared
// state, validated by a supervisor stage, optionally looped for bounded
// refinement, and reduced into a structured report.
package swarm

import (
	"context"
	"fmt"
)

// Virtual node identifiers for graph routing.
const (
	// Start is the virtual source every entry node hangs off.
	Start = "__start__"
	// End is the virtual sink the finalize branch routes to.
	End = "__end__"
)

// NodeKind classifies the three node roles in a swarm graph.
type NodeKind string

// Node kinds.
const (
	NodeKindSpecialist NodeKind = "specialist"
	NodeKindSupervisor NodeKind = "supervisor"
	NodeKindAssembler  NodeKind = "assembler"
)

// NodeFunc is the work unit executed by a node. It receives a read-only
// snapshot of the current state and returns a partial update; it must
// not mutate the snapshot.
type NodeFunc func(ctx context.Context, state State) (State, error)

// Node is a vertex in the swarm graph.
type Node struct {
	ID       string
	Kind     NodeKind
	Function NodeFunc
}

// Edge is a sequential dependency between two nodes.
type Edge struct {
	From string
	To   string
}

// LoopPredicate decides, after the assembler, whether the graph loops
// for another refinement pass.
type LoopPredicate func(state State) bool

// LoopEdge is the single permitted cycle in a swarm graph: the
// iterate-or-finalize edge leaving the assembler. When the predicate
// holds (and the iteration ceiling permits), execution restarts from
// the entry nodes; otherwise it routes to End.
type LoopEdge struct {
	From      string
	Predicate LoopPredicate
}

// DefaultLoopPredicate iterates while the supervisor requested another
// pass. The executor enforces the max-iterations ceiling independently,
// so the predicate only expresses the verdict.
func DefaultLoopPredicate(state State) bool {
	verdict, ok := state[StateKeyVerdict].(*Verdict)
	return ok && verdict != nil && verdict.NeedsIteration
}

// Graph is the compiled, immutable topology executed by the Executor.
// Build one with GraphBuilder; direct construction is not supported.
type Graph struct {
	schema   *StateSchema
	nodes    map[string]*Node
	edges    map[string][]*Edge
	upstream map[string][]string
	entry    []string
	loop     *LoopEdge
	order    []string // node IDs in insertion order, for deterministic walks
}

// Schema returns the state schema the graph was built with.
func (g *Graph) Schema() *StateSchema { return g.schema }

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// EntryNodes returns the IDs scheduled in the first round of a pass.
func (g *Graph) EntryNodes() []string {
	return append([]string(nil), g.entry...)
}

// Upstream returns the IDs a node waits on before it may execute.
func (g *Graph) Upstream(id string) []string {
	return append([]string(nil), g.upstream[id]...)
}

// Loop returns the iterate-or-finalize edge.
func (g *Graph) Loop() *LoopEdge { return g.loop }

// nodeIDs returns all node IDs in insertion order.
func (g *Graph) nodeIDs() []string { return g.order }

// validate checks structural invariants: a nonempty entry set, known
// edge endpoints, exactly one assembler with the loop edge attached to
// it, no plain edges leaving the assembler, every node reachable, and
// no cycle outside the loop edge.
func (g *Graph) validate() error {
	if len(g.entry) == 0 {
		return fmt.Errorf("graph must have at least one entry node")
	}
	var assembler string
	for _, id := range g.order {
		if g.nodes[id].Kind == NodeKindAssembler {
			if assembler != "" {
				return fmt.Errorf("graph must have exactly one assembler, found %s and %s", assembler, id)
			}
			assembler = id
		}
	}
	if assembler == "" {
		return fmt.Errorf("graph must have an assembler node")
	}
	if len(g.edges[assembler]) > 0 {
		return fmt.Errorf("assembler %s must not have outgoing edges; use the loop edge", assembler)
	}
	if g.loop != nil && g.loop.From != assembler {
		return fmt.Errorf("loop edge must leave the assembler %s, not %s", assembler, g.loop.From)
	}
	if err := g.checkAcyclic(); err != nil {
		return err
	}
	return g.checkReachable()
}

// checkAcyclic runs Kahn's algorithm over the plain edges. The loop
// edge is excluded: it is the one designated cycle.
func (g *Graph) checkAcyclic() error {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.upstream[id])
	}
	queue := make([]string, 0, len(g.nodes))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, edge := range g.edges[id] {
			indegree[edge.To]--
			if indegree[edge.To] == 0 {
				queue = append(queue, edge.To)
			}
		}
	}
	if visited != len(g.nodes) {
		return fmt.Errorf("graph contains a cycle outside the loop edge")
	}
	return nil
}

// checkReachable verifies every node is reachable from the entry set.
func (g *Graph) checkReachable() error {
	seen := make(map[string]bool, len(g.nodes))
	stack := append([]string(nil), g.entry...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, edge := range g.edges[id] {
			stack = append(stack, edge.To)
		}
	}
	for id := range g.nodes {
		if !seen[id] {
			return fmt.Errorf("node %s is not reachable from the entry nodes", id)
		}
	}
	return nil
}
