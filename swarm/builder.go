package swarm

import "fmt"

// GraphBuilder provides a fluent interface for declaring swarm graphs.
// Errors are collected while building and reported by Compile, so call
// sites can chain without per-call error checks.
//
// Example:
//
//	graph, err := swarm.NewGraphBuilder(swarm.SwarmStateSchema()).
//		AddSpecialistNode("mechanics", mechanicsTmpl).
//		AddSpecialistNode("narrative", narrativeTmpl).
//		AddSupervisorNode("review", reviewTmpl, "mechanics", "narrative").
//		AddAssemblerNode("assemble", foldReport).
//		SetEntryPoints("mechanics", "narrative").
//		AddEdge("mechanics", "review").
//		AddEdge("narrative", "review").
//		AddEdge("review", "assemble").
//		SetLoopEdge("assemble", nil).
//		Compile()
type GraphBuilder struct {
	graph *Graph
	retry RetryPolicy
	errs  []error
}

// NewGraphBuilder creates a builder over the given schema. A nil schema
// gets the standard swarm schema.
func NewGraphBuilder(schema *StateSchema) *GraphBuilder {
	if schema == nil {
		schema = SwarmStateSchema()
	}
	return &GraphBuilder{
		graph: &Graph{
			schema:   schema,
			nodes:    make(map[string]*Node),
			edges:    make(map[string][]*Edge),
			upstream: make(map[string][]string),
		},
		retry: DefaultRetryPolicy(),
	}
}

// WithRetryPolicy overrides the retry policy applied to specialist and
// supervisor nodes added after this call.
func (b *GraphBuilder) WithRetryPolicy(policy RetryPolicy) *GraphBuilder {
	b.retry = policy
	return b
}

// AddNode adds a node with an arbitrary function. Most callers use the
// kind-specific helpers instead.
func (b *GraphBuilder) AddNode(id string, kind NodeKind, fn NodeFunc) *GraphBuilder {
	if id == "" {
		b.errs = append(b.errs, fmt.Errorf("node ID cannot be empty"))
		return b
	}
	if id == Start || id == End {
		b.errs = append(b.errs, fmt.Errorf("node ID %s is reserved", id))
		return b
	}
	if _, exists := b.graph.nodes[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("node %s already exists", id))
		return b
	}
	b.graph.nodes[id] = &Node{ID: id, Kind: kind, Function: fn}
	b.graph.order = append(b.graph.order, id)
	return b
}

// AddSpecialistNode adds a specialist that renders the template against
// upstream state, calls the generation service once (through the retry
// wrapper), and contributes its message and raw result.
func (b *GraphBuilder) AddSpecialistNode(id string, tmpl PromptTemplate) *GraphBuilder {
	return b.AddNode(id, NodeKindSpecialist, newSpecialistFunc(id, tmpl, b.retry))
}

// AddSupervisorNode adds a supervisor that reviews the named upstream
// specialists' results and produces the verdict.
func (b *GraphBuilder) AddSupervisorNode(id string, tmpl SupervisorTemplate, reviews ...string) *GraphBuilder {
	if len(reviews) == 0 {
		b.errs = append(b.errs, fmt.Errorf("supervisor %s must review at least one specialist", id))
		return b
	}
	return b.AddNode(id, NodeKindSupervisor, newSupervisorFunc(id, tmpl, reviews, b.retry))
}

// AddAssemblerNode adds the terminal-per-pass node that folds all
// accumulated state into the report. fold may be nil for the default
// fold.
func (b *GraphBuilder) AddAssemblerNode(id string, fold ReportFunc) *GraphBuilder {
	return b.AddNode(id, NodeKindAssembler, newAssemblerFunc(id, fold))
}

// AddEdge declares a sequential dependency: to waits for from.
func (b *GraphBuilder) AddEdge(from, to string) *GraphBuilder {
	if _, exists := b.graph.nodes[from]; !exists {
		b.errs = append(b.errs, fmt.Errorf("edge source %s does not exist", from))
		return b
	}
	if _, exists := b.graph.nodes[to]; !exists {
		b.errs = append(b.errs, fmt.Errorf("edge target %s does not exist", to))
		return b
	}
	b.graph.edges[from] = append(b.graph.edges[from], &Edge{From: from, To: to})
	b.graph.upstream[to] = append(b.graph.upstream[to], from)
	return b
}

// SetEntryPoints declares the nodes scheduled in the first round. Two
// or more entry points fan out in parallel.
func (b *GraphBuilder) SetEntryPoints(ids ...string) *GraphBuilder {
	for _, id := range ids {
		if _, exists := b.graph.nodes[id]; !exists {
			b.errs = append(b.errs, fmt.Errorf("entry node %s does not exist", id))
			return b
		}
	}
	b.graph.entry = append([]string(nil), ids...)
	return b
}

// SetLoopEdge declares the iterate-or-finalize edge leaving the
// assembler. A nil predicate uses DefaultLoopPredicate. Graphs without
// a loop edge always finalize after one pass.
func (b *GraphBuilder) SetLoopEdge(from string, predicate LoopPredicate) *GraphBuilder {
	if _, exists := b.graph.nodes[from]; !exists {
		b.errs = append(b.errs, fmt.Errorf("loop edge source %s does not exist", from))
		return b
	}
	if predicate == nil {
		predicate = DefaultLoopPredicate
	}
	b.graph.loop = &LoopEdge{From: from, Predicate: predicate}
	return b
}

// Compile validates the declared topology and returns the immutable
// graph.
func (b *GraphBuilder) Compile() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("invalid graph: %w", b.errs[0])
	}
	if err := b.graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return b.graph, nil
}

// MustCompile compiles the graph or panics. Intended for package-level
// preset graphs whose topology is fixed at build time.
func (b *GraphBuilder) MustCompile() *Graph {
	graph, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}
