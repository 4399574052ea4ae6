package swarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/craftwell/swarmkit/log"
	"github.com/craftwell/swarmkit/telemetry/trace"
)

const (
	defaultPoolSize = 8
	// maxRoundsPerPass guards against a frontier that never drains,
	// which a validated graph cannot produce but a defensive bound
	// keeps cheap to detect.
	maxRoundsPerPass = 100
)

// Executor runs a compiled swarm graph: rounds over the topological
// frontier within a pass, the iterate-or-finalize decision between
// passes. Frontier nodes of a round execute concurrently on a worker
// pool against read-only state snapshots; their partial updates are
// merged one at a time through the schema's reducers, in completion
// order.
type Executor struct {
	graph       *Graph
	poolSize    int
	nodeTimeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	poolSize    int
	nodeTimeout time.Duration
}

// WithPoolSize caps how many frontier nodes run concurrently.
func WithPoolSize(n int) ExecutorOption {
	return func(o *executorOptions) { o.poolSize = n }
}

// WithNodeTimeout bounds each node execution, retries included. Zero
// means no per-node bound.
func WithNodeTimeout(d time.Duration) ExecutorOption {
	return func(o *executorOptions) { o.nodeTimeout = d }
}

// NewExecutor creates an executor for a compiled graph.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	options := executorOptions{poolSize: defaultPoolSize}
	for _, opt := range opts {
		opt(&options)
	}
	if options.poolSize < 1 {
		options.poolSize = 1
	}
	return &Executor{
		graph:       graph,
		poolSize:    options.poolSize,
		nodeTimeout: options.nodeTimeout,
	}, nil
}

// nodeOutcome carries one node's partial update (or failure) back to
// the merge loop.
type nodeOutcome struct {
	nodeID string
	update State
	err    error
}

// Execute runs the graph to completion and returns the terminal state.
// The iteration ceiling is read from the initial state's
// max_iterations field. Execute aborts on the first node failure and on
// context cancellation; parse failures never abort.
func (e *Executor) Execute(ctx context.Context, initial State) (State, error) {
	ctx, span := trace.Tracer.Start(ctx, "execute_swarm")
	defer span.End()

	state := e.graph.Schema().ApplyUpdate(e.graph.Schema().Defaults(), initial)
	maxIterations := intFromState(state, StateKeyMaxIterations)
	if maxIterations < 1 {
		maxIterations = 1
		state = e.graph.Schema().ApplyUpdate(state, State{StateKeyMaxIterations: 1})
	}

	pool, err := ants.NewPool(e.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	for {
		state, err = e.runPass(ctx, pool, state)
		if err != nil {
			return nil, err
		}
		iteration := intFromState(state, StateKeyIteration)
		if e.shouldIterate(state, iteration, maxIterations) {
			log.Infof("pass %d requested refinement, starting pass %d", iteration, iteration+1)
			state = e.resetForNextPass(state)
			continue
		}
		state = e.graph.Schema().ApplyUpdate(state, State{StateKeyStatus: StatusComplete})
		span.SetAttributes(attribute.Int("swarm.iterations", iteration))
		return state, nil
	}
}

// shouldIterate evaluates the loop edge. Reaching the iteration ceiling
// forces finalize regardless of the predicate.
func (e *Executor) shouldIterate(state State, iteration, maxIterations int) bool {
	loop := e.graph.Loop()
	if loop == nil || iteration >= maxIterations {
		return false
	}
	return loop.Predicate(state)
}

// resetForNextPass clears per-pass fields. The iteration counter, the
// ceiling, the original query, the accumulated message log, and the run
// wiring keys survive.
func (e *Executor) resetForNextPass(state State) State {
	next := make(State, len(state))
	for key, value := range state {
		switch {
		case isInternalStateKey(key):
			next[key] = value
		case key == StateKeyIteration, key == StateKeyMaxIterations,
			key == StateKeyUserInput, key == StateKeyMessages:
			next[key] = value
		}
	}
	next[StateKeyStatus] = StatusRunning
	return e.graph.Schema().ApplyUpdate(e.graph.Schema().Defaults(), next)
}

// runPass executes one full traversal: repeated frontier rounds until
// every node has produced output.
func (e *Executor) runPass(ctx context.Context, pool *ants.Pool, state State) (State, error) {
	ctx, span := trace.Tracer.Start(ctx, "swarm_pass")
	defer span.End()
	span.SetAttributes(attribute.Int("swarm.iteration", intFromState(state, StateKeyIteration)+1))

	done := make(map[string]bool, len(e.graph.nodeIDs()))
	remaining := len(e.graph.nodeIDs())

	for round := 1; remaining > 0; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if round > maxRoundsPerPass {
			return nil, fmt.Errorf("maximum rounds per pass (%d) exceeded", maxRoundsPerPass)
		}
		frontier := e.frontier(done)
		if len(frontier) == 0 {
			return nil, fmt.Errorf("no runnable nodes with %d remaining; graph is stuck", remaining)
		}
		log.Debugf("round %d: executing %v", round, frontier)

		merged, err := e.runRound(ctx, pool, state, frontier)
		if err != nil {
			return nil, err
		}
		state = merged
		for _, id := range frontier {
			done[id] = true
		}
		remaining -= len(frontier)
	}
	return state, nil
}

// frontier returns the nodes whose entire upstream set has completed in
// the current pass. A node with several upstream dependencies is
// admitted only once the last of them is done, and exactly once.
func (e *Executor) frontier(done map[string]bool) []string {
	var ready []string
	for _, id := range e.graph.nodeIDs() {
		if done[id] {
			continue
		}
		allDone := true
		for _, up := range e.graph.Upstream(id) {
			if !done[up] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// runRound executes every frontier node concurrently and merges their
// updates in completion order. The first node error cancels the rest
// of the round; in-flight nodes are drained before returning.
func (e *Executor) runRound(ctx context.Context, pool *ants.Pool, state State, frontier []string) (State, error) {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan nodeOutcome, len(frontier))
	var wg sync.WaitGroup
	for _, id := range frontier {
		node, _ := e.graph.Node(id)
		snapshot := state.Clone()
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			update, err := e.executeNode(roundCtx, node, snapshot)
			outcomes <- nodeOutcome{nodeID: node.ID, update: update, err: err}
		})
		if submitErr != nil {
			wg.Done()
			outcomes <- nodeOutcome{nodeID: id, err: fmt.Errorf("failed to submit node %s: %w", id, submitErr)}
		}
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Single merge point: updates apply one at a time, so nodes never
	// observe a partially merged state.
	var firstErr error
	for outcome := range outcomes {
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("node %s failed: %w", outcome.nodeID, outcome.err)
				cancel()
			}
			continue
		}
		if firstErr == nil && outcome.update != nil {
			state = e.graph.Schema().ApplyUpdate(state, outcome.update)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return state, nil
}

// executeNode runs a single node against its snapshot.
func (e *Executor) executeNode(ctx context.Context, node *Node, snapshot State) (State, error) {
	ctx, span := trace.Tracer.Start(ctx, fmt.Sprintf("execute_node %s", node.ID))
	defer span.End()
	span.SetAttributes(
		attribute.String("swarm.node_id", node.ID),
		attribute.String("swarm.node_kind", string(node.Kind)),
	)

	if e.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
	}

	started := time.Now()
	update, err := node.Function(ctx, snapshot)
	if err != nil {
		span.SetAttributes(attribute.String("swarm.error", err.Error()))
		return nil, err
	}
	log.Debugf("node %s finished in %s", node.ID, time.Since(started))
	return update, nil
}
