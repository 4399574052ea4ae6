package swarm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/craftwell/swarmkit/log"
	"github.com/craftwell/swarmkit/provider"
	"github.com/craftwell/swarmkit/telemetry/trace"
)

// Result is what a completed run returns to the caller. Everything
// above this surface (HTTP routes, persistence, rendering) is layered
// on by consumers.
type Result struct {
	// Report is the assembler's final structured output.
	Report map[string]any
	// Messages is the full agent message log, in completion order.
	Messages []Message
	// Iterations is how many passes the run executed.
	Iterations int
	// Provider names the backend pinned for the run.
	Provider string
}

// Runner binds a compiled graph to a prioritized list of candidate
// providers and run-level options. A Runner is safe for concurrent use;
// each Run resolves its own provider and owns its own state.
type Runner struct {
	graph           *Graph
	candidates      []provider.Provider
	maxIterations   int
	injector        Injector
	generateOptions provider.GenerateOptions
	executorOptions []ExecutorOption
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxIterations sets the refinement pass ceiling. Default 1.
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) { r.maxIterations = n }
}

// WithInjector sets the context-injection function applied to every
// specialist's system prompt.
func WithInjector(inject Injector) RunnerOption {
	return func(r *Runner) { r.injector = inject }
}

// WithGenerateOptions sets the generation options forwarded on every
// provider call.
func WithGenerateOptions(opts provider.GenerateOptions) RunnerOption {
	return func(r *Runner) { r.generateOptions = opts }
}

// WithExecutorOptions forwards options to the underlying executor.
func WithExecutorOptions(opts ...ExecutorOption) RunnerOption {
	return func(r *Runner) { r.executorOptions = append(r.executorOptions, opts...) }
}

// NewRunner creates a runner for the graph and provider candidates.
func NewRunner(graph *Graph, candidates []provider.Provider, opts ...RunnerOption) (*Runner, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("at least one provider candidate is required")
	}
	r := &Runner{
		graph:         graph,
		candidates:    candidates,
		maxIterations: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxIterations < 1 {
		r.maxIterations = 1
	}
	return r, nil
}

// Run executes the swarm for the given payload: resolve and pin a
// provider, walk the graph for up to maxIterations passes, and reduce
// the terminal state into a Result. It returns *provider.
// UnavailableError when no backend answered its probe and
// *GenerationError when a node exhausted its retry budget; parse
// failures never surface as errors.
func (r *Runner) Run(ctx context.Context, payload string) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := trace.Tracer.Start(ctx, "swarm_run")
	defer span.End()
	span.SetAttributes(attribute.String("swarm.run_id", runID))

	log.Infof("run %s: resolving provider among %d candidates", runID, len(r.candidates))
	pinned, err := provider.Resolve(ctx, r.candidates)
	if err != nil {
		log.Errorf("run %s: provider resolution failed: %v", runID, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("swarm.provider", pinned.Name()))

	executor, err := NewExecutor(r.graph, r.executorOptions...)
	if err != nil {
		return nil, err
	}

	initial := State{
		StateKeyUserInput:       payload,
		StateKeyMaxIterations:   r.maxIterations,
		StateKeyStatus:          StatusRunning,
		stateKeyProvider:        pinned,
		stateKeyGenerateOptions: r.generateOptions,
	}
	if r.injector != nil {
		initial[stateKeyInjector] = r.injector
	}

	log.Infof("run %s: executing on provider %s", runID, pinned.Name())
	final, err := executor.Execute(ctx, initial)
	if err != nil {
		log.Errorf("run %s: execution failed: %v", runID, err)
		return nil, err
	}

	result := &Result{
		Iterations: intFromState(final, StateKeyIteration),
		Provider:   pinned.Name(),
	}
	if report, ok := final[StateKeyReport].(map[string]any); ok {
		result.Report = report
	}
	if messages, ok := final[StateKeyMessages].([]Message); ok {
		result.Messages = messages
	}
	log.Infof("run %s: complete after %d iteration(s)", runID, result.Iterations)
	return result, nil
}
