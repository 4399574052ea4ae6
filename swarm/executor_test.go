package swarm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftwell/swarmkit/provider"
)

// scriptedProvider returns canned responses selected by the system
// prompt and records the order in which nodes reached it.
type scriptedProvider struct {
	name     string
	probeErr error
	generate func(system, user string) (string, error)

	mu        sync.Mutex
	systems   []string
	callCount atomic.Int32
}

func (p *scriptedProvider) Generate(ctx context.Context, system, user string, opts provider.GenerateOptions) (string, error) {
	p.callCount.Add(1)
	p.mu.Lock()
	p.systems = append(p.systems, system)
	p.mu.Unlock()
	if p.generate != nil {
		return p.generate(system, user)
	}
	return `{"ok": true}`, nil
}

func (p *scriptedProvider) Probe(ctx context.Context) error { return p.probeErr }

func (p *scriptedProvider) Name() string {
	if p.name == "" {
		return "scripted"
	}
	return p.name
}

func (p *scriptedProvider) seenSystems() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.systems...)
}

// cardGameGraph is the canonical two-specialist topology: designer-a
// and designer-b fan out, the supervisor fans in, the assembler
// finishes.
func cardGameGraph(t *testing.T) *Graph {
	t.Helper()
	graph, err := NewGraphBuilder(SwarmStateSchema()).
		WithRetryPolicy(fastRetry).
		AddSpecialistNode("designer-a", PromptTemplate{System: "system-a"}).
		AddSpecialistNode("designer-b", PromptTemplate{System: "system-b"}).
		AddSupervisorNode("supervisor", SupervisorTemplate{System: "system-review"}, "designer-a", "designer-b").
		AddAssemblerNode("assembler", nil).
		SetEntryPoints("designer-a", "designer-b").
		AddEdge("designer-a", "supervisor").
		AddEdge("designer-b", "supervisor").
		AddEdge("supervisor", "assembler").
		SetLoopEdge("assembler", nil).
		Compile()
	require.NoError(t, err)
	return graph
}

func TestRunner_CardGameScenario(t *testing.T) {
	t.Parallel()

	gen := &scriptedProvider{
		generate: func(system, user string) (string, error) {
			switch system {
			case "system-a":
				return "```json\n{\"section\": \"rules\"}\n```", nil
			case "system-b":
				return `{"section": "theme"}`, nil
			default:
				return `{"needs_iteration": false, "summary": "coherent"}`, nil
			}
		},
	}

	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{gen}, WithMaxIterations(1))
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "Build a 2-player card game")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, "scripted", result.Provider)
	require.Len(t, result.Messages, 3, "two specialists plus one supervisor message")
	assert.Equal(t, "coherent", result.Report["summary"])
	assert.Equal(t, map[string]string{
		"designer-a": "```json\n{\"section\": \"rules\"}\n```",
		"designer-b": `{"section": "theme"}`,
	}, result.Report["sections"])

	// Round structure: both specialists before the supervisor.
	systems := gen.seenSystems()
	require.Len(t, systems, 3)
	assert.ElementsMatch(t, []string{"system-a", "system-b"}, systems[:2])
	assert.Equal(t, "system-review", systems[2])
}

func TestRunner_BoundedIteration(t *testing.T) {
	t.Parallel()

	gen := &scriptedProvider{
		generate: func(system, user string) (string, error) {
			if system == "system-review" {
				// Always asks for another pass; the ceiling must win.
				return `{"needs_iteration": true, "summary": "keep going"}`, nil
			}
			return `{"ok": true}`, nil
		},
	}

	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{gen}, WithMaxIterations(2))
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "refine forever")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Iterations, "max_iterations forces finalize despite the verdict")
	assert.Equal(t, int32(6), gen.callCount.Load(), "three calls per pass, two passes")
	assert.Len(t, result.Messages, 6, "message log accumulates across passes")
}

func TestExecutor_FanInWaitsForLastUpstream(t *testing.T) {
	t.Parallel()

	var fanInRuns atomic.Int32
	fast := func(ctx context.Context, state State) (State, error) {
		return State{StateKeySpecialistResults: map[string]string{"fast": "f"}}, nil
	}
	slow := func(ctx context.Context, state State) (State, error) {
		time.Sleep(50 * time.Millisecond)
		return State{StateKeySpecialistResults: map[string]string{"slow": "s"}}, nil
	}
	var sawBoth bool
	fanIn := func(ctx context.Context, state State) (State, error) {
		fanInRuns.Add(1)
		results := resultsFromState(state)
		_, hasFast := results["fast"]
		_, hasSlow := results["slow"]
		sawBoth = hasFast && hasSlow
		return nil, nil
	}

	graph, err := NewGraphBuilder(SwarmStateSchema()).
		AddNode("fast", NodeKindSpecialist, fast).
		AddNode("slow", NodeKindSpecialist, slow).
		AddNode("fan-in", NodeKindSupervisor, fanIn).
		AddAssemblerNode("assembler", nil).
		SetEntryPoints("fast", "slow").
		AddEdge("fast", "fan-in").
		AddEdge("slow", "fan-in").
		AddEdge("fan-in", "assembler").
		Compile()
	require.NoError(t, err)

	executor, err := NewExecutor(graph)
	require.NoError(t, err)
	_, err = executor.Execute(context.Background(), State{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), fanInRuns.Load(), "fan-in node admitted exactly once")
	assert.True(t, sawBoth, "fan-in must observe both upstream results")
}

func TestExecutor_MessagesInterleaveByCompletion(t *testing.T) {
	t.Parallel()

	slowFirst := func(ctx context.Context, state State) (State, error) {
		time.Sleep(50 * time.Millisecond)
		return State{StateKeyMessages: []Message{{Agent: "slow"}}}, nil
	}
	quick := func(ctx context.Context, state State) (State, error) {
		return State{StateKeyMessages: []Message{{Agent: "quick"}}}, nil
	}

	graph, err := NewGraphBuilder(SwarmStateSchema()).
		AddNode("slow", NodeKindSpecialist, slowFirst).
		AddNode("quick", NodeKindSpecialist, quick).
		AddAssemblerNode("assembler", nil).
		SetEntryPoints("slow", "quick").
		AddEdge("slow", "assembler").
		AddEdge("quick", "assembler").
		Compile()
	require.NoError(t, err)

	executor, err := NewExecutor(graph)
	require.NoError(t, err)
	final, err := executor.Execute(context.Background(), State{})
	require.NoError(t, err)

	messages := final[StateKeyMessages].([]Message)
	require.Len(t, messages, 2)
	assert.Equal(t, "quick", messages[0].Agent, "completion order, not declaration order")
	assert.Equal(t, "slow", messages[1].Agent)
}

func TestExecutor_NodeFailureAbortsRun(t *testing.T) {
	t.Parallel()

	boom := func(ctx context.Context, state State) (State, error) {
		return nil, &GenerationError{Node: "boom", Attempts: 3, Err: errors.New("quota")}
	}
	graph, err := NewGraphBuilder(SwarmStateSchema()).
		AddNode("boom", NodeKindSpecialist, boom).
		AddAssemblerNode("assembler", nil).
		SetEntryPoints("boom").
		AddEdge("boom", "assembler").
		Compile()
	require.NoError(t, err)

	executor, err := NewExecutor(graph)
	require.NoError(t, err)
	_, err = executor.Execute(context.Background(), State{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	assert.Contains(t, err.Error(), "boom")
}

func TestExecutor_CancellationStopsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	blocked := func(ctx context.Context, state State) (State, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	graph, err := NewGraphBuilder(SwarmStateSchema()).
		AddNode("blocked", NodeKindSpecialist, blocked).
		AddAssemblerNode("assembler", nil).
		SetEntryPoints("blocked").
		AddEdge("blocked", "assembler").
		Compile()
	require.NoError(t, err)

	executor, err := NewExecutor(graph)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := executor.Execute(ctx, State{})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not observe cancellation")
	}
}

func TestExecutor_StatusCompleteOnFinalState(t *testing.T) {
	t.Parallel()

	gen := &scriptedProvider{}
	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{gen})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.NotNil(t, result.Report)
	assert.Equal(t, 1, result.Iterations)
}

func TestExecutor_SupervisorGarbageVerdictFinalizes(t *testing.T) {
	t.Parallel()

	gen := &scriptedProvider{
		generate: func(system, user string) (string, error) {
			if system == "system-review" {
				return "I cannot answer in JSON today", nil
			}
			return `{"ok": true}`, nil
		},
	}
	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{gen}, WithMaxIterations(3))
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Iterations, "unparseable verdict defaults to finalize")

	// The supervisor message keeps the raw capture for diagnostics.
	var supervisorMsg *Message
	for i := range result.Messages {
		if result.Messages[i].Agent == "supervisor" {
			supervisorMsg = &result.Messages[i]
		}
	}
	require.NotNil(t, supervisorMsg)
	assert.False(t, supervisorMsg.ParseOK)
	raw, _ := supervisorMsg.Parsed["raw"].(string)
	assert.True(t, strings.Contains(raw, "cannot answer"))
}
