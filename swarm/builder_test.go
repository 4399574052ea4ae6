package swarm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopNode(ctx context.Context, state State) (State, error) { return nil, nil }

func TestBuilder_CompileValidGraph(t *testing.T) {
	t.Parallel()

	graph := cardGameGraph(t)
	assert.ElementsMatch(t, []string{"designer-a", "designer-b"}, graph.EntryNodes())
	assert.ElementsMatch(t, []string{"designer-a", "designer-b"}, graph.Upstream("supervisor"))
	require.NotNil(t, graph.Loop())
	assert.Equal(t, "assembler", graph.Loop().From)
}

func TestBuilder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		build   func() *GraphBuilder
		wantErr string
	}{
		{
			name: "missing assembler",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					SetEntryPoints("a")
			},
			wantErr: "must have an assembler",
		},
		{
			name: "two assemblers",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddAssemblerNode("x", nil).
					AddAssemblerNode("y", nil).
					SetEntryPoints("a").
					AddEdge("a", "x").
					AddEdge("a", "y")
			},
			wantErr: "exactly one assembler",
		},
		{
			name: "no entry nodes",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddAssemblerNode("x", nil).
					AddEdge("a", "x")
			},
			wantErr: "at least one entry node",
		},
		{
			name: "duplicate node",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddNode("a", NodeKindSpecialist, noopNode)
			},
			wantErr: "already exists",
		},
		{
			name: "reserved node ID",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).AddNode(Start, NodeKindSpecialist, noopNode)
			},
			wantErr: "reserved",
		},
		{
			name: "unknown edge target",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddEdge("a", "ghost")
			},
			wantErr: "does not exist",
		},
		{
			name: "cycle outside loop edge",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddNode("b", NodeKindSpecialist, noopNode).
					AddAssemblerNode("x", nil).
					SetEntryPoints("a").
					AddEdge("a", "b").
					AddEdge("b", "a").
					AddEdge("b", "x")
			},
			wantErr: "cycle",
		},
		{
			name: "unreachable node",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddNode("island", NodeKindSpecialist, noopNode).
					AddAssemblerNode("x", nil).
					SetEntryPoints("a").
					AddEdge("a", "x").
					AddEdge("island", "x")
			},
			wantErr: "not reachable",
		},
		{
			name: "loop edge not from assembler",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddAssemblerNode("x", nil).
					SetEntryPoints("a").
					AddEdge("a", "x").
					SetLoopEdge("a", nil)
			},
			wantErr: "loop edge must leave the assembler",
		},
		{
			name: "assembler with outgoing edge",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddNode("a", NodeKindSpecialist, noopNode).
					AddAssemblerNode("x", nil).
					AddNode("after", NodeKindSpecialist, noopNode).
					SetEntryPoints("a").
					AddEdge("a", "x").
					AddEdge("x", "after")
			},
			wantErr: "must not have outgoing edges",
		},
		{
			name: "supervisor without reviews",
			build: func() *GraphBuilder {
				return NewGraphBuilder(nil).
					AddSupervisorNode("s", SupervisorTemplate{})
			},
			wantErr: "at least one specialist",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.build().Compile()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuilder_MustCompilePanicsOnInvalid(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		NewGraphBuilder(nil).MustCompile()
	})
}
