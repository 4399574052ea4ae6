// Package preset holds declarative swarm configurations. Each product
// module that used to carry its own hand-rolled graph collapses into a
// Config here: specialist prompt templates, the supervisor, and the
// report fold. Build turns a Config into a compiled graph with the
// standard topology (specialists fan out, supervisor fans in, assembler
// finishes, loop edge for refinement).
package preset

import (
	"fmt"

	"github.com/craftwell/swarmkit/swarm"
)

// SpecialistConfig declares one specialist in a swarm.
type SpecialistConfig struct {
	// ID is the node ID and the key its output lands under in
	// specialist results.
	ID string
	// Template is the specialist's prompt.
	Template swarm.PromptTemplate
	// After lists specialist IDs this one depends on. Empty means the
	// specialist runs in the entry fan-out.
	After []string
}

// Config is the declarative shape of a swarm.
type Config struct {
	// Name identifies the swarm in logs.
	Name string
	// Specialists run first, concurrently where dependencies allow.
	Specialists []SpecialistConfig
	// Supervisor reviews every specialist's output and produces the
	// verdict.
	Supervisor swarm.SupervisorTemplate
	// Assemble folds state into the report. Nil uses the default fold.
	Assemble swarm.ReportFunc
	// Retry overrides the default retry policy when non-nil.
	Retry *swarm.RetryPolicy
	// LoopPredicate overrides the default iterate decision when
	// non-nil.
	LoopPredicate swarm.LoopPredicate
}

// Node IDs shared by every preset-built graph.
const (
	SupervisorID = "supervisor"
	AssemblerID  = "assembler"
)

// Build compiles a Config into an executable graph.
func Build(cfg Config) (*swarm.Graph, error) {
	if len(cfg.Specialists) == 0 {
		return nil, fmt.Errorf("preset %s: at least one specialist is required", cfg.Name)
	}

	builder := swarm.NewGraphBuilder(swarm.SwarmStateSchema())
	if cfg.Retry != nil {
		builder.WithRetryPolicy(*cfg.Retry)
	}

	reviews := make([]string, 0, len(cfg.Specialists))
	var entry []string
	for _, specialist := range cfg.Specialists {
		builder.AddSpecialistNode(specialist.ID, specialist.Template)
		reviews = append(reviews, specialist.ID)
		if len(specialist.After) == 0 {
			entry = append(entry, specialist.ID)
		}
	}
	builder.AddSupervisorNode(SupervisorID, cfg.Supervisor, reviews...)
	builder.AddAssemblerNode(AssemblerID, cfg.Assemble)

	for _, specialist := range cfg.Specialists {
		for _, dep := range specialist.After {
			builder.AddEdge(dep, specialist.ID)
		}
		builder.AddEdge(specialist.ID, SupervisorID)
	}
	builder.AddEdge(SupervisorID, AssemblerID)
	builder.SetEntryPoints(entry...)
	builder.SetLoopEdge(AssemblerID, cfg.LoopPredicate)

	return builder.Compile()
}
