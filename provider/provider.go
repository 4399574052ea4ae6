// Package provider defines the generation-service contract the swarm
// engine consumes and the probe-based resolver that picks a backend at
// run start.
package provider

import "context"

// GenerateOptions carries the per-call tuning knobs the engine forwards
// to a backend. Nil fields mean "backend default".
type GenerateOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// Provider is a backend generation service. Implementations must be
// safe for concurrent use: the scheduler issues Generate calls from
// parallel node tasks against a single pinned provider.
type Provider interface {
	// Generate produces a completion for the given system prompt and
	// user message. It returns an error on transport or quota failures;
	// retrying is the caller's concern.
	Generate(ctx context.Context, system, user string, opts GenerateOptions) (string, error)

	// Probe issues a trivial request to check the backend is reachable.
	Probe(ctx context.Context) error

	// Name identifies the backend for logs and run results.
	Name() string
}

// Float64 returns a pointer to v, for building GenerateOptions literals.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for building GenerateOptions literals.
func Int(v int) *int { return &v }
