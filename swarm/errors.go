package swarm

import (
	"errors"
	"fmt"
)

// ErrGenerationFailed is the sentinel matched by errors.Is when a
// generation call exhausted its retry budget.
var ErrGenerationFailed = errors.New("generation failed")

// GenerationError reports that a specific node's generation call failed
// after all retry attempts. It aborts the run; callers receive it from
// Run rather than a partial report.
type GenerationError struct {
	// Node is the graph node whose call failed.
	Node string
	// Attempts is the number of calls made before giving up.
	Attempts int
	// Err is the last underlying error.
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("node %s: generation failed after %d attempts: %v", e.Node, e.Attempts, e.Err)
}

// Unwrap exposes the underlying error chain and lets
// errors.Is(err, ErrGenerationFailed) match.
func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Err}
}
