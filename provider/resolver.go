package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/craftwell/swarmkit/log"
)

// ErrUnavailable is the sentinel matched by errors.Is when every
// candidate backend failed its probe.
var ErrUnavailable = errors.New("no generation provider available")

// UnavailableError reports that resolution exhausted the candidate list.
// It records each candidate's probe failure for diagnostics.
type UnavailableError struct {
	// ProbeErrors maps candidate name to its probe failure, in no
	// particular order.
	ProbeErrors map[string]error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	parts := make([]string, 0, len(e.ProbeErrors))
	for name, err := range e.ProbeErrors {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return fmt.Sprintf("no generation provider available (%s)", strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, ErrUnavailable) match.
func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// Resolve probes candidates in priority order and returns the first one
// whose probe succeeds. Later candidates are never probed once a
// candidate passes, and the returned provider stays pinned for the rest
// of the run. If every probe fails, Resolve returns *UnavailableError.
func Resolve(ctx context.Context, candidates []Provider) (Provider, error) {
	probeErrors := make(map[string]error, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := candidate.Probe(ctx); err != nil {
			log.Warnf("provider %s failed probe: %v", candidate.Name(), err)
			probeErrors[candidate.Name()] = err
			continue
		}
		log.Debugf("pinned provider %s", candidate.Name())
		return candidate, nil
	}
	return nil, &UnavailableError{ProbeErrors: probeErrors}
}
