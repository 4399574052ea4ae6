package swarm

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/craftwell/swarmkit/log"
)

// RetryPolicy defines the reliability wrapper around generation calls.
// Attempts are counted inclusive of the first try: MaxAttempts=3 means
// one initial try plus up to two retries.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	// Jitter adds random noise in [0, delay) to each backoff. The base
	// schedule is deterministic with Jitter off.
	Jitter bool
}

// DefaultRetryPolicy is the engine-wide default: three attempts with
// exponential backoff starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     8 * time.Second,
	}
}

// NextDelay returns the backoff delay after the given attempt number.
// attempt starts at 1 for the first try.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1.0
	}
	delay := float64(p.InitialInterval)
	if attempt > 1 {
		delay *= math.Pow(factor, float64(attempt-1))
	}
	if p.MaxInterval > 0 {
		delay = math.Min(delay, float64(p.MaxInterval))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		// crypto/rand keeps gosec quiet about weak randomness.
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(d))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// CallWithRetry invokes fn up to policy.MaxAttempts times, sleeping the
// policy's backoff between attempts. On success it returns fn's result
// without further attempts. When the budget is exhausted it returns a
// *GenerationError for the given node carrying the last underlying
// error. Context cancellation interrupts both the call and the backoff
// wait.
func CallWithRetry(
	ctx context.Context,
	node string,
	policy RetryPolicy,
	fn func(ctx context.Context) (string, error),
) (string, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		delay := policy.NextDelay(attempt)
		log.Warnf("node %s attempt %d/%d failed, retrying in %s: %v",
			node, attempt, maxAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", &GenerationError{Node: node, Attempts: maxAttempts, Err: lastErr}
}
