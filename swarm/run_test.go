package swarm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftwell/swarmkit/provider"
)

func TestRunner_ProviderUnavailable(t *testing.T) {
	t.Parallel()

	down1 := &scriptedProvider{name: "down1", probeErr: errors.New("timeout")}
	down2 := &scriptedProvider{name: "down2", probeErr: errors.New("refused")}

	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{down1, down2})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrUnavailable))
	assert.Equal(t, int32(0), down1.callCount.Load(), "no generation before resolution succeeds")
	assert.Equal(t, int32(0), down2.callCount.Load())
}

func TestRunner_PinsFirstHealthyCandidate(t *testing.T) {
	t.Parallel()

	down := &scriptedProvider{name: "primary", probeErr: errors.New("down")}
	up := &scriptedProvider{name: "fallback"}

	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{down, up})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Provider)
	assert.Equal(t, int32(3), up.callCount.Load(), "every node call lands on the pinned provider")
	assert.Equal(t, int32(0), down.callCount.Load())
}

func TestRunner_InjectorAugmentsSystemPrompt(t *testing.T) {
	t.Parallel()

	gen := &scriptedProvider{}
	inject := func(base, query string) string {
		return base + "\nContext for: " + query
	}
	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{gen}, WithInjector(inject))
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "card game")
	require.NoError(t, err)

	systems := gen.seenSystems()
	assert.Contains(t, systems, "system-a\nContext for: card game")
	assert.Contains(t, systems, "system-b\nContext for: card game")
	// The supervisor prompt is not injected.
	assert.Contains(t, systems, "system-review")
}

func TestRunner_PanickingInjectorFallsBackToBasePrompt(t *testing.T) {
	t.Parallel()

	gen := &scriptedProvider{}
	inject := func(base, query string) string {
		panic("broken injector")
	}
	runner, err := NewRunner(cardGameGraph(t), []provider.Provider{gen}, WithInjector(inject))
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "anything")
	require.NoError(t, err, "a failing injector must not abort the run")
	assert.Contains(t, gen.seenSystems(), "system-a")
	assert.NotNil(t, result.Report)
}

func TestRunner_GenerateOptionsForwarded(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen provider.GenerateOptions
	gen := &optionsProbe{onOptions: func(opts provider.GenerateOptions) {
		mu.Lock()
		seen = opts
		mu.Unlock()
	}}

	runner, err := NewRunner(
		cardGameGraph(t),
		[]provider.Provider{gen},
		WithGenerateOptions(provider.GenerateOptions{
			Temperature: provider.Float64(0.2),
			MaxTokens:   provider.Int(512),
		}),
	)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "anything")
	require.NoError(t, err)
	require.NotNil(t, seen.Temperature)
	assert.Equal(t, 0.2, *seen.Temperature)
	require.NotNil(t, seen.MaxTokens)
	assert.Equal(t, 512, *seen.MaxTokens)
}

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(nil, []provider.Provider{&scriptedProvider{}})
	assert.Error(t, err)

	_, err = NewRunner(cardGameGraph(t), nil)
	assert.Error(t, err)
}

// optionsProbe records the generate options it receives.
type optionsProbe struct {
	onOptions func(provider.GenerateOptions)
}

func (p *optionsProbe) Generate(ctx context.Context, system, user string, opts provider.GenerateOptions) (string, error) {
	p.onOptions(opts)
	return `{"needs_iteration": false}`, nil
}

func (p *optionsProbe) Probe(ctx context.Context) error { return nil }
func (p *optionsProbe) Name() string                    { return "options-probe" }
