package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_FencedJSON(t *testing.T) {
	t.Parallel()

	res := Extract("```json\n{\"a\":1}\n```")
	require.True(t, res.OK)
	assert.Equal(t, float64(1), res.Payload["a"])
}

func TestExtract_BareFence(t *testing.T) {
	t.Parallel()

	res := Extract("```\n{\"ready\": true}\n```")
	require.True(t, res.OK)
	v, ok := Bool(res.Payload, "ready")
	require.True(t, ok)
	assert.True(t, v)
}

func TestExtract_PlainJSON(t *testing.T) {
	t.Parallel()

	res := Extract(`{"name":"ok","count":2}`)
	require.True(t, res.OK)
	name, ok := String(res.Payload, "name")
	require.True(t, ok)
	assert.Equal(t, "ok", name)
}

func TestExtract_RepairsSloppyJSON(t *testing.T) {
	t.Parallel()

	// Single quotes and an unquoted key are common model output defects.
	res := Extract(`{name: 'John', "age": 30}`)
	require.True(t, res.OK)
	assert.Equal(t, "John", res.Payload["name"])
}

func TestExtract_GarbageFallsBackToRawCapture(t *testing.T) {
	t.Parallel()

	res := Extract("not json at all")
	require.False(t, res.OK)
	assert.Equal(t, "not json at all", res.Payload[KeyRaw])
}

func TestExtract_RawCaptureTruncated(t *testing.T) {
	t.Parallel()

	long := "x " + strings.Repeat("y", 2000)
	res := Extract(long)
	require.False(t, res.OK)
	raw, ok := String(res.Payload, KeyRaw)
	require.True(t, ok)
	assert.Len(t, raw, rawCaptureLimit)
}

func TestExtract_NeverPanics(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "```", "``````", "```json", "{", "[1,2,3]", "null"} {
		assert.NotPanics(t, func() { Extract(input) }, "input %q", input)
	}
}

func TestAccessors_NilPayload(t *testing.T) {
	t.Parallel()

	_, ok := Bool(nil, "k")
	assert.False(t, ok)
	_, ok = String(nil, "k")
	assert.False(t, ok)
}

func TestAccessors_WrongType(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"flag": "yes", "text": 3}
	_, ok := Bool(payload, "flag")
	assert.False(t, ok)
	_, ok = String(payload, "text")
	assert.False(t, ok)
}
