package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorAppendsArgFragments(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("call_1", "search", `{"qu`)
	acc.OnDelta("call_1", "", `ery": "weather`)
	acc.OnDelta("call_1", "", ` berlin"}`)

	call, ok := acc.Finalize("call_1")
	require.True(t, ok)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "search", call.Name)
	assert.Equal(t, map[string]any{"query": "weather berlin"}, call.Args)
	assert.Equal(t, StatusPending, call.Status)
	assert.Equal(t, SourceDeltaStream, call.Source)
}

func TestAccumulatorNameArrivesLate(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("call_1", "", `{"a":`)
	acc.OnDelta("call_1", "lookup", `1}`)

	call, ok := acc.Finalize("call_1")
	require.True(t, ok)
	assert.Equal(t, "lookup", call.Name)
	assert.Equal(t, map[string]any{"a": float64(1)}, call.Args)
}

func TestAccumulatorEmptyArgsBuffer(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("call_1", "ping", "")

	call, ok := acc.Finalize("call_1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{}, call.Args)
}

func TestAccumulatorMalformedArgsPreserved(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("call_1", "search", `{"query": "trunc`)

	call, ok := acc.Finalize("call_1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"raw_arguments": `{"query": "trunc`}, call.Args)
	assert.Equal(t, StatusPending, call.Status)
}

func TestAccumulatorInterleavedCalls(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("a", "first", `{"x"`)
	acc.OnDelta("b", "second", `{"y"`)
	acc.OnDelta("a", "", `: 1}`)
	acc.OnDelta("b", "", `: 2}`)

	first, ok := acc.Finalize("a")
	require.True(t, ok)
	second, ok := acc.Finalize("b")
	require.True(t, ok)

	assert.Equal(t, map[string]any{"x": float64(1)}, first.Args)
	assert.Equal(t, map[string]any{"y": float64(2)}, second.Args)
}

func TestAccumulatorFinalizeRemovesEntry(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("call_1", "search", `{}`)

	_, ok := acc.Finalize("call_1")
	require.True(t, ok)
	assert.False(t, acc.Has("call_1"))

	_, ok = acc.Finalize("call_1")
	assert.False(t, ok)
}

func TestAccumulatorDiscard(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("call_1", "search", `{}`)
	acc.Discard("call_1")

	assert.False(t, acc.Has("call_1"))
	assert.Empty(t, acc.FinalizeAll())

	// Discarding an unknown id is a no-op.
	acc.Discard("missing")
}

func TestAccumulatorFinalizeAllPreservesArrivalOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.OnDelta("c", "third", `{}`)
	acc.OnDelta("a", "first", `{}`)
	acc.OnDelta("b", "second", `{}`)

	calls := acc.FinalizeAll()
	require.Len(t, calls, 3)
	assert.Equal(t, "third", calls[0].Name)
	assert.Equal(t, "first", calls[1].Name)
	assert.Equal(t, "second", calls[2].Name)
	assert.False(t, acc.Has("a"))
}
