package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerUpsertByID(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Args: map[string]any{"q": "x"}, Status: StatusPending, Source: SourceDeltaStream})
	rec.Upsert(&ToolCall{ID: "call_1", Status: StatusCompleted, Content: "done", Source: SourceUpdateEvent})

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, map[string]any{"q": "x"}, calls[0].Args)
	assert.Equal(t, StatusCompleted, calls[0].Status)
	assert.Equal(t, "done", calls[0].Content)
}

func TestReconcilerStructuralMatchAdoptsID(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{Name: "search", Args: map[string]any{"q": "x"}, Status: StatusPending, Source: SourceAIMessage})
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Args: map[string]any{"q": "x"}, Status: StatusPending, Source: SourceDeltaStream})

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)

	// The adopted id now matches directly.
	rec.Upsert(&ToolCall{ID: "call_1", Status: StatusCompleted})
	calls = rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, StatusCompleted, calls[0].Status)
}

func TestReconcilerDistinctIDsSameShapeStayDistinct(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Args: map[string]any{"q": "x"}, Status: StatusPending})
	rec.Upsert(&ToolCall{ID: "call_2", Name: "search", Args: map[string]any{"q": "x"}, Status: StatusPending})

	assert.Len(t, rec.Calls(), 2)
	assert.Len(t, rec.Deduplicate(), 2)
}

func TestReconcilerStatusForwardOnly(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Status: StatusCompleted})
	rec.Upsert(&ToolCall{ID: "call_1", Status: StatusPending})

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, StatusCompleted, calls[0].Status)

	rec.Confirm("call_1")
	assert.Equal(t, StatusCompleted, rec.Calls()[0].Status)
}

func TestReconcilerMergeNeverWeakensNameOrArgs(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Args: map[string]any{"q": "x"}, Status: StatusPending})
	rec.Upsert(&ToolCall{ID: "call_1", Name: "", Args: nil, Status: StatusConfirmed})

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, map[string]any{"q": "x"}, calls[0].Args)
	assert.Equal(t, StatusConfirmed, calls[0].Status)
}

func TestResolveResultByID(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Status: StatusPending})

	call := rec.ResolveResult(nil, "call_1", "", "result text", StatusCompleted, nil)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, StatusCompleted, call.Status)
	assert.Equal(t, "result text", call.Content)
	assert.Len(t, rec.Calls(), 1)
}

func TestResolveResultFinalizesAccumulatingCall(t *testing.T) {
	rec := NewReconciler()
	acc := NewAccumulator()
	acc.OnDelta("call_1", "search", `{"q": "x"}`)

	call := rec.ResolveResult(acc, "call_1", "search", "ok", StatusCompleted, nil)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, map[string]any{"q": "x"}, call.Args)
	assert.Equal(t, StatusCompleted, call.Status)
	assert.False(t, acc.Has("call_1"))
}

func TestResolveResultByNameAmongUnresolved(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Status: StatusCompleted, Content: "earlier"})
	rec.Upsert(&ToolCall{ID: "call_2", Name: "search", Status: StatusPending})

	call := rec.ResolveResult(nil, "", "search", "now", StatusCompleted, nil)
	assert.Equal(t, "call_2", call.ID)
	assert.Equal(t, "now", call.Content)
	// The earlier resolved call is untouched.
	assert.Equal(t, "earlier", rec.Calls()[0].Content)
}

func TestResolveResultSingleRemainingUnresolved(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Status: StatusCompleted})
	rec.Upsert(&ToolCall{ID: "call_2", Name: "lookup", Status: StatusPending})

	call := rec.ResolveResult(nil, "", "", "out", StatusCompleted, nil)
	assert.Equal(t, "call_2", call.ID)
	assert.Equal(t, StatusCompleted, call.Status)
}

func TestResolveResultUnmatchedInsertsNewCall(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Status: StatusPending})
	rec.Upsert(&ToolCall{ID: "call_2", Name: "lookup", Status: StatusPending})

	// Two unresolved candidates and no id or name match: ambiguous, so a
	// new record is created rather than guessing.
	call := rec.ResolveResult(nil, "call_9", "other", "out", StatusCompleted, map[string]any{"k": "v"})
	assert.Equal(t, "call_9", call.ID)
	assert.Equal(t, "other", call.Name)
	assert.Equal(t, map[string]any{"k": "v"}, call.Args)
	assert.Len(t, rec.Calls(), 3)
}

func TestResolveResultAdoptsEventArgs(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Status: StatusPending})

	call := rec.ResolveResult(nil, "call_1", "search", "ok", StatusCompleted, map[string]any{"q": "x"})
	assert.Equal(t, map[string]any{"q": "x"}, call.Args)

	// Existing args win over event args.
	rec.Upsert(&ToolCall{ID: "call_2", Name: "lookup", Args: map[string]any{"a": "b"}, Status: StatusPending})
	call = rec.ResolveResult(nil, "call_2", "", "ok", StatusCompleted, map[string]any{"other": true})
	assert.Equal(t, map[string]any{"a": "b"}, call.Args)
}

func TestApplyEditReplacesArgs(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Args: map[string]any{"q": "old"}, Status: StatusPending})

	call := rec.ApplyEdit("call_1", map[string]any{"q": "new"})
	require.NotNil(t, call)
	assert.Equal(t, map[string]any{"q": "new"}, call.Args)
	assert.Equal(t, StatusConfirmed, call.Status)

	assert.Nil(t, rec.ApplyEdit("missing", nil))
}

func TestDeduplicateCollapsesAcrossChannels(t *testing.T) {
	rec := NewReconciler()
	rec.Upsert(&ToolCall{ID: "call_1", Name: "search", Args: map[string]any{"q": "x"}, Status: StatusPending, Source: SourceDeltaStream})
	rec.Upsert(&ToolCall{ID: "call_1", Status: StatusCompleted})
	rec.Upsert(&ToolCall{ID: "call_2", Name: "lookup", Status: StatusPending})

	out := rec.Deduplicate()
	require.Len(t, out, 2)
	assert.Equal(t, "call_1", out[0].ID)
	assert.Equal(t, StatusCompleted, out[0].Status)
	assert.Equal(t, "call_2", out[1].ID)
}
