package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g-pavlov/nalai-sub000/pkg/api"
)

func interruptedSession(t *testing.T, config api.InterruptConfig) *Engine {
	t.Helper()
	engine := NewEngine(NewSession())
	engine.Apply(&api.ToolCallComplete{ToolCalls: []api.CompletedToolCall{
		{ID: "t1", Name: "delete_file", Args: map[string]any{"path": "/tmp/x"}},
	}})
	engine.Apply(&api.Interrupt{Interrupts: []api.InterruptDetail{{
		ToolCallID:    "t1",
		ActionRequest: api.ActionRequest{Action: "delete_file", Args: map[string]any{"path": "/tmp/x"}},
		Config:        config,
	}}})
	require.Equal(t, StateInterrupt, engine.Session().State())
	return engine
}

func allowAll() api.InterruptConfig {
	return api.InterruptConfig{AllowAccept: true, AllowEdit: true, AllowRespond: true}
}

func TestBuildDecisionAccept(t *testing.T) {
	engine := interruptedSession(t, allowAll())

	item, err := engine.Session().BuildDecision(Decision{Kind: api.DecisionAccept})
	require.NoError(t, err)
	assert.Equal(t, api.InputTypeToolDecision, item.Type)
	assert.Equal(t, "t1", item.ToolCallID)
	assert.Equal(t, api.DecisionAccept, item.Decision)
}

func TestBuildDecisionEditValidatesArgs(t *testing.T) {
	engine := interruptedSession(t, allowAll())

	item, err := engine.Session().BuildDecision(Decision{
		Kind:     api.DecisionEdit,
		ArgsJSON: `{"path": "/tmp/y"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "/tmp/y"}, item.Args)

	_, err = engine.Session().BuildDecision(Decision{Kind: api.DecisionEdit, ArgsJSON: `{"path": `})
	assert.ErrorIs(t, err, ErrInvalidDecisionArgs)

	_, err = engine.Session().BuildDecision(Decision{Kind: api.DecisionEdit, ArgsJSON: `[1, 2]`})
	assert.ErrorIs(t, err, ErrInvalidDecisionArgs)
}

func TestBuildDecisionRejectWithMessageBecomesFeedback(t *testing.T) {
	engine := interruptedSession(t, allowAll())

	item, err := engine.Session().BuildDecision(Decision{
		Kind:    api.DecisionReject,
		Message: "use the archive instead",
	})
	require.NoError(t, err)
	assert.Equal(t, api.DecisionFeedback, item.Decision)
	assert.Equal(t, "use the archive instead", item.Message)

	// Plain rejection stays a rejection.
	item, err = engine.Session().BuildDecision(Decision{Kind: api.DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, api.DecisionReject, item.Decision)
	assert.Empty(t, item.Message)
}

func TestBuildDecisionConfigGating(t *testing.T) {
	engine := interruptedSession(t, api.InterruptConfig{AllowAccept: true})

	_, err := engine.Session().BuildDecision(Decision{Kind: api.DecisionEdit, ArgsJSON: `{}`})
	assert.ErrorIs(t, err, ErrDecisionNotAllowed)

	_, err = engine.Session().BuildDecision(Decision{Kind: api.DecisionFeedback, Message: "no"})
	assert.ErrorIs(t, err, ErrDecisionNotAllowed)

	_, err = engine.Session().BuildDecision(Decision{Kind: api.DecisionReject, Message: "no"})
	assert.ErrorIs(t, err, ErrDecisionNotAllowed)

	_, err = engine.Session().BuildDecision(Decision{Kind: api.DecisionAccept})
	assert.NoError(t, err)
}

func TestBuildDecisionRequiresActiveInterrupt(t *testing.T) {
	session := NewSession()
	_, err := session.BuildDecision(Decision{Kind: api.DecisionAccept})
	assert.ErrorIs(t, err, ErrNoActiveInterrupt)
}

func TestBuildDecisionUnknownKind(t *testing.T) {
	engine := interruptedSession(t, allowAll())
	_, err := engine.Session().BuildDecision(Decision{Kind: "shrug"})
	assert.Error(t, err)
}

func TestRegisterDecisionEdit(t *testing.T) {
	engine := interruptedSession(t, allowAll())
	session := engine.Session()

	item, err := session.BuildDecision(Decision{Kind: api.DecisionEdit, ArgsJSON: `{"path": "/tmp/y"}`})
	require.NoError(t, err)
	session.RegisterDecision(item)

	calls := session.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"path": "/tmp/y"}, calls[0].Args)
	assert.Equal(t, StatusConfirmed, calls[0].Status)
}

func TestRegisterDecisionAcceptAndReject(t *testing.T) {
	engine := interruptedSession(t, allowAll())
	session := engine.Session()

	session.RegisterDecision(api.InputItem{Type: api.InputTypeToolDecision, ToolCallID: "t1", Decision: api.DecisionAccept})
	assert.Equal(t, StatusConfirmed, session.ToolCalls()[0].Status)

	engine = interruptedSession(t, allowAll())
	session = engine.Session()
	session.RegisterDecision(api.InputItem{Type: api.InputTypeToolDecision, ToolCallID: "t1", Decision: api.DecisionReject})
	assert.Equal(t, StatusRejected, session.ToolCalls()[0].Status)
}

func TestRegisterDecisionSkipsUnknownTarget(t *testing.T) {
	engine := interruptedSession(t, allowAll())
	session := engine.Session()

	session.RegisterDecision(api.InputItem{ToolCallID: UnknownToolCallID, Decision: api.DecisionAccept})
	assert.Equal(t, StatusPending, session.ToolCalls()[0].Status)
}

func TestBeginResumeAndClearInterrupt(t *testing.T) {
	engine := interruptedSession(t, allowAll())
	session := engine.Session()

	session.BeginResume()
	assert.Equal(t, StateProgress, session.State())
	// The interrupt stays active until the resume stream terminates.
	assert.NotNil(t, session.ActiveInterrupt())

	session.ClearInterrupt()
	assert.Nil(t, session.ActiveInterrupt())
}

// TestInterruptResumeRoundTrip drives a whole review exchange: primary
// stream pauses on an interrupt, the user accepts, and the resume stream
// finishes the same session.
func TestInterruptResumeRoundTrip(t *testing.T) {
	engine := NewEngine(NewSession())

	err := engine.Consume(context.Background(), frameStream(
		`{"event": "response.created", "conversation_id": "conv_abc"}`,
		`{"event": "response.output_tool_calls.complete", "tool_calls": [{"id": "t1", "name": "send_email", "args": {"to": "ops"}}]}`,
		`{"event": "response.interrupt", "interrupts": [{"tool_call_id": "t1", "action_request": {"action": "send_email", "args": {"to": "ops"}}, "config": {"allow_accept": true, "allow_edit": true, "allow_respond": true}}]}`,
	))
	require.NoError(t, err)

	session := engine.Session()
	item, err := session.BuildDecision(Decision{Kind: api.DecisionAccept})
	require.NoError(t, err)

	session.RegisterDecision(item)
	session.BeginResume()

	err = engine.Consume(context.Background(), frameStream(
		`{"event": "response.tool", "tool_call_id": "t1", "tool_name": "send_email", "status": "success", "content": "sent"}`,
		`{"event": "response.output_text.delta", "content": "Email sent."}`,
		`{"event": "response.completed"}`,
	))
	require.NoError(t, err)

	snap := session.Snapshot()
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, "conv_abc", snap.ConversationID)
	assert.Equal(t, "Email sent.", snap.AccumulatedText)
	assert.Nil(t, snap.ActiveInterrupt)
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, StatusCompleted, snap.ToolCalls[0].Status)
	assert.Equal(t, "sent", snap.ToolCalls[0].Content)
}
