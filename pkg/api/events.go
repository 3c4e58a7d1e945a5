// Package api defines the nalai wire protocol: the closed set of events
// arriving on a response SSE stream and the request bodies the client
// sends to open one.
package api

import "strings"

// Kind identifies one of the event kinds carried by a response stream.
type Kind string

const (
	KindCreated          Kind = "response.created"
	KindStageUpdate      Kind = "response.update"
	KindTextDelta        Kind = "response.output_text.delta"
	KindToolCallDelta    Kind = "response.output_tool_calls.delta"
	KindToolCallComplete Kind = "response.output_tool_calls.complete"
	KindInterrupt        Kind = "response.interrupt"
	KindToolResult       Kind = "response.tool"
	KindCompleted        Kind = "response.completed"
	KindError            Kind = "response.error"
)

// Event is the closed union of decoded stream events. Only types in this
// package implement it.
type Event interface {
	Kind() Kind
}

// Created opens a response and assigns its conversation identifier.
type Created struct {
	ConversationID string `json:"conversation_id"`
}

func (Created) Kind() Kind { return KindCreated }

// UpdateMessage is one conversation message embedded in a stage update.
// Assistant messages may carry fully-formed tool calls.
type UpdateMessage struct {
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	ToolCalls []CompletedToolCall `json:"tool_calls,omitempty"`
}

// StageUpdate reports workflow progress: the task the agent is working on
// and the conversation messages produced so far.
type StageUpdate struct {
	Task     string          `json:"task"`
	Messages []UpdateMessage `json:"messages"`
}

func (StageUpdate) Kind() Kind { return KindStageUpdate }

// TextDelta carries an incremental fragment of model output text.
type TextDelta struct {
	Content string `json:"content"`
}

func (TextDelta) Kind() Kind { return KindTextDelta }

// FunctionCall holds the partial name/arguments text of a streamed tool
// call. Argument fragments are substrings of one JSON document and are
// not individually valid JSON.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallFragment is one partial tool call inside a delta event, keyed
// by a call identifier stable across fragments.
type ToolCallFragment struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// ToolCallDelta streams tool call construction.
type ToolCallDelta struct {
	ToolCalls []ToolCallFragment `json:"tool_calls"`
}

func (ToolCallDelta) Kind() Kind { return KindToolCallDelta }

// CompletedToolCall is a fully-formed tool invocation delivered without
// delta assembly.
type CompletedToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolCallComplete delivers finalized tool calls.
type ToolCallComplete struct {
	ToolCalls []CompletedToolCall `json:"tool_calls"`
}

func (ToolCallComplete) Kind() Kind { return KindToolCallComplete }

// ActionRequest names the tool invocation a human is asked to review.
type ActionRequest struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

// InterruptConfig lists the decisions the server accepts for a review.
type InterruptConfig struct {
	AllowAccept  bool `json:"allow_accept"`
	AllowEdit    bool `json:"allow_edit"`
	AllowRespond bool `json:"allow_respond"`
}

// InterruptDetail is one pending human-review request.
type InterruptDetail struct {
	ToolCallID    string          `json:"tool_call_id,omitempty"`
	ActionRequest ActionRequest   `json:"action_request"`
	Config        InterruptConfig `json:"config"`
	Description   string          `json:"description"`
}

// Interrupt pauses the response until a review decision is submitted.
type Interrupt struct {
	Interrupts []InterruptDetail `json:"interrupts"`
}

func (Interrupt) Kind() Kind { return KindInterrupt }

// ToolResult reports the asynchronous outcome of a tool execution. Args
// may carry corrected arguments that predate the authoritative store,
// e.g. after an interrupt edit.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Status     string         `json:"status"`
	Content    string         `json:"content"`
	Args       map[string]any `json:"args,omitempty"`
}

func (ToolResult) Kind() Kind { return KindToolResult }

// Completed terminates a response successfully.
type Completed struct{}

func (Completed) Kind() Kind { return KindCompleted }

// ErrorEvent terminates a response with a server-reported failure. The
// message arrives in either the error or the detail field depending on
// server version.
type ErrorEvent struct {
	Err    string `json:"error"`
	Detail string `json:"detail"`
}

func (ErrorEvent) Kind() Kind { return KindError }

// Message returns the human-readable error text.
func (e ErrorEvent) Message() string {
	if e.Err != "" {
		return e.Err
	}
	if e.Detail != "" {
		return e.Detail
	}
	return "unknown server error"
}

// conversationIDPrefix is the domain prefix all valid conversation
// identifiers carry.
const conversationIDPrefix = "conv_"

// ValidConversationID reports whether id is a well-formed, domain-prefixed
// conversation identifier.
func ValidConversationID(id string) bool {
	return len(id) > len(conversationIDPrefix) && strings.HasPrefix(id, conversationIDPrefix)
}
