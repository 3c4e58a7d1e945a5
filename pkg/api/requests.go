package api

// Decision values accepted on a tool_decision input item.
const (
	DecisionAccept   = "accept"
	DecisionEdit     = "edit"
	DecisionReject   = "reject"
	DecisionFeedback = "feedback"
)

// Input item types.
const (
	InputTypeMessage      = "message"
	InputTypeToolDecision = "tool_decision"
)

// StreamModeFull requests the full event stream for a response.
const StreamModeFull = "full"

// InputItem is one element of a stream request's input array: either a
// user message or a tool decision resuming an interrupted response.
type InputItem struct {
	Type       string         `json:"type"`
	Role       string         `json:"role,omitempty"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// StreamRequest is the body of a POST that opens a response SSE stream.
type StreamRequest struct {
	ConversationID string      `json:"conversation_id,omitempty"`
	Input          []InputItem `json:"input"`
	Stream         string      `json:"stream"`
}

// NewMessageRequest builds the request starting a new agent turn. An empty
// conversationID starts a new conversation.
func NewMessageRequest(conversationID, content string) StreamRequest {
	return StreamRequest{
		ConversationID: conversationID,
		Input: []InputItem{{
			Type:    InputTypeMessage,
			Role:    "user",
			Content: content,
		}},
		Stream: StreamModeFull,
	}
}

// NewDecisionRequest builds the resume request carrying a human-review
// decision for a pending tool call.
func NewDecisionRequest(conversationID string, decision InputItem) StreamRequest {
	decision.Type = InputTypeToolDecision
	return StreamRequest{
		ConversationID: conversationID,
		Input:          []InputItem{decision},
		Stream:         StreamModeFull,
	}
}
