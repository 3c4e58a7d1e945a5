// Package stream implements the response protocol engine: an event-driven
// state machine that consumes decoded stream events, reconstructs tool
// calls from fragmented deltas, reconciles asynchronous execution results,
// and exposes the display state a rendering collaborator should show at
// each moment.
package stream

// DisplayState is what the user should see for the in-flight response.
type DisplayState string

const (
	StateIdle        DisplayState = "idle"
	StateProgress    DisplayState = "progress"
	StateToolCalling DisplayState = "tool_calling"
	StateModelOutput DisplayState = "model_output"
	StateInterrupt   DisplayState = "interrupt"
	StateComplete    DisplayState = "complete"
	StateError       DisplayState = "error"
)

// Label returns the display heading for a state.
func (s DisplayState) Label() string {
	switch s {
	case StateToolCalling:
		return "Tool Calling"
	case StateModelOutput:
		return "AI Response"
	case StateProgress:
		return "Processing"
	case StateInterrupt:
		return "Review Required"
	case StateComplete:
		return "Done"
	case StateError:
		return "Error"
	default:
		return ""
	}
}

// Terminal reports whether the state ends the response.
func (s DisplayState) Terminal() bool {
	return s == StateComplete || s == StateError
}

const (
	// StageModelGeneration is the terminal pre-completion workflow stage.
	// Text accumulated once this stage is reached is the user-facing
	// answer and survives the transition into model output.
	StageModelGeneration = "generate_model_response"

	// PlaceholderText is the sentinel an early internal stage emits in
	// place of genuine model output. It never counts as real text when
	// deciding whether to preserve accumulated content.
	PlaceholderText = "Processing..."
)

// Session is one agent turn's lifecycle: the single in-flight response,
// its accumulated text, and its authoritative tool call set. A session is
// reused across an interrupt's resume stream and replaced when a new user
// message starts the next response. Sessions are confined to one consumer
// goroutine; events within a stream are processed strictly in order.
type Session struct {
	conversationID  string
	state           DisplayState
	accumulatedText string
	isComplete      bool
	incomplete      bool
	errorMessage    string
	lastStage       string

	acc       *Accumulator
	rec       *Reconciler
	interrupt *InterruptRequest
	validator ArgsValidator
}

// NewSession creates an idle session awaiting its first event.
func NewSession() *Session {
	return &Session{
		state:     StateIdle,
		acc:       NewAccumulator(),
		rec:       NewReconciler(),
		validator: JSONArgsValidator{},
	}
}

// SetArgsValidator replaces the validator applied to edit decisions.
func (s *Session) SetArgsValidator(v ArgsValidator) {
	if v != nil {
		s.validator = v
	}
}

// ConversationID returns the validated conversation identifier, or the
// empty string before a created event supplied one.
func (s *Session) ConversationID() string { return s.conversationID }

// State returns the current display state.
func (s *Session) State() DisplayState { return s.state }

// IsComplete reports whether the response reached a terminal event.
func (s *Session) IsComplete() bool { return s.isComplete }

// ActiveInterrupt returns the pending human-review request, or nil.
func (s *Session) ActiveInterrupt() *InterruptRequest { return s.interrupt }

// ToolCalls returns the authoritative call set in creation order.
func (s *Session) ToolCalls() []ToolCall { return s.rec.Calls() }

// FinalToolCalls returns the call set with cross-channel duplicates
// collapsed, for terminal summaries.
func (s *Session) FinalToolCalls() []ToolCall { return s.rec.Deduplicate() }

// Snapshot is the observable engine state exposed to the rendering
// collaborator after every processed event.
type Snapshot struct {
	ConversationID  string
	State           DisplayState
	StateLabel      string
	AccumulatedText string
	ToolCalls       []ToolCall
	ActiveInterrupt *InterruptRequest
	IsComplete      bool
	// Incomplete marks a stream that ended without a terminal event;
	// distinct from both success and explicit error.
	Incomplete   bool
	ErrorMessage string
}

// Snapshot captures the current observable state. Once the response is
// complete the tool call set is deduplicated across channels.
func (s *Session) Snapshot() Snapshot {
	calls := s.rec.Calls()
	if s.isComplete {
		calls = s.rec.Deduplicate()
	}
	return Snapshot{
		ConversationID:  s.conversationID,
		State:           s.state,
		StateLabel:      s.state.Label(),
		AccumulatedText: s.accumulatedText,
		ToolCalls:       calls,
		ActiveInterrupt: s.interrupt,
		IsComplete:      s.isComplete,
		Incomplete:      s.incomplete,
		ErrorMessage:    s.errorMessage,
	}
}

// hasRealText reports whether accumulated text is genuine model output
// rather than empty or the internal placeholder sentinel.
func (s *Session) hasRealText() bool {
	return s.accumulatedText != "" && s.accumulatedText != PlaceholderText
}

// enterContentState transitions into tool_calling or model_output,
// clearing previously accumulated text unless the immediately preceding
// stage update was the terminal pre-completion stage and real text is
// already present. This keeps interleaved intermediate-task output from
// being concatenated with the user-facing answer.
func (s *Session) enterContentState(state DisplayState) {
	if s.state == state || s.state.Terminal() {
		return
	}
	if !(s.lastStage == StageModelGeneration && s.hasRealText()) {
		s.accumulatedText = ""
	}
	s.state = state
}

// failWith moves the session to the error state unless it already reached
// a terminal state.
func (s *Session) failWith(message string) {
	if s.state.Terminal() {
		return
	}
	s.state = StateError
	s.errorMessage = message
	s.isComplete = true
	s.interrupt = nil
}

// markIncomplete records a stream that ended without completed or error.
func (s *Session) markIncomplete() {
	if !s.state.Terminal() {
		s.incomplete = true
	}
}
