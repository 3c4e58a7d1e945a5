package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/g-pavlov/nalai-sub000/pkg/api"
	"github.com/g-pavlov/nalai-sub000/pkg/observability"
	"github.com/g-pavlov/nalai-sub000/pkg/sse"
)

// Terminal stream errors.
var (
	// ErrIncompleteStream marks a stream that ended without a completed
	// or error event. Surfaced distinctly from both success and explicit
	// failure so callers can prompt a retry instead of showing blank
	// output.
	ErrIncompleteStream = errors.New("response incomplete")
	// ErrTransport wraps byte-source failures, which are fatal to the
	// current stream.
	ErrTransport = errors.New("transport failure")
)

// NotifyFunc receives the session snapshot after every processed event.
type NotifyFunc func(Snapshot)

// TransitionFunc receives discrete display-state transitions.
type TransitionFunc func(from, to DisplayState)

// Engine drives one session through a response stream. The same engine
// consumes both the primary stream and an interrupt's resume stream; the
// two are never interleaved. Engine is confined to a single goroutine.
type Engine struct {
	session    *Session
	notify     NotifyFunc
	transition TransitionFunc
}

// NewEngine creates an engine around the given session.
func NewEngine(session *Session) *Engine {
	return &Engine{session: session}
}

// OnSnapshot registers the rendering collaborator's callback.
func (e *Engine) OnSnapshot(fn NotifyFunc) { e.notify = fn }

// OnTransition registers a callback for display-state changes.
func (e *Engine) OnTransition(fn TransitionFunc) { e.transition = fn }

// Session returns the session the engine is driving.
func (e *Engine) Session() *Session { return e.session }

// StartTurn replaces the session for a new user message. The previous
// session's state is discarded; an interrupt/resume exchange must NOT
// start a new turn, it reuses the existing session.
func (e *Engine) StartTurn() *Session {
	validator := e.session.validator
	e.session = NewSession()
	e.session.validator = validator
	return e.session
}

// Consume reads frames until the stream terminates, decoding each and
// applying it to the session. Malformed or unrecognized frames are logged
// and dropped; the session continues. Returns nil on a terminal event,
// ErrIncompleteStream when the stream ends early, and a wrapped
// ErrTransport on byte-source failure. Context cancellation aborts
// consumption and leaves the session in whatever state it last reached.
func (e *Engine) Consume(ctx context.Context, frames *sse.Reader) error {
	defer func() {
		_ = frames.Close()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			// A stream pausing on a pending review is an expected end;
			// the caller resumes it with a decision.
			if e.session.state.Terminal() || e.session.state == StateInterrupt {
				return nil
			}
			e.session.markIncomplete()
			e.emit(e.session.state)
			return ErrIncompleteStream
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			from := e.session.state
			e.session.failWith(err.Error())
			e.emit(from)
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}

		observability.RecordFrame()
		ev, derr := api.Decode([]byte(frame))
		if derr != nil {
			observability.RecordDroppedFrame(derr)
			log.Printf("[stream] dropping frame: %v", derr)
			continue
		}

		e.Apply(ev)
	}
}

// Apply feeds one decoded event through the state machine and notifies
// observers.
func (e *Engine) Apply(ev api.Event) {
	s := e.session
	from := s.state
	observability.RecordEvent(string(ev.Kind()))

	switch ev := ev.(type) {
	case *api.Created:
		s.applyCreated(ev)
	case *api.StageUpdate:
		s.applyStageUpdate(ev)
	case *api.TextDelta:
		s.applyTextDelta(ev)
	case *api.ToolCallDelta:
		s.applyToolCallDelta(ev)
	case *api.ToolCallComplete:
		s.applyToolCallComplete(ev)
	case *api.Interrupt:
		s.applyInterrupt(ev)
	case *api.ToolResult:
		s.applyToolResult(ev)
	case *api.Completed:
		s.applyCompleted()
	case *api.ErrorEvent:
		s.failWith(ev.Message())
	}

	e.emit(from)
}

func (e *Engine) emit(from DisplayState) {
	if e.transition != nil && from != e.session.state {
		e.transition(from, e.session.state)
	}
	if e.notify != nil {
		e.notify(e.session.Snapshot())
	}
}

// applyCreated captures the conversation identifier once, and only when
// it carries the domain prefix. It is immutable for the session's
// lifetime.
func (s *Session) applyCreated(ev *api.Created) {
	if s.conversationID != "" {
		return
	}
	if !api.ValidConversationID(ev.ConversationID) {
		log.Printf("[stream] ignoring invalid conversation id %q", ev.ConversationID)
		return
	}
	s.conversationID = ev.ConversationID
}

// applyStageUpdate moves active display states to progress and resets
// accumulated text unless the stage is the terminal pre-completion one.
// Tool calls embedded in the update's messages are reconciled.
func (s *Session) applyStageUpdate(ev *api.StageUpdate) {
	switch s.state {
	case StateIdle, StateProgress, StateToolCalling, StateModelOutput:
		s.state = StateProgress
	}
	if ev.Task != StageModelGeneration {
		s.accumulatedText = ""
	}
	s.lastStage = ev.Task

	for _, msg := range ev.Messages {
		source := SourceUpdateEvent
		if msg.Role == "assistant" {
			source = SourceAIMessage
		}
		for _, tc := range msg.ToolCalls {
			s.rec.Upsert(&ToolCall{
				ID:     tc.ID,
				Name:   tc.Name,
				Args:   tc.Args,
				Status: StatusPending,
				Source: source,
			})
		}
	}
}

func (s *Session) applyTextDelta(ev *api.TextDelta) {
	if s.state.Terminal() {
		return
	}
	s.enterContentState(StateModelOutput)
	if s.accumulatedText == PlaceholderText {
		s.accumulatedText = ""
	}
	s.accumulatedText += ev.Content
}

func (s *Session) applyToolCallDelta(ev *api.ToolCallDelta) {
	if s.state.Terminal() {
		return
	}
	s.enterContentState(StateToolCalling)

	for _, frag := range ev.ToolCalls {
		if frag.ID == "" {
			log.Printf("[stream] dropping tool call fragment without id")
			continue
		}
		name := frag.Name
		argsFragment := ""
		if frag.FunctionCall != nil {
			if frag.FunctionCall.Name != "" {
				name = frag.FunctionCall.Name
			}
			argsFragment = frag.FunctionCall.Arguments
		}
		s.acc.OnDelta(frag.ID, name, argsFragment)
	}
}

// applyToolCallComplete takes fully-formed calls straight to the
// reconciler, discarding any in-flight accumulation for the same ids.
func (s *Session) applyToolCallComplete(ev *api.ToolCallComplete) {
	for _, tc := range ev.ToolCalls {
		s.acc.Discard(tc.ID)
		s.rec.Upsert(&ToolCall{
			ID:     tc.ID,
			Name:   tc.Name,
			Args:   tc.Args,
			Status: StatusPending,
			Source: SourceDeltaStream,
		})
	}
}

func (s *Session) applyInterrupt(ev *api.Interrupt) {
	if len(ev.Interrupts) == 0 {
		log.Printf("[stream] interrupt event without interrupts")
		return
	}
	if len(ev.Interrupts) > 1 {
		log.Printf("[stream] %d interrupts in one event, handling the first", len(ev.Interrupts))
	}
	observability.RecordInterrupt()
	s.captureInterrupt(ev.Interrupts[0])
	s.state = StateInterrupt
}

// applyToolResult reconciles an asynchronous execution result. It never
// transitions display state by itself.
func (s *Session) applyToolResult(ev *api.ToolResult) {
	status := normalizeResultStatus(ev.Status)
	call := s.rec.ResolveResult(s.acc, ev.ToolCallID, ev.ToolName, ev.Content, status, ev.Args)
	observability.RecordToolCall(string(call.Status))
}

// applyCompleted drains any calls still in the accumulator so partially
// streamed invocations are not lost, then terminates the response.
func (s *Session) applyCompleted() {
	for _, call := range s.acc.FinalizeAll() {
		s.rec.Upsert(call)
	}
	s.isComplete = true
	s.state = StateComplete
	s.interrupt = nil
}

// normalizeResultStatus maps wire status strings onto the call lifecycle.
func normalizeResultStatus(status string) Status {
	switch status {
	case "error", "failed":
		return StatusError
	case "rejected":
		return StatusRejected
	default:
		return StatusCompleted
	}
}
