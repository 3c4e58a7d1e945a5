package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/g-pavlov/nalai-sub000/internal/observability"
	pubobs "github.com/g-pavlov/nalai-sub000/pkg/observability"
	"github.com/g-pavlov/nalai-sub000/pkg/sse"
	"github.com/g-pavlov/nalai-sub000/pkg/stream"
)

// TurnRecorder persists finished turns. Implemented by the history
// package; recording failures are logged, never fatal to the turn.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, conversationID, userText string, snap stream.Snapshot) error
}

// Conversation drives multi-turn exchanges with the agent: it owns the
// transport client and the protocol engine, carries the conversation
// identifier across turns, and runs the interrupt resume exchange on the
// interrupted session. Not safe for concurrent use; one conversation
// serves one user at a time.
type Conversation struct {
	client   *Client
	engine   *stream.Engine
	recorder TurnRecorder

	conversationID string
	lastUserText   string
}

// NewConversation creates a conversation over the given client.
func NewConversation(client *Client) *Conversation {
	return &Conversation{
		client: client,
		engine: stream.NewEngine(stream.NewSession()),
	}
}

// OnSnapshot registers the rendering callback invoked after every event.
func (c *Conversation) OnSnapshot(fn stream.NotifyFunc) { c.engine.OnSnapshot(fn) }

// OnTransition registers a callback for display-state changes.
func (c *Conversation) OnTransition(fn stream.TransitionFunc) { c.engine.OnTransition(fn) }

// SetRecorder attaches a turn recorder.
func (c *Conversation) SetRecorder(r TurnRecorder) { c.recorder = r }

// ID returns the server-assigned conversation identifier, empty before
// the first response's created event.
func (c *Conversation) ID() string { return c.conversationID }

// SetID continues an existing conversation instead of starting a new one.
func (c *Conversation) SetID(id string) { c.conversationID = id }

// Snapshot returns the current session snapshot.
func (c *Conversation) Snapshot() stream.Snapshot { return c.engine.Session().Snapshot() }

// ActiveInterrupt returns the pending review request, or nil.
func (c *Conversation) ActiveInterrupt() *stream.InterruptRequest {
	return c.engine.Session().ActiveInterrupt()
}

// Send runs one agent turn: it opens the response stream for the user
// message and consumes it to its end. On return the session is either
// terminal, paused on an interrupt, or failed; the snapshot callback has
// seen every intermediate state.
func (c *Conversation) Send(ctx context.Context, text string) error {
	ctx, span := observability.StartSpan(ctx, "conversation.Send")
	defer span.End()

	session := c.engine.StartTurn()
	c.lastUserText = text

	frames, err := c.client.SendMessage(ctx, c.conversationID, text)
	if err != nil {
		return fmt.Errorf("opening response stream: %w", err)
	}

	return c.consume(ctx, session, frames)
}

// SubmitDecision answers the active interrupt and consumes the resume
// stream on the same session. Validation failures surface before anything
// reaches the transport; a transport failure clears the interrupt so the
// conversation is not stuck awaiting a review the server no longer knows.
func (c *Conversation) SubmitDecision(ctx context.Context, d stream.Decision) error {
	ctx, span := observability.StartSpan(ctx, "conversation.SubmitDecision")
	defer span.End()

	session := c.engine.Session()
	item, err := session.BuildDecision(d)
	if err != nil {
		return err
	}

	frames, err := c.client.Resume(ctx, c.conversationID, item)
	if err != nil {
		session.ClearInterrupt()
		return fmt.Errorf("opening resume stream: %w", err)
	}

	session.RegisterDecision(item)
	session.BeginResume()

	return c.consume(ctx, session, frames)
}

// consume runs the engine over one stream, records the outcome metric and
// persists the turn when it reaches a terminal state.
func (c *Conversation) consume(ctx context.Context, session *stream.Session, frames *sse.Reader) error {
	start := time.Now()
	err := c.engine.Consume(ctx, frames)

	snap := session.Snapshot()
	if snap.ConversationID != "" {
		c.conversationID = snap.ConversationID
	}
	pubobs.RecordStream(streamOutcome(snap, err), time.Since(start))

	if c.recorder != nil && snap.State.Terminal() {
		if rerr := c.recorder.RecordTurn(ctx, c.conversationID, c.lastUserText, snap); rerr != nil {
			log.Printf("[client] recording turn: %v", rerr)
		}
	}
	return err
}

// streamOutcome labels a finished stream for metrics.
func streamOutcome(snap stream.Snapshot, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, stream.ErrIncompleteStream):
		return "incomplete"
	case errors.Is(err, stream.ErrTransport):
		return "transport_error"
	case snap.State == stream.StateInterrupt:
		return "interrupt"
	case snap.State == stream.StateError:
		return "error"
	default:
		return "complete"
	}
}
