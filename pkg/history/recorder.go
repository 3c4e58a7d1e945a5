package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/g-pavlov/nalai-sub000/pkg/stream"
)

// maxTitleLen bounds the title derived from the first user message.
const maxTitleLen = 60

// Recorder turns finished session snapshots into stored history. It
// satisfies the client package's TurnRecorder seam.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// RecordTurn appends one finished turn and refreshes the conversation's
// metadata. Snapshots without a conversation identifier are skipped; the
// server never acknowledged the conversation, so there is nothing to
// attach the turn to.
func (r *Recorder) RecordTurn(ctx context.Context, conversationID, userText string, snap stream.Snapshot) error {
	if conversationID == "" {
		return nil
	}

	now := time.Now().UTC()
	turn := &Turn{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Timestamp:      now,
		UserText:       userText,
		ResponseText:   snap.AccumulatedText,
		ToolCalls:      snap.ToolCalls,
		Outcome:        turnOutcome(snap),
		ErrorMessage:   snap.ErrorMessage,
	}

	if err := r.store.AppendTurn(ctx, conversationID, turn); err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}

	meta, err := r.store.LoadConversation(ctx, conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		meta = &ConversationMeta{
			ID:        conversationID,
			Title:     deriveTitle(userText),
			CreatedAt: now,
		}
	} else if err != nil {
		return fmt.Errorf("loading conversation metadata: %w", err)
	}

	meta.UpdatedAt = now
	meta.TurnCount++
	if err := r.store.SaveConversation(ctx, meta); err != nil {
		return fmt.Errorf("saving conversation metadata: %w", err)
	}
	return nil
}

func turnOutcome(snap stream.Snapshot) string {
	switch {
	case snap.State == stream.StateError:
		return "error"
	case snap.Incomplete:
		return "incomplete"
	default:
		return "complete"
	}
}

func deriveTitle(userText string) string {
	if len(userText) <= maxTitleLen {
		return userText
	}
	return userText[:maxTitleLen] + "..."
}
