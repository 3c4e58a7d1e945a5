// Package history persists finished conversation turns so a session can
// be reviewed or resumed later. Backends cover a single process (memory),
// a single machine (file) and multi-node deployments (redis).
package history

import (
	"context"
	"errors"
	"time"

	"github.com/g-pavlov/nalai-sub000/pkg/stream"
)

// Storage errors.
var (
	// ErrConversationNotFound is returned when a conversation doesn't exist.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("history store is closed")
)

// Turn is one completed user/agent exchange. Turns are append-only and
// immutable once written.
type Turn struct {
	// ID is the unique identifier for this turn.
	ID string `json:"id"`
	// ConversationID links the turn to its conversation.
	ConversationID string `json:"conversation_id"`
	// Timestamp is when the turn finished.
	Timestamp time.Time `json:"timestamp"`
	// UserText is the message that started the turn.
	UserText string `json:"user_text"`
	// ResponseText is the final accumulated model output.
	ResponseText string `json:"response_text"`
	// ToolCalls is the deduplicated tool call set of the turn.
	ToolCalls []stream.ToolCall `json:"tool_calls,omitempty"`
	// Outcome records how the turn ended: complete, error or incomplete.
	Outcome string `json:"outcome"`
	// ErrorMessage carries the failure text for error outcomes.
	ErrorMessage string `json:"error_message,omitempty"`
}

// ConversationMeta summarizes one conversation for listing without
// loading its turns.
type ConversationMeta struct {
	// ID is the server-assigned conversation identifier.
	ID string `json:"id"`
	// Title is derived from the first user message.
	Title string `json:"title,omitempty"`
	// CreatedAt is when the first turn was recorded.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the last turn was recorded.
	UpdatedAt time.Time `json:"updated_at"`
	// TurnCount is the number of recorded turns.
	TurnCount int `json:"turn_count"`
}

// ListOptions provides filtering for conversation listing.
type ListOptions struct {
	// Limit caps the number of results.
	Limit int
	// Offset skips the first N results.
	Offset int
}

// Store abstracts conversation persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveConversation creates or updates conversation metadata.
	SaveConversation(ctx context.Context, meta *ConversationMeta) error

	// LoadConversation retrieves metadata by ID.
	// Returns ErrConversationNotFound if the conversation doesn't exist.
	LoadConversation(ctx context.Context, conversationID string) (*ConversationMeta, error)

	// DeleteConversation removes a conversation and all its turns.
	DeleteConversation(ctx context.Context, conversationID string) error

	// ListConversations returns stored conversations ordered by ID.
	ListConversations(ctx context.Context, opts ListOptions) ([]*ConversationMeta, error)

	// AppendTurn adds a turn to a conversation (append-only).
	AppendTurn(ctx context.Context, conversationID string, turn *Turn) error

	// LoadTurns retrieves all turns of a conversation in order.
	LoadTurns(ctx context.Context, conversationID string) ([]*Turn, error)

	// Close releases any resources held by the store.
	Close() error
}

// paginate applies offset and limit to a sorted ID slice.
func paginate(ids []string, opts ListOptions) []string {
	start := opts.Offset
	if start >= len(ids) {
		return nil
	}
	end := len(ids)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return ids[start:end]
}
