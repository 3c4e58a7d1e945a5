package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps history in process memory. Useful for tests and for
// sessions that don't need persistence across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	meta   map[string]*ConversationMeta
	turns  map[string][]*Turn
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meta:  make(map[string]*ConversationMeta),
		turns: make(map[string][]*Turn),
	}
}

// SaveConversation creates or updates conversation metadata.
func (s *MemoryStore) SaveConversation(_ context.Context, meta *ConversationMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	copied := *meta
	s.meta[meta.ID] = &copied
	return nil
}

// LoadConversation retrieves metadata by ID.
func (s *MemoryStore) LoadConversation(_ context.Context, conversationID string) (*ConversationMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	meta, ok := s.meta[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := *meta
	return &copied, nil
}

// DeleteConversation removes a conversation and its turns.
func (s *MemoryStore) DeleteConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.meta, conversationID)
	delete(s.turns, conversationID)
	return nil
}

// ListConversations returns stored conversations ordered by ID.
func (s *MemoryStore) ListConversations(_ context.Context, opts ListOptions) ([]*ConversationMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(s.meta))
	for id := range s.meta {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*ConversationMeta, 0, len(ids))
	for _, id := range paginate(ids, opts) {
		copied := *s.meta[id]
		out = append(out, &copied)
	}
	return out, nil
}

// AppendTurn adds a turn to a conversation.
func (s *MemoryStore) AppendTurn(_ context.Context, conversationID string, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	copied := *turn
	s.turns[conversationID] = append(s.turns[conversationID], &copied)
	return nil
}

// LoadTurns retrieves all turns of a conversation in order.
func (s *MemoryStore) LoadTurns(_ context.Context, conversationID string) ([]*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	turns := s.turns[conversationID]
	out := make([]*Turn, len(turns))
	for i, turn := range turns {
		copied := *turn
		out[i] = &copied
	}
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
