package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore persists history as one JSON file per conversation under a
// base directory. Writes go through a temp file and rename so a crash
// never leaves a half-written conversation behind.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	closed bool
}

// conversationFile is the on-disk layout of one conversation.
type conversationFile struct {
	Meta  ConversationMeta `json:"meta"`
	Turns []*Turn          `json:"turns"`
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("history directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(conversationID string) string {
	return filepath.Join(s.dir, conversationID+".json")
}

func (s *FileStore) read(conversationID string) (*conversationFile, error) {
	data, err := os.ReadFile(s.path(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	var cf conversationFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	return &cf, nil
}

func (s *FileStore) write(conversationID string, cf *conversationFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}
	tmp := s.path(conversationID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing conversation: %w", err)
	}
	return os.Rename(tmp, s.path(conversationID))
}

// SaveConversation creates or updates conversation metadata.
func (s *FileStore) SaveConversation(_ context.Context, meta *ConversationMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	cf, err := s.read(meta.ID)
	if errors.Is(err, ErrConversationNotFound) {
		cf = &conversationFile{}
	} else if err != nil {
		return err
	}
	cf.Meta = *meta
	return s.write(meta.ID, cf)
}

// LoadConversation retrieves metadata by ID.
func (s *FileStore) LoadConversation(_ context.Context, conversationID string) (*ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	cf, err := s.read(conversationID)
	if err != nil {
		return nil, err
	}
	meta := cf.Meta
	return &meta, nil
}

// DeleteConversation removes a conversation file.
func (s *FileStore) DeleteConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := os.Remove(s.path(conversationID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// ListConversations returns stored conversations ordered by ID.
func (s *FileStore) ListConversations(_ context.Context, opts ListOptions) ([]*ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing history directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)

	out := make([]*ConversationMeta, 0, len(ids))
	for _, id := range paginate(ids, opts) {
		cf, err := s.read(id)
		if err != nil {
			if errors.Is(err, ErrConversationNotFound) {
				continue
			}
			return nil, err
		}
		meta := cf.Meta
		out = append(out, &meta)
	}
	return out, nil
}

// AppendTurn adds a turn to a conversation.
func (s *FileStore) AppendTurn(_ context.Context, conversationID string, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	cf, err := s.read(conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		cf = &conversationFile{Meta: ConversationMeta{ID: conversationID}}
	} else if err != nil {
		return err
	}

	copied := *turn
	cf.Turns = append(cf.Turns, &copied)
	return s.write(conversationID, cf)
}

// LoadTurns retrieves all turns of a conversation in order.
func (s *FileStore) LoadTurns(_ context.Context, conversationID string) ([]*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	cf, err := s.read(conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cf.Turns, nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
