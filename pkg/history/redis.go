package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis, for history shared across
// machines.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all history keys (default: "nalai:history:").
	Prefix string
	// TTL is the conversation expiry duration (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

const defaultRedisPrefix = "nalai:history:"

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient creates a store from an existing client. Useful
// for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) metaKey(conversationID string) string {
	return s.prefix + "meta:" + conversationID
}

func (s *RedisStore) turnsKey(conversationID string) string {
	return s.prefix + "turns:" + conversationID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "conversations"
}

func (s *RedisStore) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveConversation creates or updates conversation metadata.
func (s *RedisStore) SaveConversation(ctx context.Context, meta *ConversationMeta) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.metaKey(meta.ID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), meta.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// LoadConversation retrieves metadata by ID.
func (s *RedisStore) LoadConversation(ctx context.Context, conversationID string) (*ConversationMeta, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.metaKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var meta ConversationMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// DeleteConversation removes a conversation and all its turns.
func (s *RedisStore) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.metaKey(conversationID))
	pipe.Del(ctx, s.turnsKey(conversationID))
	pipe.SRem(ctx, s.indexKey(), conversationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// ListConversations returns stored conversations ordered by ID.
func (s *RedisStore) ListConversations(ctx context.Context, opts ListOptions) ([]*ConversationMeta, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	// Redis sets are unordered; sort for deterministic pagination.
	sort.Strings(ids)

	out := make([]*ConversationMeta, 0, len(ids))
	for _, id := range paginate(ids, opts) {
		meta, err := s.LoadConversation(ctx, id)
		if err != nil {
			if errors.Is(err, ErrConversationNotFound) {
				// Conversation expired, clean up the index.
				s.client.SRem(ctx, s.indexKey(), id)
				continue
			}
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// AppendTurn adds a turn to a conversation.
func (s *RedisStore) AppendTurn(ctx context.Context, conversationID string, turn *Turn) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.turnsKey(conversationID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.turnsKey(conversationID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// LoadTurns retrieves all turns of a conversation in order.
func (s *RedisStore) LoadTurns(ctx context.Context, conversationID string) ([]*Turn, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	items, err := s.client.LRange(ctx, s.turnsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}

	turns := make([]*Turn, 0, len(items))
	for _, item := range items {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, &turn)
	}
	return turns, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
