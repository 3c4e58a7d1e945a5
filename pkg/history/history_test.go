package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g-pavlov/nalai-sub000/pkg/stream"
)

// newRedisTestStore wires a store to an in-process miniredis.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRedisStoreFromClient(client, "test:history:", 0)
}

// storeUnderTest names one backend for the shared conformance cases.
type storeUnderTest struct {
	name string
	make func(t *testing.T) Store
}

func allStores() []storeUnderTest {
	return []storeUnderTest{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"file", func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) Store { return newRedisTestStore(t) }},
	}
}

func TestStoreSaveAndLoadConversation(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			meta := &ConversationMeta{
				ID:        "conv_a",
				Title:     "weather chat",
				CreatedAt: time.Now().UTC().Truncate(time.Second),
				TurnCount: 1,
			}
			require.NoError(t, store.SaveConversation(ctx, meta))

			got, err := store.LoadConversation(ctx, "conv_a")
			require.NoError(t, err)
			assert.Equal(t, "weather chat", got.Title)
			assert.Equal(t, 1, got.TurnCount)

			_, err = store.LoadConversation(ctx, "conv_missing")
			assert.ErrorIs(t, err, ErrConversationNotFound)
		})
	}
}

func TestStoreAppendAndLoadTurns(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			first := &Turn{ID: "turn_1", ConversationID: "conv_a", UserText: "hi", ResponseText: "hello"}
			second := &Turn{ID: "turn_2", ConversationID: "conv_a", UserText: "more", ToolCalls: []stream.ToolCall{
				{ID: "t1", Name: "search", Status: stream.StatusCompleted},
			}}
			require.NoError(t, store.AppendTurn(ctx, "conv_a", first))
			require.NoError(t, store.AppendTurn(ctx, "conv_a", second))

			turns, err := store.LoadTurns(ctx, "conv_a")
			require.NoError(t, err)
			require.Len(t, turns, 2)
			assert.Equal(t, "turn_1", turns[0].ID)
			assert.Equal(t, "turn_2", turns[1].ID)
			require.Len(t, turns[1].ToolCalls, 1)
			assert.Equal(t, "search", turns[1].ToolCalls[0].Name)
		})
	}
}

func TestStoreListAndPagination(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			for _, id := range []string{"conv_c", "conv_a", "conv_b"} {
				require.NoError(t, store.SaveConversation(ctx, &ConversationMeta{ID: id}))
			}

			all, err := store.ListConversations(ctx, ListOptions{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "conv_a", all[0].ID)
			assert.Equal(t, "conv_c", all[2].ID)

			page, err := store.ListConversations(ctx, ListOptions{Limit: 1, Offset: 1})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "conv_b", page[0].ID)

			empty, err := store.ListConversations(ctx, ListOptions{Offset: 10})
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStoreDeleteConversation(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			require.NoError(t, store.SaveConversation(ctx, &ConversationMeta{ID: "conv_a"}))
			require.NoError(t, store.AppendTurn(ctx, "conv_a", &Turn{ID: "turn_1"}))
			require.NoError(t, store.DeleteConversation(ctx, "conv_a"))

			_, err := store.LoadConversation(ctx, "conv_a")
			assert.ErrorIs(t, err, ErrConversationNotFound)

			turns, err := store.LoadTurns(ctx, "conv_a")
			require.NoError(t, err)
			assert.Empty(t, turns)

			list, err := store.ListConversations(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestStoreClosed(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			require.NoError(t, store.Close())

			err := store.SaveConversation(context.Background(), &ConversationMeta{ID: "conv_a"})
			assert.ErrorIs(t, err, ErrStoreClosed)

			_, err = store.LoadTurns(context.Background(), "conv_a")
			assert.ErrorIs(t, err, ErrStoreClosed)
		})
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.SaveConversation(ctx, &ConversationMeta{ID: "conv_a", Title: "kept"}))
	require.NoError(t, first.AppendTurn(ctx, "conv_a", &Turn{ID: "turn_1", UserText: "hi"}))
	require.NoError(t, first.Close())

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	meta, err := second.LoadConversation(ctx, "conv_a")
	require.NoError(t, err)
	assert.Equal(t, "kept", meta.Title)

	turns, err := second.LoadTurns(ctx, "conv_a")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hi", turns[0].UserText)
}

func TestRecorderRecordTurn(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := context.Background()

	snap := stream.Snapshot{
		ConversationID:  "conv_a",
		State:           stream.StateComplete,
		AccumulatedText: "The forecast is sunny.",
		ToolCalls: []stream.ToolCall{
			{ID: "t1", Name: "search", Status: stream.StatusCompleted},
		},
		IsComplete: true,
	}
	require.NoError(t, rec.RecordTurn(ctx, "conv_a", "what's the weather", snap))
	require.NoError(t, rec.RecordTurn(ctx, "conv_a", "and tomorrow?", snap))

	turns, err := store.LoadTurns(ctx, "conv_a")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.NotEmpty(t, turns[0].ID)
	assert.NotEqual(t, turns[0].ID, turns[1].ID)
	assert.Equal(t, "what's the weather", turns[0].UserText)
	assert.Equal(t, "The forecast is sunny.", turns[0].ResponseText)
	assert.Equal(t, "complete", turns[0].Outcome)

	meta, err := store.LoadConversation(ctx, "conv_a")
	require.NoError(t, err)
	assert.Equal(t, "what's the weather", meta.Title)
	assert.Equal(t, 2, meta.TurnCount)
}

func TestRecorderOutcomes(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := context.Background()

	require.NoError(t, rec.RecordTurn(ctx, "conv_a", "q", stream.Snapshot{
		State: stream.StateError, ErrorMessage: "overloaded",
	}))
	require.NoError(t, rec.RecordTurn(ctx, "conv_a", "q", stream.Snapshot{
		State: stream.StateProgress, Incomplete: true,
	}))

	turns, err := store.LoadTurns(ctx, "conv_a")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "error", turns[0].Outcome)
	assert.Equal(t, "overloaded", turns[0].ErrorMessage)
	assert.Equal(t, "incomplete", turns[1].Outcome)
}

func TestRecorderSkipsMissingConversationID(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)

	require.NoError(t, rec.RecordTurn(context.Background(), "", "hi", stream.Snapshot{}))
	list, err := store.ListConversations(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
