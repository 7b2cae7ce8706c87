package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldone-ai/assistant/internal/log"
	"github.com/welldone-ai/assistant/internal/testutil"
)

func TestStore_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := New(db.Pool, 30*24*time.Hour, log.NewNop())

	conv, err := store.Create(ctx, "user-42", map[string]any{"user_name": "Alice"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, conv.ID)
	assert.False(t, conv.ExpiresAt.IsZero())

	t.Run("append assigns increasing sequence numbers", func(t *testing.T) {
		first, err := store.Append(ctx, conv.ID, RoleUser, "How do I make borscht?", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Sequence)

		second, err := store.Append(ctx, conv.ID, RoleAssistant, "Start with beets.", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, second.Sequence)
	})

	t.Run("history returns ascending order", func(t *testing.T) {
		msgs, err := store.History(ctx, conv.ID, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, RoleUser, msgs[0].Role)
		assert.Equal(t, RoleAssistant, msgs[1].Role)
		assert.Less(t, msgs[0].Sequence, msgs[1].Sequence)
	})

	t.Run("history limit keeps the newest messages", func(t *testing.T) {
		for i := 0; i < 8; i++ {
			_, err := store.Append(ctx, conv.ID, RoleUser, fmt.Sprintf("turn %d", i), nil)
			require.NoError(t, err)
		}

		msgs, err := store.History(ctx, conv.ID, 3)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		// Still ascending, and covering the last three sequence numbers.
		assert.Equal(t, msgs[2].Sequence-2, msgs[0].Sequence)
		assert.Equal(t, "turn 7", msgs[2].Content)
	})

	t.Run("get returns stored metadata", func(t *testing.T) {
		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-42", got.UserID)
		assert.Equal(t, "Alice", got.Metadata["user_name"])
	})

	t.Run("append to missing conversation", func(t *testing.T) {
		_, err := store.Append(ctx, uuid.New(), RoleUser, "hello", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("system role accepted", func(t *testing.T) {
		msg, err := store.Append(ctx, conv.ID, RoleSystem, "You are a cooking assistant.", nil)
		require.NoError(t, err)
		assert.Equal(t, RoleSystem, msg.Role)
	})

	t.Run("invalid role rejected", func(t *testing.T) {
		_, err := store.Append(ctx, conv.ID, "moderator", "nope", nil)
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("delete cascades to messages", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, conv.ID))

		_, err := store.Get(ctx, conv.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		msgs, err := store.History(ctx, conv.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("delete missing conversation", func(t *testing.T) {
		assert.ErrorIs(t, store.Delete(ctx, uuid.New()), ErrNotFound)
	})

	t.Run("prune removes expired conversations", func(t *testing.T) {
		expired := New(db.Pool, -time.Hour, log.NewNop())
		old, err := expired.Create(ctx, "user-old", nil)
		require.NoError(t, err)

		pruned, err := store.PruneExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pruned, int64(1))

		_, err = store.Get(ctx, old.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
