package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runConversationStoreSuite checks the ConversationStore contract against any
// implementation.
func runConversationStoreSuite(t *testing.T, newStore func(t *testing.T) ConversationStore) {
	t.Run("FindOrCreateIsIdempotentAcrossOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c1, err := s.FindOrCreateConversation(ctx, "alice", "bob", "listing-1")
		require.NoError(t, err)
		c2, err := s.FindOrCreateConversation(ctx, "bob", "alice", "")
		require.NoError(t, err)

		assert.Equal(t, c1.ID, c2.ID)
		assert.Equal(t, []string{"alice", "bob"}, c2.Participants)
		assert.Equal(t, "listing-1", c2.ListingID, "existing conversation keeps its listing")
	})

	t.Run("FindOrCreateRejectsSelf", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindOrCreateConversation(context.Background(), "alice", " alice ", "")
		assert.ErrorIs(t, err, ErrInvalidParticipant)
		_, err = s.FindOrCreateConversation(context.Background(), "alice", "", "")
		assert.ErrorIs(t, err, ErrInvalidParticipant)
	})

	t.Run("ConcurrentFindOrCreateConverges", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 8
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := "carol", "dave"
				if i%2 == 1 {
					a, b = b, a
				}
				conv, err := s.FindOrCreateConversation(ctx, a, b, "")
				if assert.NoError(t, err) {
					ids[i] = conv.ID.Hex()
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("AppendMessageValidates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		conv, err := s.FindOrCreateConversation(ctx, "alice", "bob", "")
		require.NoError(t, err)

		_, err = s.AppendMessage(ctx, conv.ID.Hex(), "alice", "   ")
		assert.ErrorIs(t, err, ErrEmptyMessage)

		_, err = s.AppendMessage(ctx, conv.ID.Hex(), "mallory", "hi")
		assert.ErrorIs(t, err, ErrNotAParticipant)

		_, err = s.AppendMessage(ctx, "not-an-id", "alice", "hi")
		assert.ErrorIs(t, err, ErrConversationNotFound)

		_, err = s.AppendMessage(ctx, "65f000000000000000000000", "alice", "hi")
		assert.ErrorIs(t, err, ErrConversationNotFound)

		long := make([]byte, MaxMessageBytes+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err = s.AppendMessage(ctx, conv.ID.Hex(), "alice", string(long))
		assert.ErrorIs(t, err, ErrMessageTooLong)
	})

	t.Run("AppendMessageUpdatesConversation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		conv, err := s.FindOrCreateConversation(ctx, "alice", "bob", "")
		require.NoError(t, err)

		msg, err := s.AppendMessage(ctx, conv.ID.Hex(), "alice", "  hi  ")
		require.NoError(t, err)
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, int64(1), msg.Seq)
		assert.Equal(t, []string{"bob"}, msg.RecipientIDs)
		assert.False(t, msg.ID.IsZero())

		got, err := s.GetConversation(ctx, conv.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, "hi", got.LastMessagePreview)
		assert.Equal(t, int64(1), got.LastSeq)
		assert.True(t, !got.UpdatedAt.Before(msg.CreatedAt))
	})

	t.Run("ListMessagesKeepsAppendOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		conv, err := s.FindOrCreateConversation(ctx, "alice", "bob", "")
		require.NoError(t, err)

		texts := []string{"one", "two", "three", "four", "five"}
		for i, text := range texts {
			sender := "alice"
			if i%2 == 1 {
				sender = "bob"
			}
			_, err := s.AppendMessage(ctx, conv.ID.Hex(), sender, text)
			require.NoError(t, err)
		}

		history, err := s.ListMessages(ctx, conv.ID.Hex(), "bob")
		require.NoError(t, err)
		require.Len(t, history, len(texts))
		for i, m := range history {
			assert.Equal(t, texts[i], m.Text)
			assert.Equal(t, int64(i+1), m.Seq)
			if i > 0 {
				assert.False(t, m.CreatedAt.Before(history[i-1].CreatedAt), "createdAt went backwards at %d", i)
			}
		}

		_, err = s.ListMessages(ctx, conv.ID.Hex(), "mallory")
		assert.ErrorIs(t, err, ErrNotAParticipant)
	})

	t.Run("ListConversationsMostRecentFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		older, err := s.FindOrCreateConversation(ctx, "erin", "frank", "")
		require.NoError(t, err)
		newer, err := s.FindOrCreateConversation(ctx, "erin", "grace", "")
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = s.AppendMessage(ctx, older.ID.Hex(), "frank", "ping")
		require.NoError(t, err)

		convs, err := s.ListConversations(ctx, "erin")
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, older.ID, convs[0].ID)
		assert.Equal(t, newer.ID, convs[1].ID)
		assert.Equal(t, "ping", convs[0].LastMessagePreview)

		none, err := s.ListConversations(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestMemoryStore(t *testing.T) {
	runConversationStoreSuite(t, func(t *testing.T) ConversationStore {
		return NewMemoryStore(nil)
	})
}

func TestMemoryStore_ClockGoingBackwardsKeepsOrder(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Minute), base.Add(-time.Hour)}
	var mu sync.Mutex
	i := 0
	s := NewMemoryStore(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := times[i%len(times)]
		i++
		return ts
	})
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "alice", "bob", "") // consumes base
	require.NoError(t, err)
	m1, err := s.AppendMessage(ctx, conv.ID.Hex(), "alice", "first") // +1m
	require.NoError(t, err)
	m2, err := s.AppendMessage(ctx, conv.ID.Hex(), "bob", "second") // -1h
	require.NoError(t, err)

	assert.Equal(t, base.Add(time.Minute), m1.CreatedAt)
	assert.Equal(t, m1.CreatedAt, m2.CreatedAt, "createdAt must not go backwards")
	assert.Greater(t, m2.Seq, m1.Seq)
}

func TestMemoryUsers(t *testing.T) {
	users := NewMemoryUsers()
	ctx := context.Background()

	u, err := users.CreateUser(ctx, "Adopter@Example.com", "hash", "")
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, "adopter@example.com", "hash", "")
	assert.ErrorIs(t, err, ErrUserExists)

	got, err := users.GetUserByEmail(ctx, "ADOPTER@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	found, err := users.LookupUsers(ctx, []string{u.ID.Hex(), "bogus", "65f000000000000000000000"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "adopter", found[u.ID.Hex()].DisplayName)

	_, err = users.GetUserByID(ctx, "bogus")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
