package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/kephaschat"
)

// runStoreContract exercises the MessageStore behaviour every implementation
// must share. Identities are prefixed so runs against a shared database do not
// collide.
func runStoreContract(t *testing.T, s kephaschat.MessageStore) {
	ctx := context.Background()
	prefix := fmt.Sprintf("t%d-", time.Now().UnixNano())
	alice, bob, carol := prefix+"alice", prefix+"bob", prefix+"carol"
	base := time.Now().UTC().Truncate(time.Millisecond)

	save := func(t *testing.T, id, from, to, text string, offset time.Duration) {
		t.Helper()
		require.NoError(t, s.SaveMessage(ctx, &kephaschat.Message{
			ID: prefix + id, From: from, To: to, Text: text, CreatedAt: base.Add(offset),
		}))
	}

	t.Run("mark read is idempotent", func(t *testing.T) {
		save(t, "m1", bob, alice, "one", 0)
		save(t, "m2", bob, alice, "two", time.Second)
		save(t, "m3", alice, bob, "reply", 2*time.Second)

		ids, err := s.MarkRead(ctx, bob, alice)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{prefix + "m1", prefix + "m2"}, ids)

		ids, err = s.MarkRead(ctx, bob, alice)
		require.NoError(t, err)
		assert.NotNil(t, ids)
		assert.Empty(t, ids)

		ids, err = s.MarkRead(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, []string{prefix + "m3"}, ids)
	})

	t.Run("concurrent mark read receipts each message once", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			save(t, fmt.Sprintf("c%d", i), carol, alice, "x", time.Duration(i)*time.Millisecond)
		}

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			total []string
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids, err := s.MarkRead(ctx, carol, alice)
				assert.NoError(t, err)
				mu.Lock()
				total = append(total, ids...)
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, total, 5)
	})

	t.Run("edit by sender only", func(t *testing.T) {
		save(t, "e1", bob, alice, "before", 0)

		_, err := s.EditMessage(ctx, prefix+"e1", alice, "hijack")
		assert.ErrorIs(t, err, kephaschat.ErrMessageNotFound)

		msg, err := s.EditMessage(ctx, prefix+"e1", bob, "after")
		require.NoError(t, err)
		assert.Equal(t, "after", msg.Text)
		assert.Equal(t, alice, msg.To)
		assert.NotNil(t, msg.EditedAt)

		_, err = s.EditMessage(ctx, prefix+"missing", bob, "x")
		assert.ErrorIs(t, err, kephaschat.ErrMessageNotFound)
	})

	t.Run("delete by sender only", func(t *testing.T) {
		save(t, "d1", bob, alice, "bye", 0)

		_, err := s.DeleteMessage(ctx, prefix+"d1", alice)
		assert.ErrorIs(t, err, kephaschat.ErrMessageNotFound)

		msg, err := s.DeleteMessage(ctx, prefix+"d1", bob)
		require.NoError(t, err)
		assert.Equal(t, alice, msg.To)

		_, err = s.DeleteMessage(ctx, prefix+"d1", bob)
		assert.ErrorIs(t, err, kephaschat.ErrMessageNotFound)
	})

	t.Run("media and reply round trip", func(t *testing.T) {
		require.NoError(t, s.SaveMessage(ctx, &kephaschat.Message{
			ID:        prefix + "media",
			From:      bob,
			To:        alice,
			Media:     &kephaschat.Media{Type: "audio", URL: "/f/a.ogg", Size: 10, Duration: 1.5, Waveform: []float64{0.5}},
			ReplyTo:   &kephaschat.ReplyRef{MessageID: prefix + "m1", Text: "one", Sender: bob},
			Forwarded: true, ForwardedFrom: carol,
			CreatedAt: base,
		}))

		msg, err := s.EditMessage(ctx, prefix+"media", bob, "caption")
		require.NoError(t, err)
		require.NotNil(t, msg.Media)
		assert.Equal(t, "/f/a.ogg", msg.Media.URL)
		assert.Equal(t, []float64{0.5}, msg.Media.Waveform)
		require.NotNil(t, msg.ReplyTo)
		assert.Equal(t, prefix+"m1", msg.ReplyTo.MessageID)
		assert.True(t, msg.Forwarded)
		assert.Equal(t, carol, msg.ForwardedFrom)
	})

	t.Run("pins are per conversation", func(t *testing.T) {
		require.NoError(t, s.PinMessage(ctx, kephaschat.Pin{PinnedBy: bob, Peer: alice, MessageID: "p1", MessageText: "first"}))
		require.NoError(t, s.PinMessage(ctx, kephaschat.Pin{PinnedBy: alice, Peer: bob, MessageID: "p2", MessageText: "second"}))
		require.NoError(t, s.PinMessage(ctx, kephaschat.Pin{PinnedBy: carol, Peer: bob, MessageID: "p3", MessageText: "third"}))

		pins, err := s.PinnedMessages(ctx, bob)
		require.NoError(t, err)
		require.Len(t, pins, 2)
		assert.Equal(t, "p2", pins[alice].MessageID, "later pin replaces earlier one")
		assert.Equal(t, alice, pins[alice].PinnedBy)
		assert.Equal(t, "p3", pins[carol].MessageID)

		require.NoError(t, s.UnpinMessage(ctx, bob, alice))
		pins, err = s.PinnedMessages(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, pins)

		assert.NoError(t, s.UnpinMessage(ctx, bob, alice), "unpinning twice is not an error")
	})
}

// TestMemoryStore runs the store contract against the in-memory store
func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemory())
}

// TestPostgresStore runs the store contract against a real database when
// KEPHASCHAT_TEST_DATABASE_URL is set
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("KEPHASCHAT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("KEPHASCHAT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, pg.Migrate(ctx))

	runStoreContract(t, pg)

	_, err = pg.LookupUser(ctx, fmt.Sprintf("nobody-%d", time.Now().UnixNano()))
	assert.ErrorIs(t, err, kephaschat.ErrUserNotFound)
}

// TestMemoryReadFlag tests that read receipts show up on stored messages
func TestMemoryReadFlag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.SaveMessage(ctx, &kephaschat.Message{ID: "m1", From: "bob", To: "alice", Text: "hi"}))
	assert.Error(t, s.SaveMessage(ctx, &kephaschat.Message{ID: "m1", From: "bob", To: "alice"}), "duplicate id")

	msg, ok := s.Message("m1")
	require.True(t, ok)
	assert.False(t, msg.Read)

	_, err := s.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)

	msg, _ = s.Message("m1")
	assert.True(t, msg.Read)
	assert.Len(t, s.Conversation("alice", "bob"), 1)
}
