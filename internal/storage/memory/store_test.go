package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempx/backend/internal/domain"
	"tempx/backend/internal/storage"
)

func newTestInbox(address string, ttl time.Duration) *domain.Inbox {
	now := time.Now().UTC()
	return &domain.Inbox{
		Address:      address,
		LocalPart:    "test",
		Domain:       "tempx.me",
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
		IsActive:     true,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewStore()

	inbox := newTestInbox("abc12345@tempx.me", 10*time.Minute)
	require.NoError(t, store.CreateInbox(inbox))

	got, err := store.GetInboxByAddress("abc12345@tempx.me")
	require.NoError(t, err)
	assert.Equal(t, inbox.Address, got.Address)
	assert.Empty(t, got.Messages)

	_, err = store.GetInboxByAddress("nobody@tempx.me")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)
}

func TestMemoryStore_CreateConflict(t *testing.T) {
	store := NewStore()

	require.NoError(t, store.CreateInbox(newTestInbox("dup@tempx.me", time.Minute)))

	err := store.CreateInbox(newTestInbox("dup@tempx.me", time.Minute))
	assert.ErrorIs(t, err, storage.ErrInboxExists)

	// The original record must survive the failed create.
	got, err := store.GetInboxByAddress("dup@tempx.me")
	require.NoError(t, err)
	assert.Equal(t, "dup@tempx.me", got.Address)
}

func TestMemoryStore_AppendNewestFirst(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.CreateInbox(newTestInbox("order@tempx.me", time.Minute)))

	first := &domain.Message{ID: "m1", From: "a@b.com", Subject: "first"}
	second := &domain.Message{ID: "m2", From: "a@b.com", Subject: "second"}
	require.NoError(t, store.AppendMessage("order@tempx.me", first))
	require.NoError(t, store.AppendMessage("order@tempx.me", second))

	got, err := store.GetInboxByAddress("order@tempx.me")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "second", got.Messages[0].Subject)
	assert.Equal(t, "first", got.Messages[1].Subject)
}

func TestMemoryStore_ConcurrentAppendsNoLostUpdate(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.CreateInbox(newTestInbox("race@tempx.me", time.Minute)))

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			msg := &domain.Message{
				ID:      fmt.Sprintf("msg-%d", i),
				From:    "a@b.com",
				Subject: fmt.Sprintf("subject %d", i),
			}
			assert.NoError(t, store.AppendMessage("race@tempx.me", msg))
		}(i)
	}
	wg.Wait()

	got, err := store.GetInboxByAddress("race@tempx.me")
	require.NoError(t, err)
	require.Len(t, got.Messages, n)

	ids := make(map[string]struct{}, n)
	for _, msg := range got.Messages {
		ids[msg.ID] = struct{}{}
	}
	assert.Len(t, ids, n, "every concurrent append must be preserved")
}

func TestMemoryStore_AppendDedupByMessageID(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.CreateInbox(newTestInbox("dedup@tempx.me", time.Minute)))

	msg := &domain.Message{ID: "m1", From: "a@b.com", Subject: "hi", MessageID: "<abc@mail>"}
	retry := &domain.Message{ID: "m2", From: "a@b.com", Subject: "hi", MessageID: "<abc@mail>"}
	require.NoError(t, store.AppendMessage("dedup@tempx.me", msg))
	require.NoError(t, store.AppendMessage("dedup@tempx.me", retry))

	got, err := store.GetInboxByAddress("dedup@tempx.me")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1, "provider webhook retry must not duplicate the message")
}

func TestMemoryStore_PassiveExpiry(t *testing.T) {
	store := NewStore()

	// Already expired, but no sweep has run.
	require.NoError(t, store.CreateInbox(newTestInbox("dead@tempx.me", -time.Second)))

	_, err := store.GetInboxByAddress("dead@tempx.me")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)
}

func TestMemoryStore_AppendToExpiredInbox(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.CreateInbox(newTestInbox("gone@tempx.me", -time.Second)))

	err := store.AppendMessage("gone@tempx.me", &domain.Message{ID: "m1"})
	assert.ErrorIs(t, err, storage.ErrInboxExpired)
}

func TestMemoryStore_DeleteExpiredInboxes(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.CreateInbox(newTestInbox("live@tempx.me", time.Hour)))
	require.NoError(t, store.CreateInbox(newTestInbox("dead1@tempx.me", -time.Second)))
	require.NoError(t, store.CreateInbox(newTestInbox("dead2@tempx.me", -time.Minute)))

	count, err := store.DeleteExpiredInboxes()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = store.GetInboxByAddress("live@tempx.me")
	assert.NoError(t, err)
}

func TestMemoryStore_DeleteInbox(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.CreateInbox(newTestInbox("del@tempx.me", time.Minute)))

	require.NoError(t, store.DeleteInbox("del@tempx.me"))

	_, err := store.GetInboxByAddress("del@tempx.me")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)

	err = store.DeleteInbox("del@tempx.me")
	assert.ErrorIs(t, err, storage.ErrInboxNotFound)
}

func TestMemoryStore_MarkMessageRead(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.CreateInbox(newTestInbox("read@tempx.me", time.Minute)))
	require.NoError(t, store.AppendMessage("read@tempx.me", &domain.Message{ID: "m1", Subject: "hi"}))

	require.NoError(t, store.MarkMessageRead("read@tempx.me", "m1"))

	got, err := store.GetInboxByAddress("read@tempx.me")
	require.NoError(t, err)
	assert.True(t, got.Messages[0].Read)

	err = store.MarkMessageRead("read@tempx.me", "missing")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
}

func TestMemoryStore_RateLimit(t *testing.T) {
	store := NewStore()

	for i := int64(1); i <= 5; i++ {
		count, err := store.IncrementRateLimit("create:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	count, err := store.GetRateLimit("create:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	// Separate keys keep separate windows.
	count, err = store.IncrementRateLimit("create:5.6.7.8", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_RateLimitWindowReset(t *testing.T) {
	store := NewStore()

	_, err := store.IncrementRateLimit("create:1.2.3.4", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	count, err := store.IncrementRateLimit("create:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "a lapsed window starts over")
}
