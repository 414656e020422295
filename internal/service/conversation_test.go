package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jlypx/BetterForward-enhance/internal/database"
	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
	bfredis "github.com/Jlypx/BetterForward-enhance/internal/redis"
	"github.com/Jlypx/BetterForward-enhance/internal/repository"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	_, ok, _ := c.Get(context.Background(), key)
	return ok
}

func newTestConversationService(t *testing.T) (*ConversationService, *memCache) {
	t.Helper()
	db, err := database.ConnectSQLite(filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })

	c := newMemCache()
	return NewConversationService(db, repository.NewConversationRepository(db.DB), c, time.Minute), c
}

func TestConversationService_GetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		svc, _ := newTestConversationService(t)
		params := model.CreateConversationParams{ExternalChatID: 42, DisplayName: "Bob"}

		first, err := svc.GetOrCreate(ctx, params)
		require.NoError(t, err)
		second, err := svc.GetOrCreate(ctx, params)
		require.NoError(t, err)

		assert.Equal(t, first.ExternalChatID, second.ExternalChatID)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
		assert.False(t, second.HasTopic())

		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Total)
	})

	t.Run("concurrent callers share one row", func(t *testing.T) {
		svc, _ := newTestConversationService(t)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 7, DisplayName: "Eve"})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Total)
	})

	t.Run("refreshes a changed profile", func(t *testing.T) {
		svc, _ := newTestConversationService(t)

		_, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 9, DisplayName: "Old"})
		require.NoError(t, err)
		conv, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 9, DisplayName: "New", Username: "new"})
		require.NoError(t, err)

		assert.Equal(t, "New", conv.DisplayName)
		assert.Equal(t, "new", conv.Username)
	})
}

func TestConversationService_Topics(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestConversationService(t)

	_, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 1, DisplayName: "A"})
	require.NoError(t, err)

	t.Run("FindByTopic returns NotFound before assignment", func(t *testing.T) {
		_, err := svc.FindByTopic(ctx, 500)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	})

	t.Run("AssignTopic makes the topic resolvable", func(t *testing.T) {
		require.NoError(t, svc.AssignTopic(ctx, 1, 500))

		conv, err := svc.FindByTopic(ctx, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(1), conv.ExternalChatID)
		assert.True(t, c.has(bfredis.TopicKey(500)))
	})

	t.Run("ClearTopic drops mapping and cache", func(t *testing.T) {
		require.NoError(t, svc.ClearTopic(ctx, 1))

		assert.False(t, c.has(bfredis.TopicKey(500)))
		assert.False(t, c.has(bfredis.ConversationKey(1)))

		_, err := svc.FindByTopic(ctx, 500)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))

		conv, err := svc.FindByChat(ctx, 1)
		require.NoError(t, err)
		assert.False(t, conv.HasTopic())
	})

	t.Run("ClearTopic without a topic is a no-op", func(t *testing.T) {
		assert.NoError(t, svc.ClearTopic(ctx, 1))
		assert.NoError(t, svc.ClearTopic(ctx, 404))
	})
}

func TestConversationService_SetBlocked(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestConversationService(t)

	_, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 3, DisplayName: "C"})
	require.NoError(t, err)
	require.True(t, c.has(bfredis.ConversationKey(3)))

	require.NoError(t, svc.SetBlocked(ctx, 3, true))
	assert.False(t, c.has(bfredis.ConversationKey(3)), "mutation must invalidate cache")

	conv, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 3, DisplayName: "C"})
	require.NoError(t, err)
	assert.True(t, conv.Blocked)

	err = svc.SetBlocked(ctx, 999, true)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestConversationService_UpdateLastSeen(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestConversationService(t)

	_, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 5, DisplayName: "E"})
	require.NoError(t, err)

	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, svc.UpdateLastSeen(ctx, 5, at))

	conv, err := svc.FindByChat(ctx, 5)
	require.NoError(t, err)
	assert.True(t, conv.LastMessageAt.Equal(at))
}

func TestConversationService_UpdateLastSeenRefreshesCache(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestConversationService(t)

	_, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 6, DisplayName: "F"})
	require.NoError(t, err)
	require.True(t, c.has(bfredis.ConversationKey(6)))

	at := time.Date(2030, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, svc.UpdateLastSeen(ctx, 6, at))

	require.True(t, c.has(bfredis.ConversationKey(6)), "cached copy must survive a last-seen update")
	cached := svc.cached(ctx, 6)
	require.NotNil(t, cached)
	assert.True(t, cached.LastMessageAt.Equal(at))

	assert.NoError(t, svc.UpdateLastSeen(ctx, 999, at))
	assert.False(t, c.has(bfredis.ConversationKey(999)))
}

func TestConversationService_StorageUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestConversationService(t)
	require.NoError(t, svc.db.Close())

	_, err := svc.GetOrCreate(ctx, model.CreateConversationParams{ExternalChatID: 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStorageUnavailable))

	_, err = svc.FindByTopic(ctx, 10)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStorageUnavailable))
}
