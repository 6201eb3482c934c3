package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgram/connected/internal/infrastructure/redis"
)

func TestStores(t *testing.T) {
	mr := miniredis.RunT(t)
	redisService := redis.NewServiceWithAddr(mr.Addr(), "")
	t.Cleanup(func() { redisService.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(redisService, "test"),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := store.Get(ctx, AccessTokenKey)
			require.NoError(t, err)
			assert.Empty(t, got, "absent key reads as empty")

			require.NoError(t, store.Set(ctx, AccessTokenKey, "a1"))
			require.NoError(t, store.Set(ctx, RefreshTokenKey, "r1"))

			got, err = store.Get(ctx, AccessTokenKey)
			require.NoError(t, err)
			assert.Equal(t, "a1", got)

			require.NoError(t, store.Delete(ctx, AccessTokenKey, RefreshTokenKey))
			got, err = store.Get(ctx, RefreshTokenKey)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}

	t.Run("redis keys are prefixed", func(t *testing.T) {
		store := NewRedisStore(redisService, "profile-1")
		require.NoError(t, store.Set(context.Background(), LastDrillKey, "d1"))
		assert.True(t, mr.Exists("profile-1:"+LastDrillKey))
	})
}

func TestNewStore(t *testing.T) {
	t.Run("nil redis uses memory", func(t *testing.T) {
		_, ok := NewStore(nil, "p").(*MemoryStore)
		assert.True(t, ok)
	})

	t.Run("reachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		svc := redis.NewServiceWithAddr(mr.Addr(), "")
		t.Cleanup(func() { svc.Close() })

		_, ok := NewStore(svc, "p").(*RedisStore)
		assert.True(t, ok)
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		svc := redis.NewServiceWithAddr(addr, "")
		t.Cleanup(func() { svc.Close() })

		_, ok := NewStore(svc, "p").(*MemoryStore)
		assert.True(t, ok)
	})
}
