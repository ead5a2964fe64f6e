package common

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lgulliver/lodestone-upload/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCacheFromClient(client), mr
}

func TestCache_SetGetExpire(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"n": 1}, time.Minute))

	var out map[string]int
	require.NoError(t, cache.Get(ctx, "k", &out))
	assert.Equal(t, 1, out["n"])

	mr.FastForward(2 * time.Minute)
	err := cache.Get(ctx, "k", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestStatusCache_PutGet(t *testing.T) {
	cache, mr := setupTestCache(t)
	statusCache := NewStatusCache(cache, "upload:status:", time.Hour)
	ctx := context.Background()

	snapshot := &types.UploadSnapshot{
		Token:          "token-1",
		Filename:       "uploaded_test.bin",
		Status:         types.StatusAborted,
		ExpectedOffset: 1048576,
		Reason:         "sha256 mismatch",
	}

	require.NoError(t, statusCache.PutSnapshot(ctx, snapshot))
	assert.True(t, mr.Exists("upload:status:token-1"))

	got, err := statusCache.GetSnapshot(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAborted, got.Status)
	assert.Equal(t, int64(1048576), got.ExpectedOffset)
	assert.Equal(t, "sha256 mismatch", got.Reason)
}

func TestStatusCache_Expiry(t *testing.T) {
	cache, mr := setupTestCache(t)
	statusCache := NewStatusCache(cache, "upload:status:", time.Minute)
	ctx := context.Background()

	require.NoError(t, statusCache.PutSnapshot(ctx, &types.UploadSnapshot{Token: "t", Status: types.StatusFinalized}))

	mr.FastForward(2 * time.Minute)

	_, err := statusCache.GetSnapshot(ctx, "t")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
