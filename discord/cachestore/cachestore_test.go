package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func exerciseCacheStore(t *testing.T, cs CacheStore) {
	assert := assert.New(t)
	ctx := context.Background()

	v, err := cs.Get(ctx, "message", "c1/m1")
	assert.NoError(err)
	assert.Empty(v)

	assert.NoError(cs.Set(ctx, "message", "c1/m1", `{"id":"m1"}`))
	v, err = cs.Get(ctx, "message", "c1/m1")
	assert.NoError(err)
	assert.Equal(`{"id":"m1"}`, v)

	// namespaced by name
	v, _ = cs.Get(ctx, "member", "c1/m1")
	assert.Empty(v)

	assert.NoError(cs.Purge(ctx, "message", "c1/m1"))
	assert.NoError(cs.Purge(ctx, "message", "c1/m1"))
	v, err = cs.Get(ctx, "message", "c1/m1")
	assert.NoError(err)
	assert.Empty(v)
}

func TestMemCacheStore(t *testing.T) {
	exerciseCacheStore(t, NewMemCacheStore(10, time.Minute))
}

func TestMemCacheStoreEviction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := NewMemCacheStore(2, time.Minute)
	for _, k := range []string{"a", "b", "c"} {
		assert.NoError(cs.Set(ctx, "message", k, k))
	}
	v, _ := cs.Get(ctx, "message", "a")
	assert.Empty(v)
	v, _ = cs.Get(ctx, "message", "c")
	assert.Equal("c", v)
}

func TestRedisCacheStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	exerciseCacheStore(t, NewRedisCacheStoreFromClient(rdb, time.Minute))
}
