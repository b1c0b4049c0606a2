package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewIdempotencyCache(client), mr
}

func TestIdempotencyCache_MissThenHit(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()
	key := "7b0e:transfer:K-1"
	value := []byte(`{"id":"abc","status":"SUCCESS"}`)

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, key, value, time.Hour))

	got, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
	assert.True(t, mr.Exists("clg:idem:"+key))
}

func TestIdempotencyCache_Expires(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "m:mint:ORD-1", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, "m:mint:ORD-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotencyCache_Overwrite(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("first"), time.Hour))
	require.NoError(t, cache.Set(ctx, "k", []byte("second"), time.Hour))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestIdempotencyCache_ServerDown(t *testing.T) {
	cache, mr := newCache(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, cache.Set(context.Background(), "k", []byte("v"), time.Hour))
}
