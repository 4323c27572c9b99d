package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "directory/internal/adapters/redis"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setup(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c := redisad.NewWithClient(goredis.NewClient(&goredis.Options{Addr: s.Addr()}), "test:")
	return c, s
}

func TestCache_Miss(t *testing.T) {
	c, _ := setup(t)
	var got item
	ok, err := c.Get(context.Background(), "nope", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_SetGetWithPrefixAndTTL(t *testing.T) {
	c, s := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", item{Name: "mall", Count: 3}, 60))
	assert.True(t, s.Exists("test:k1"))
	assert.Equal(t, 60*time.Second, s.TTL("test:k1"))

	var got item
	ok, err := c.Get(ctx, "k1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, item{Name: "mall", Count: 3}, got)

	s.FastForward(61 * time.Second)
	ok, err = c.Get(ctx, "k1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DelMany(t *testing.T) {
	c, s := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", item{}, 60))
	require.NoError(t, c.Set(ctx, "b", item{}, 60))

	require.NoError(t, c.Del(ctx, "a", "b", "missing"))
	assert.False(t, s.Exists("test:a"))
	assert.False(t, s.Exists("test:b"))
	require.NoError(t, c.Del(ctx))
}

func TestCache_CorruptPayloadIsMiss(t *testing.T) {
	c, s := setup(t)
	require.NoError(t, s.Set("test:bad", "{not json"))

	var got item
	ok, err := c.Get(context.Background(), "bad", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Exists("test:bad"))
}
