package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifact struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	want := artifact{Filename: "brief.pdf", Data: []byte{0x25, 0x50, 0x44, 0x46}}
	require.NoError(t, c.Set(ctx, "export:1:pdf", want, time.Minute))

	var got artifact
	require.NoError(t, c.Get(ctx, "export:1:pdf", &got))
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "export:1:pdf", &got), ErrMiss)
}

func TestCacheDeleteAndPing(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, 0))
	require.NoError(t, c.Delete(ctx, "k"))
	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrMiss)

	require.NoError(t, c.Ping(ctx))
	mr.Close()
	assert.Error(t, c.Ping(ctx))
}

func TestCacheGetCorruptValue(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("bad", "not json"))

	var v artifact
	err := c.Get(context.Background(), "bad", &v)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
