package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Stop()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)

	e := &Entry{Method: http.MethodPost, Path: "/api/v1/admissions", StatusCode: 201, Body: []byte(`{"id":"1"}`)}
	require.NoError(t, s.Set(ctx, "k1", e))

	got, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 201, got.StatusCode)
	assert.Equal(t, `{"id":"1"}`, string(got.Body))

	got.Body[0] = 'X'
	again, _, _ := s.Get(ctx, "k1")
	assert.Equal(t, byte('{'), again.Body[0], "stored entry must not be mutable through a returned copy")
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Stop()
	ctx := context.Background()
	now := time.Now()
	s.nowFunc = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", &Entry{StatusCode: 200}))
	s.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	s.evictExpired()
	assert.Empty(t, s.entries)
}

func TestMemoryStore_Lock(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Stop()
	ctx := context.Background()

	ok, err := s.Lock(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Lock(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Unlock(ctx, "k"))
	ok, _ = s.Lock(ctx, "k")
	assert.True(t, ok)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	e := &Entry{
		Method:     http.MethodPost,
		Path:       "/api/v1/invoices/abc/payments",
		StatusCode: http.StatusCreated,
		Headers:    http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`{"amount":"100"}`),
	}
	require.NoError(t, s.Set(ctx, "pay-1", e))
	assert.True(t, mr.Exists(redisPrefix+"pay-1"))
	assert.Equal(t, time.Hour, mr.TTL(redisPrefix+"pay-1"))

	got, found, err := s.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, e.Path, got.Path)
	assert.Equal(t, e.Body, got.Body)
	assert.Equal(t, "application/json", got.Headers.Get("Content-Type"))

	mr.FastForward(2 * time.Hour)
	_, found, err = s.Get(ctx, "pay-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_Lock(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	ok, err := s.Lock(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Lock(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Unlock(ctx, "k"))
	ok, err = s.Lock(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(lockTTL + time.Second)
	ok, err = s.Lock(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "lock should lapse after its TTL")
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()
	_, _, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
}
