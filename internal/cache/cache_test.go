package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propscan-api/internal/model"
)

func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	calls := 0
	fn := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}
	for i := 0; i < 2; i++ {
		got, err = c.GetOrSet(ctx, "b", time.Minute, fn)
		require.NoError(t, err)
		assert.Equal(t, []byte("computed"), got)
	}
	assert.Equal(t, 1, calls)

	_, err = c.GetOrSet(ctx, "c", time.Minute, func() ([]byte, error) { return nil, errors.New("boom") })
	assert.EqualError(t, err, "boom")

	require.NoError(t, c.Delete(ctx, "a", "b"))
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	exerciseCache(t, c)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Second))
	assert.Equal(t, 1, c.Len())

	now = now.Add(2 * time.Second)
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())

	c.removeExpired()
	assert.Empty(t, c.entries)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisCache(t *testing.T) {
	mr, client := newMiniredis(t)
	c := NewRedisCache(client, "test")
	exerciseCache(t, c)

	require.NoError(t, c.Set(context.Background(), "ttl", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)
	_, err := c.Get(context.Background(), "ttl")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisScanBufferFlush(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()

	var flushed []model.ScanRecord
	b := NewRedisScanBuffer(client, "", time.Hour, func(ctx context.Context, records []model.ScanRecord) error {
		flushed = append(flushed, records...)
		return nil
	})

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, b.Record(ctx, model.ScanRecord{ID: id, Type: model.ScanTypeQR}))
	}
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, b.Flush(ctx))
	assert.Len(t, flushed, 3)

	n, err = b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, client.HLen(ctx, b.bufferKey()).Val())
}

func TestRedisScanBufferKeepsRecordsOnFlushError(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()

	b := NewRedisScanBuffer(client, "", time.Hour, func(context.Context, []model.ScanRecord) error {
		return errors.New("db down")
	})
	require.NoError(t, b.Record(ctx, model.ScanRecord{ID: "r1"}))

	_, err := b.FlushBatch(ctx)
	require.Error(t, err)

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisScanBufferCleanupStale(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()

	b := NewRedisScanBuffer(client, "", time.Hour, func(context.Context, []model.ScanRecord) error { return nil })
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Record(ctx, model.ScanRecord{ID: "old"}))
	now = now.Add(StaleDataThreshold + time.Hour)
	require.NoError(t, b.Record(ctx, model.ScanRecord{ID: "new"}))

	stale, err := b.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stale)

	ids, err := client.SMembers(ctx, b.pendingKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)
}

func TestRedisScanBufferCloseFlushes(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()

	flushed := make(chan int, 1)
	b := NewRedisScanBuffer(client, "", time.Hour, func(ctx context.Context, records []model.ScanRecord) error {
		flushed <- len(records)
		return nil
	})
	require.NoError(t, b.Record(ctx, model.ScanRecord{ID: "r1"}))

	b.Start()
	require.NoError(t, b.Close())
	assert.Equal(t, 1, <-flushed)
}
