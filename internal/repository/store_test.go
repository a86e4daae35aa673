package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

func TestStore_RetryDelay(t *testing.T) {
	s := NewStore(nil, StoreOptions{
		RetryBackoff:    10 * time.Millisecond,
		MaxRetryBackoff: 50 * time.Millisecond,
	}, logger.Nop())

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
		{10, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, s.retryDelay(tt.retry), "retry %d", tt.retry)
	}
}

func TestStore_HashAndSetPrimitives(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "h", map[string]any{"a": "1", "b": "2"}))
	fields, err := store.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, fields)

	exists, err := store.Exists(ctx, "h")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.SAdd(ctx, "s", "x", "y"))
	require.NoError(t, store.SRem(ctx, "s", "x"))
	members, err := store.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, members)

	ok, err := store.SIsMember(ctx, "s", "y")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_SortedSetRanges(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i, member := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.ZAdd(ctx, "z", float64(i+1), member))
	}

	got, err := store.ZRevRangeByScore(ctx, "z", "(3", "-inf", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got)

	got, err = store.ZRevRange(ctx, "z", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, got)

	removed, err := store.ZRem(ctx, "z", "a", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := store.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestStore_PipelinedIsAtomicBatch(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	err := store.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, "room:1", "name", "lobby")
		pipe.SAdd(ctx, "room:1:members", "alice")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "lobby", mr.HGet("room:1", "name"))
	ok, err := mr.SIsMember("room:1:members", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_WatchPassesDomainErrors(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Watch(context.Background(), func(tx *redis.Tx) error {
		return apperrors.ErrRoomNotFound
	}, "room:1")

	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestStore_UnavailableAfterRetries(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	err := store.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, apperrors.CodeStoreUnavailable, apperrors.Code(err))
}

func TestStore_ReplyErrorIsNotRetried(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("plain", "value"))

	_, err := store.HGetAll(context.Background(), "plain")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.False(t, retryable(redis.ErrClosed))
}

func TestStore_CanceledContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Ping(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
