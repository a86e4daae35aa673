package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewStore(rdb, StoreOptions{
		MaxRetries:      2,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 4 * time.Millisecond,
	}, logger.Nop())
	return store, mr
}

// fakeClock выдает одно и то же время, пока его не сдвинут.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingArchive struct {
	mu       sync.Mutex
	messages []*domain.Message
	err      error
}

func (a *recordingArchive) Archive(_ context.Context, messages []*domain.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, messages...)
	return a.err
}

func (a *recordingArchive) Close() {}

func createTestRoom(t *testing.T, rooms RoomRepository, roomType domain.RoomType, members ...string) *domain.Room {
	t.Helper()

	room := &domain.Room{
		ID:        uuid.NewString(),
		Name:      "lobby",
		Type:      roomType,
		MemberIDs: members,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, rooms.Create(context.Background(), room))
	return room
}

func newTestMessage(roomID, senderID, content string) *domain.Message {
	return &domain.Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderID:    senderID,
		ContentType: domain.ContentTypeText,
		Content:     content,
	}
}
