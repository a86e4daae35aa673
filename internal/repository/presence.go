package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type PresenceRepository interface {
	// Пользователь онлайн: запись присутствия и глобальный индекс одной транзакцией
	SetOnline(ctx context.Context, userID string, profile domain.Profile) (*domain.Presence, error)

	SetOffline(ctx context.Context, userID string) (*domain.Presence, error)

	// Регистрирует соединение connID в общем наборе соединений пользователя
	// и переводит его в онлайн одной транзакцией
	Connect(ctx context.Context, userID, connID string, profile domain.Profile) (*domain.Presence, error)

	// Снимает соединения с учета. Если соединений не осталось ни на одном
	// узле, пользователь уходит в офлайн в той же транзакции, тогда true
	Disconnect(ctx context.Context, userID string, connIDs ...string) (bool, error)

	Get(ctx context.Context, userID string) (*domain.Presence, error)

	// Онлайн-пользователи, недавно активные первыми
	ListOnline(ctx context.Context, limit int) ([]*domain.Presence, error)
}

type presenceRepository struct {
	store *Store
	now   func() time.Time
	log   logger.Logger
}

func NewPresenceRepository(store *Store, log logger.Logger) PresenceRepository {
	return &presenceRepository{store: store, now: time.Now, log: log}
}

func (r *presenceRepository) SetOnline(ctx context.Context, userID string, profile domain.Profile) (*domain.Presence, error) {
	return r.online(ctx, userID, "", profile)
}

func (r *presenceRepository) Connect(ctx context.Context, userID, connID string, profile domain.Profile) (*domain.Presence, error) {
	return r.online(ctx, userID, connID, profile)
}

func (r *presenceRepository) online(ctx context.Context, userID, connID string, profile domain.Profile) (*domain.Presence, error) {
	presence := &domain.Presence{
		UserID:      userID,
		DisplayName: profile.DisplayName,
		Avatar:      profile.Avatar,
		Online:      true,
		LastSeen:    r.now().UTC().Truncate(time.Millisecond),
	}

	err := r.store.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if connID != "" {
			pipe.SAdd(ctx, presenceConnsKey(userID), connID)
		}
		pipe.HSet(ctx, presenceKey(userID), encodePresence(presence))
		pipe.ZAdd(ctx, PresenceOnlineKey, redis.Z{
			Score:  float64(presence.LastSeen.UnixMilli()),
			Member: userID,
		})
		return nil
	})
	if err != nil {
		r.log.Error("Failed to set user online", "error", err, "user_id", userID)
		return nil, err
	}

	return presence, nil
}

func (r *presenceRepository) SetOffline(ctx context.Context, userID string) (*domain.Presence, error) {
	lastSeen := r.now().UTC().Truncate(time.Millisecond)

	var all *redis.MapStringStringCmd
	err := r.store.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		writeOffline(ctx, pipe, userID, lastSeen)
		all = pipe.HGetAll(ctx, presenceKey(userID))
		return nil
	})
	if err != nil {
		r.log.Error("Failed to set user offline", "error", err, "user_id", userID)
		return nil, err
	}

	return decodePresence(all.Val())
}

func (r *presenceRepository) Disconnect(ctx context.Context, userID string, connIDs ...string) (bool, error) {
	if len(connIDs) == 0 {
		return false, nil
	}
	closing := make(map[string]struct{}, len(connIDs))
	for _, id := range connIDs {
		closing[id] = struct{}{}
	}

	var wentOffline bool
	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		wentOffline = false

		conns, err := tx.SMembers(ctx, presenceConnsKey(userID)).Result()
		if err != nil {
			return err
		}
		remaining := 0
		for _, id := range conns {
			if _, ok := closing[id]; !ok {
				remaining++
			}
		}

		lastSeen := r.now().UTC().Truncate(time.Millisecond)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, presenceConnsKey(userID), toArgs(connIDs)...)
			if remaining == 0 {
				writeOffline(ctx, pipe, userID, lastSeen)
			}
			return nil
		})
		if err != nil {
			return err
		}

		wentOffline = remaining == 0
		return nil
	}, presenceConnsKey(userID))
	if err != nil {
		r.log.Error("Failed to release user connections", "error", err, "user_id", userID, "conns", len(connIDs))
		return false, err
	}

	return wentOffline, nil
}

// writeOffline снимает пользователя с онлайн-индекса, профиль в записи сохраняется.
func writeOffline(ctx context.Context, pipe redis.Pipeliner, userID string, lastSeen time.Time) {
	pipe.HSet(ctx, presenceKey(userID), map[string]any{
		fieldUserID:   userID,
		fieldOnline:   "0",
		fieldLastSeen: formatMillis(lastSeen),
	})
	pipe.ZRem(ctx, PresenceOnlineKey, userID)
}

func (r *presenceRepository) Get(ctx context.Context, userID string) (*domain.Presence, error) {
	fields, err := r.store.HGetAll(ctx, presenceKey(userID))
	if err != nil {
		r.log.Error("Failed to get presence", "error", err, "user_id", userID)
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, apperrors.ErrPresenceNotFound)
	}
	return decodePresence(fields)
}

func (r *presenceRepository) ListOnline(ctx context.Context, limit int) ([]*domain.Presence, error) {
	userIDs, err := r.store.ZRevRange(ctx, PresenceOnlineKey, 0, int64(limit-1))
	if err != nil {
		r.log.Error("Failed to list online users", "error", err)
		return nil, err
	}

	keys := make([]string, len(userIDs))
	for i, userID := range userIDs {
		keys[i] = presenceKey(userID)
	}
	hashes, err := r.store.HGetAllMany(ctx, keys)
	if err != nil {
		r.log.Error("Failed to load online users", "error", err)
		return nil, err
	}

	users := make([]*domain.Presence, 0, len(hashes))
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue
		}
		presence, err := decodePresence(fields)
		if err != nil {
			r.log.Warn("Failed to decode presence", "error", err, "user_id", userIDs[i])
			continue
		}
		users = append(users, presence)
	}

	return users, nil
}
