package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type RoomRepository interface {
	// Создать комнату: метаданные, состав и индекс участников одной транзакцией
	Create(ctx context.Context, room *domain.Room) error

	GetByID(ctx context.Context, id string) (*domain.Room, error)

	// Изменить комнату: fn правит актуальную запись внутри транзакции,
	// состав сравнивается с прочитанным. Возвращает удаленных участников
	Update(ctx context.Context, id string, fn func(room *domain.Room) error) (*domain.Room, []string, error)

	// Удалить комнату вместе с журналом сообщений. false - комнаты не было
	Delete(ctx context.Context, id string) (bool, error)

	// Комнаты пользователя по индексу членства
	ListByUser(ctx context.Context, userID string) ([]*domain.Room, error)

	// Добавить участника. check проверяет прочитанную в транзакции комнату
	AddMember(ctx context.Context, roomID, userID string, check func(room *domain.Room) error) (*domain.Room, error)

	// Удалить участника. С последним участником комната удаляется
	// в той же транзакции, тогда возвращается true
	RemoveMember(ctx context.Context, roomID, userID string, check func(room *domain.Room) error) (bool, error)

	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

type roomRepository struct {
	store *Store
	log   logger.Logger
}

func NewRoomRepository(store *Store, log logger.Logger) RoomRepository {
	return &roomRepository{store: store, log: log}
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	fields, err := encodeRoom(room)
	if err != nil {
		return err
	}

	err = r.store.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, roomKey(room.ID), fields)
		pipe.SAdd(ctx, roomMembersKey(room.ID), toArgs(room.MemberIDs)...)
		for _, userID := range room.MemberIDs {
			pipe.SAdd(ctx, userRoomsKey(userID), room.ID)
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to create room", "error", err, "room_id", room.ID)
		return err
	}

	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	rooms, err := r.load(ctx, []string{id})
	if err != nil {
		r.log.Error("Failed to get room by ID", "error", err, "room_id", id)
		return nil, err
	}
	if rooms[0] == nil {
		return nil, fmt.Errorf("room %s: %w", id, apperrors.ErrRoomNotFound)
	}
	return rooms[0], nil
}

func (r *roomRepository) Update(ctx context.Context, id string, fn func(room *domain.Room) error) (*domain.Room, []string, error) {
	var (
		updated *domain.Room
		removed []string
	)

	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		room, err := r.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}
		before := append([]string(nil), room.MemberIDs...)
		if err := fn(room); err != nil {
			return err
		}
		if len(room.MemberIDs) == 0 {
			return apperrors.ErrEmptyMembership
		}

		fields, err := encodeRoom(room)
		if err != nil {
			return err
		}
		var added []string
		added, removed = diffMembers(before, room.MemberIDs)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, roomKey(id), fields)
			if len(added) > 0 {
				pipe.SAdd(ctx, roomMembersKey(id), toArgs(added)...)
			}
			for _, userID := range added {
				pipe.SAdd(ctx, userRoomsKey(userID), id)
			}
			if len(removed) > 0 {
				pipe.SRem(ctx, roomMembersKey(id), toArgs(removed)...)
			}
			for _, userID := range removed {
				pipe.SRem(ctx, userRoomsKey(userID), id)
			}
			return nil
		})
		if err != nil {
			return err
		}

		updated = room
		return nil
	}, roomKey(id), roomMembersKey(id))
	if err != nil {
		r.log.Error("Failed to update room", "error", err, "room_id", id)
		return nil, nil, err
	}

	return updated, removed, nil
}

func (r *roomRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool

	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		deleted = false

		exists, err := tx.Exists(ctx, roomKey(id)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return nil
		}

		members, err := tx.SMembers(ctx, roomMembersKey(id)).Result()
		if err != nil {
			return err
		}
		messageIDs, err := tx.ZRange(ctx, messagesKey(id), 0, -1).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			purgeRoom(ctx, pipe, id, members, messageIDs)
			return nil
		})
		if err != nil {
			return err
		}

		deleted = true
		return nil
	}, roomKey(id), roomMembersKey(id), messagesKey(id))
	if err != nil {
		r.log.Error("Failed to delete room", "error", err, "room_id", id)
		return false, err
	}

	if deleted {
		r.log.Info("Room deleted", "room_id", id)
	}
	return deleted, nil
}

func (r *roomRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	roomIDs, err := r.store.SMembers(ctx, userRoomsKey(userID))
	if err != nil {
		r.log.Error("Failed to list user rooms", "error", err, "user_id", userID)
		return nil, err
	}

	loaded, err := r.load(ctx, roomIDs)
	if err != nil {
		r.log.Error("Failed to load user rooms", "error", err, "user_id", userID)
		return nil, err
	}

	rooms := make([]*domain.Room, 0, len(loaded))
	for i, room := range loaded {
		if room == nil {
			// Индекс пережил комнату: пропускаем
			r.log.Debug("Skipping stale room index entry", "user_id", userID, "room_id", roomIDs[i])
			continue
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (r *roomRepository) AddMember(ctx context.Context, roomID, userID string, check func(room *domain.Room) error) (*domain.Room, error) {
	var updated *domain.Room

	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		room, err := r.loadTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(room); err != nil {
				return err
			}
		}
		if room.HasMember(userID) {
			updated = room
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, roomMembersKey(roomID), userID)
			pipe.SAdd(ctx, userRoomsKey(userID), roomID)
			return nil
		})
		if err != nil {
			return err
		}

		room.MemberIDs = append(room.MemberIDs, userID)
		sort.Strings(room.MemberIDs)
		updated = room
		return nil
	}, roomKey(roomID), roomMembersKey(roomID))
	if err != nil {
		r.log.Error("Failed to add room member", "error", err, "room_id", roomID, "user_id", userID)
		return nil, err
	}

	return updated, nil
}

func (r *roomRepository) RemoveMember(ctx context.Context, roomID, userID string, check func(room *domain.Room) error) (bool, error) {
	var deleted bool

	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		deleted = false

		room, err := r.loadTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(room); err != nil {
				return err
			}
		}
		if !room.HasMember(userID) {
			return nil
		}

		if len(room.MemberIDs) > 1 {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SRem(ctx, roomMembersKey(roomID), userID)
				pipe.SRem(ctx, userRoomsKey(userID), roomID)
				return nil
			})
			return err
		}

		// Последний участник: комната не может остаться пустой
		messageIDs, err := tx.ZRange(ctx, messagesKey(roomID), 0, -1).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			purgeRoom(ctx, pipe, roomID, room.MemberIDs, messageIDs)
			return nil
		})
		if err != nil {
			return err
		}

		deleted = true
		return nil
	}, roomKey(roomID), roomMembersKey(roomID), messagesKey(roomID))
	if err != nil {
		r.log.Error("Failed to remove room member", "error", err, "room_id", roomID, "user_id", userID)
		return false, err
	}

	if deleted {
		r.log.Info("Last member removed, room deleted", "room_id", roomID, "user_id", userID)
	}
	return deleted, nil
}

func (r *roomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return r.store.SIsMember(ctx, roomMembersKey(roomID), userID)
}

// load читает метаданные и состав комнат одной транзакцией.
// Для отсутствующих комнат на соответствующей позиции nil.
func (r *roomRepository) load(ctx context.Context, ids []string) ([]*domain.Room, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var (
		metaCmds   []*redis.MapStringStringCmd
		memberCmds []*redis.StringSliceCmd
	)
	err := r.store.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmds = make([]*redis.MapStringStringCmd, len(ids))
		memberCmds = make([]*redis.StringSliceCmd, len(ids))
		for i, id := range ids {
			metaCmds[i] = pipe.HGetAll(ctx, roomKey(id))
			memberCmds[i] = pipe.SMembers(ctx, roomMembersKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rooms := make([]*domain.Room, len(ids))
	for i := range ids {
		fields := metaCmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		room, err := decodeRoom(fields, memberCmds[i].Val())
		if err != nil {
			return nil, fmt.Errorf("decode room %s: %w", ids[i], err)
		}
		rooms[i] = room
	}

	return rooms, nil
}

// loadTx читает комнату на соединении транзакции, ключи уже под WATCH.
func (r *roomRepository) loadTx(ctx context.Context, tx *redis.Tx, id string) (*domain.Room, error) {
	fields, err := tx.HGetAll(ctx, roomKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("room %s: %w", id, apperrors.ErrRoomNotFound)
	}
	members, err := tx.SMembers(ctx, roomMembersKey(id)).Result()
	if err != nil {
		return nil, err
	}
	room, err := decodeRoom(fields, members)
	if err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return room, nil
}

// purgeRoom удаляет метаданные, состав, индексы участников и журнал комнаты.
func purgeRoom(ctx context.Context, pipe redis.Pipeliner, id string, members, messageIDs []string) {
	pipe.Del(ctx, roomKey(id), roomMembersKey(id), messagesKey(id), seqKey(id))
	for _, userID := range members {
		pipe.SRem(ctx, userRoomsKey(userID), id)
	}
	for _, chunk := range chunkKeys(messageKeys(id, messageIDs), deleteChunkSize) {
		pipe.Del(ctx, chunk...)
	}
}

func diffMembers(current, next []string) (added, removed []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, ok := currentSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range current {
		if _, ok := nextSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

const deleteChunkSize = 500

func messageKeys(roomID string, messageIDs []string) []string {
	keys := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		keys[i] = messageKey(roomID, id)
	}
	return keys
}

func chunkKeys(keys []string, size int) [][]string {
	var chunks [][]string
	for len(keys) > size {
		chunks = append(chunks, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		chunks = append(chunks, keys)
	}
	return chunks
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
