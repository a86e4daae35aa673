package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// Лимит хранения сообщений на комнату
const DefaultRetentionCap = 1000

type MessageRepository interface {
	// Добавить сообщение в журнал комнаты. Проставляет CreatedAt и Seq,
	// обрезает журнал до лимита хранения
	Append(ctx context.Context, message *domain.Message) error

	// Последние limit сообщений строго старше before (nil - самые новые), от новых к старым
	List(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error)

	Get(ctx context.Context, roomID, messageID string) (*domain.Message, error)

	// Изменить сообщение внутри транзакции. Ошибка из fn отменяет запись
	Update(ctx context.Context, roomID, messageID string, fn func(message *domain.Message) error) (*domain.Message, error)

	Delete(ctx context.Context, roomID, messageID string) error

	// Отметить сообщение прочитанным пользователем
	MarkRead(ctx context.Context, roomID, messageID, userID string) (*domain.Message, error)

	Count(ctx context.Context, roomID string) (int64, error)
}

type messageRepository struct {
	store        *Store
	archive      MessageArchive
	retentionCap int64
	now          func() time.Time
	log          logger.Logger
}

// NewMessageRepository создает журнал сообщений. archive может быть nil,
// тогда вытесненные сообщения просто удаляются.
func NewMessageRepository(store *Store, archive MessageArchive, retentionCap int, log logger.Logger) MessageRepository {
	if retentionCap <= 0 {
		retentionCap = DefaultRetentionCap
	}
	return &messageRepository{
		store:        store,
		archive:      archive,
		retentionCap: int64(retentionCap),
		now:          time.Now,
		log:          log,
	}
}

func (r *messageRepository) Append(ctx context.Context, message *domain.Message) error {
	roomID := message.RoomID
	var trimmed []*domain.Message

	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		trimmed = nil

		exists, err := tx.Exists(ctx, roomKey(roomID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("room %s: %w", roomID, apperrors.ErrRoomNotFound)
		}

		newest, err := tx.ZRevRangeWithScores(ctx, messagesKey(roomID), 0, 0).Result()
		if err != nil {
			return err
		}
		seq, err := tx.Get(ctx, seqKey(roomID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		count, err := tx.ZCard(ctx, messagesKey(roomID)).Result()
		if err != nil {
			return err
		}

		// Время строго растет внутри комнаты даже при одинаковых часах
		createdAt := r.now().UnixMilli()
		if len(newest) > 0 && createdAt <= int64(newest[0].Score) {
			createdAt = int64(newest[0].Score) + 1
		}
		message.CreatedAt = time.UnixMilli(createdAt).UTC()
		message.Seq = seq + 1

		fields, err := encodeMessage(message)
		if err != nil {
			return err
		}

		var evicted []string
		if overflow := count + 1 - r.retentionCap; overflow > 0 {
			evicted, err = tx.ZRange(ctx, messagesKey(roomID), 0, overflow-1).Result()
			if err != nil {
				return err
			}
			if r.archive != nil {
				trimmed, err = r.readMessages(ctx, tx, roomID, evicted)
				if err != nil {
					return err
				}
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, messageKey(roomID, message.ID), fields)
			pipe.ZAdd(ctx, messagesKey(roomID), redis.Z{Score: float64(createdAt), Member: message.ID})
			pipe.Set(ctx, seqKey(roomID), message.Seq, 0)
			if len(evicted) > 0 {
				pipe.ZRem(ctx, messagesKey(roomID), toArgs(evicted)...)
				for _, chunk := range chunkKeys(messageKeys(roomID, evicted), deleteChunkSize) {
					pipe.Del(ctx, chunk...)
				}
			}
			return nil
		})
		return err
	}, roomKey(roomID), messagesKey(roomID), seqKey(roomID))
	if err != nil {
		r.log.Error("Failed to append message", "error", err, "room_id", roomID)
		return err
	}

	if len(trimmed) > 0 {
		r.log.Debug("Message ledger trimmed", "room_id", roomID, "count", len(trimmed))
		if err := r.archive.Archive(ctx, trimmed); err != nil {
			// Сообщение уже сохранено, архив - best effort
			r.log.Warn("Failed to archive trimmed messages", "error", err, "room_id", roomID, "count", len(trimmed))
		}
	}

	return nil
}

func (r *messageRepository) List(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error) {
	maxScore := "+inf"
	if before != nil {
		maxScore = "(" + strconv.FormatInt(before.UnixMilli(), 10)
	}

	ids, err := r.store.ZRevRangeByScore(ctx, messagesKey(roomID), maxScore, "-inf", int64(limit))
	if err != nil {
		r.log.Error("Failed to get messages", "error", err, "room_id", roomID)
		return nil, err
	}

	hashes, err := r.store.HGetAllMany(ctx, messageKeys(roomID, ids))
	if err != nil {
		r.log.Error("Failed to load messages", "error", err, "room_id", roomID)
		return nil, err
	}

	messages := make([]*domain.Message, 0, len(hashes))
	for i, fields := range hashes {
		if len(fields) == 0 {
			// Удалено между чтением индекса и хешей
			continue
		}
		message, err := decodeMessage(fields)
		if err != nil {
			r.log.Warn("Failed to decode message", "error", err, "room_id", roomID, "message_id", ids[i])
			continue
		}
		messages = append(messages, message)
	}

	return messages, nil
}

func (r *messageRepository) Get(ctx context.Context, roomID, messageID string) (*domain.Message, error) {
	fields, err := r.store.HGetAll(ctx, messageKey(roomID, messageID))
	if err != nil {
		r.log.Error("Failed to get message", "error", err, "room_id", roomID, "message_id", messageID)
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, apperrors.ErrMessageNotFound)
	}
	return decodeMessage(fields)
}

func (r *messageRepository) Update(ctx context.Context, roomID, messageID string, fn func(message *domain.Message) error) (*domain.Message, error) {
	key := messageKey(roomID, messageID)
	var updated *domain.Message

	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("message %s: %w", messageID, apperrors.ErrMessageNotFound)
		}

		message, err := decodeMessage(fields)
		if err != nil {
			return err
		}
		if err := fn(message); err != nil {
			return err
		}

		editedAt := r.now().UTC()
		message.EditedAt = &editedAt

		encoded, err := encodeMessage(message)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encoded)
			return nil
		})
		if err != nil {
			return err
		}

		updated = message
		return nil
	}, key)
	if err != nil {
		if apperrors.Kind(err) == nil {
			r.log.Error("Failed to update message", "error", err, "room_id", roomID, "message_id", messageID)
		}
		return nil, err
	}

	return updated, nil
}

func (r *messageRepository) Delete(ctx context.Context, roomID, messageID string) error {
	var removed *redis.IntCmd

	err := r.store.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, messagesKey(roomID), messageID)
		pipe.Del(ctx, messageKey(roomID, messageID))
		return nil
	})
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "room_id", roomID, "message_id", messageID)
		return err
	}

	if removed.Val() == 0 {
		return fmt.Errorf("message %s: %w", messageID, apperrors.ErrMessageNotFound)
	}
	return nil
}

func (r *messageRepository) MarkRead(ctx context.Context, roomID, messageID, userID string) (*domain.Message, error) {
	key := messageKey(roomID, messageID)
	var fields map[string]string

	err := r.store.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("message %s: %w", messageID, apperrors.ErrMessageNotFound)
		}

		var all *redis.MapStringStringCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSetNX(ctx, key, readField(userID), formatMillis(r.now()))
			all = pipe.HGetAll(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}

		fields = all.Val()
		return nil
	}, key)
	if err != nil {
		if apperrors.Kind(err) == nil {
			r.log.Error("Failed to mark message read", "error", err, "room_id", roomID, "message_id", messageID)
		}
		return nil, err
	}

	return decodeMessage(fields)
}

func (r *messageRepository) Count(ctx context.Context, roomID string) (int64, error) {
	return r.store.ZCard(ctx, messagesKey(roomID))
}

// readMessages читает хеши сообщений внутри наблюдаемой транзакции.
func (r *messageRepository) readMessages(ctx context.Context, tx *redis.Tx, roomID string, ids []string) ([]*domain.Message, error) {
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, messageKey(roomID, id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		message, err := decodeMessage(fields)
		if err != nil {
			r.log.Warn("Failed to decode trimmed message", "error", err, "room_id", roomID, "message_id", ids[i])
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}
