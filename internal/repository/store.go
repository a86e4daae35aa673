package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// Сколько раз Watch перезапускает транзакцию при конкурентной записи.
const maxWatchAttempts = 64

type StoreOptions struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// Store - адаптер над общим Redis. Все операции с состоянием проходят
// через него: повтор с backoff для сетевых сбоев и перевод исчерпанных
// повторов в ErrStoreUnavailable.
type Store struct {
	rdb  redis.UniversalClient
	opts StoreOptions
	log  logger.Logger
}

func NewStore(rdb redis.UniversalClient, opts StoreOptions, log logger.Logger) *Store {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 50 * time.Millisecond
	}
	if opts.MaxRetryBackoff < opts.RetryBackoff {
		opts.MaxRetryBackoff = opts.RetryBackoff
	}
	return &Store{rdb: rdb, opts: opts, log: log}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", func() error {
		return s.rdb.Ping(ctx).Err()
	})
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := s.do(ctx, "hgetall", func() error {
		var err error
		fields, err = s.rdb.HGetAll(ctx, key).Result()
		return err
	})
	return fields, err
}

// HGetAllMany читает несколько хешей одним пайплайном, порядок совпадает с keys.
func (s *Store) HGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	result := make([]map[string]string, len(keys))
	err := s.do(ctx, "hgetall batch", func() error {
		cmds := make([]*redis.MapStringStringCmd, len(keys))
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, key := range keys {
				cmds[i] = pipe.HGetAll(ctx, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, cmd := range cmds {
			result[i] = cmd.Val()
		}
		return nil
	})
	return result, err
}

func (s *Store) HSet(ctx context.Context, key string, values map[string]any) error {
	return s.do(ctx, "hset", func() error {
		return s.rdb.HSet(ctx, key, values).Err()
	})
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.do(ctx, "exists", func() error {
		var err error
		n, err = s.rdb.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.do(ctx, "zadd", func() error {
		return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
}

// ZRevRangeByScore возвращает члены от max к min, не больше count.
// Границы в синтаксисе Redis: "+inf", "-inf", "(123" - исключающая.
func (s *Store) ZRevRangeByScore(ctx context.Context, key, max, min string, count int64) ([]string, error) {
	var members []string
	err := s.do(ctx, "zrevrangebyscore", func() error {
		var err error
		members, err = s.rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
			Max:   max,
			Min:   min,
			Count: count,
		}).Result()
		return err
	})
	return members, err
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var members []string
	err := s.do(ctx, "zrevrange", func() error {
		var err error
		members, err = s.rdb.ZRevRange(ctx, key, start, stop).Result()
		return err
	})
	return members, err
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.do(ctx, "zcard", func() error {
		var err error
		n, err = s.rdb.ZCard(ctx, key).Result()
		return err
	})
	return n, err
}

func (s *Store) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := toArgs(members)
	var n int64
	err := s.do(ctx, "zrem", func() error {
		var err error
		n, err = s.rdb.ZRem(ctx, key, args...).Result()
		return err
	})
	return n, err
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	args := toArgs(members)
	return s.do(ctx, "sadd", func() error {
		return s.rdb.SAdd(ctx, key, args...).Err()
	})
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	args := toArgs(members)
	return s.do(ctx, "srem", func() error {
		return s.rdb.SRem(ctx, key, args...).Err()
	})
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var ok bool
	err := s.do(ctx, "sismember", func() error {
		var err error
		ok, err = s.rdb.SIsMember(ctx, key, member).Result()
		return err
	})
	return ok, err
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := s.do(ctx, "smembers", func() error {
		var err error
		members, err = s.rdb.SMembers(ctx, key).Result()
		return err
	})
	return members, err
}

// Pipelined отправляет команды одной транзакцией MULTI/EXEC: наблюдатели
// видят либо все изменения, либо ни одного. fn может вызываться повторно.
func (s *Store) Pipelined(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	return s.do(ctx, "multi", func() error {
		_, err := s.rdb.TxPipelined(ctx, fn)
		return err
	})
}

// Watch выполняет оптимистичную транзакцию над keys. fn читает через tx
// и пишет через tx.TxPipelined; при конкурентном изменении ключей fn
// перезапускается.
func (s *Store) Watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	return s.do(ctx, "watch", func() error {
		for attempt := 0; attempt < maxWatchAttempts; attempt++ {
			err := s.rdb.Watch(ctx, fn, keys...)
			if !errors.Is(err, redis.TxFailedErr) {
				return err
			}
			s.log.Debug("Watched keys changed, restarting transaction", "keys", keys, "attempt", attempt+1)
		}
		return fmt.Errorf("transaction aborted after %d conflicts: %w", maxWatchAttempts, apperrors.ErrStoreUnavailable)
	})
}

func (s *Store) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt >= s.opts.MaxRetries {
			break
		}

		delay := s.retryDelay(attempt + 1)
		s.log.Warn("State store operation failed, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w: %v", op, apperrors.ErrStoreUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	if err == nil || passThrough(err) {
		return err
	}

	s.log.Error("State store operation failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %v", op, apperrors.ErrStoreUnavailable, err)
}

// retryDelay - экспоненциальный backoff: base * 2^(n-1), не больше max.
func (s *Store) retryDelay(retry int) time.Duration {
	delay := float64(s.opts.RetryBackoff) * math.Pow(2, float64(retry-1))
	if time.Duration(delay) > s.opts.MaxRetryBackoff {
		return s.opts.MaxRetryBackoff
	}
	return time.Duration(delay)
}

// passThrough - ошибки, которые отдаются вызывающему без обертки:
// отсутствие ключа, конфликт транзакции и доменные ошибки из fn.
func passThrough(err error) bool {
	if errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr) {
		return true
	}
	return apperrors.Kind(err) != nil
}

func retryable(err error) bool {
	if passThrough(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		// Ответ сервера (WRONGTYPE и т.п.) повтором не исправить.
		return false
	}
	return !errors.Is(err, redis.ErrClosed)
}
