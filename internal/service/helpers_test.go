package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"realtime_chat/internal/config"
	"realtime_chat/internal/repository"
	"realtime_chat/pkg/logger"
)

const testSecret = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{AccessSecret: testSecret, Issuer: "game-social"},
		Chat: config.ChatConfig{
			RetentionCap:    1000,
			MaxPageSize:     1000,
			DefaultPageSize: 50,
			SendQueueSize:   16,
		},
	}
}

func newTestServices(t *testing.T, cfg *config.Config) (*Services, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Nop()
	store := repository.NewStore(rdb, repository.StoreOptions{
		MaxRetries:      1,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: time.Millisecond,
	}, log)
	repos := repository.NewRepositories(store, nil, cfg.Chat.RetentionCap, log)
	return NewServices(repos, cfg, log), mr
}
