package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"realtime_chat/internal/config"
	"realtime_chat/internal/gateway"
	"realtime_chat/internal/handler"
	"realtime_chat/internal/middleware"
	"realtime_chat/internal/repository"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	nodeID := cfg.NATS.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	appLogger = appLogger.With("node_id", nodeID)

	// Подключение к Redis. Повторы выполняет Store, у клиента они выключены.
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
		MaxRetries:  -1,
	})
	store := repository.NewStore(rdb, repository.StoreOptions{
		MaxRetries:      cfg.Redis.MaxRetries,
		RetryBackoff:    cfg.Redis.RetryBackoff,
		MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
	}, appLogger)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Архив вытесненной истории и журнал аудита в PostgreSQL (опционально)
	var (
		archive repository.MessageArchive
		audit   repository.AuditRepository
	)
	if cfg.Archive.DSN != "" {
		pool, err := openArchivePool(cfg.Archive)
		if err != nil {
			appLogger.Fatal("Failed to open message archive", "error", err)
		}
		archive = repository.NewPostgresArchive(pool, appLogger)
		audit = repository.NewAuditRepository(pool, appLogger)
		defer archive.Close()
		appLogger.Info("PostgreSQL archive connection established")
	}

	// Ретранслятор рассылок между узлами через NATS (опционально)
	var relay gateway.Relay
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("realtime-chat-"+nodeID),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			appLogger.Fatal("Failed to connect to NATS", "error", err)
		}
		relay = gateway.NewNATSRelay(nc, cfg.NATS.SubjectPrefix, nodeID, appLogger)
		appLogger.Info("NATS relay enabled", "url", cfg.NATS.URL)
	}

	// Инициализация репозиториев и сервисов
	repos := repository.NewRepositories(store, archive, cfg.Chat.RetentionCap, appLogger)
	repos.Audit = audit
	services := service.NewServices(repos, cfg, appLogger)

	gw, err := gateway.New(services.Auth, services.Coordinator, services.Presence, relay, gateway.Options{
		SendQueueSize:   cfg.Chat.SendQueueSize,
		DefaultPageSize: cfg.Chat.DefaultPageSize,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to start gateway", "error", err)
	}

	// Инициализация handlers и роутера
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	handlers := handler.NewHandlers(services, store, gw, cfg, appLogger)
	router := handler.NewRouter(handlers, authMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	// websocket соединения захвачены и не закрываются http.Server
	if err := gw.Shutdown(ctx); err != nil {
		appLogger.Error("Gateway shutdown incomplete", "error", err)
	}

	appLogger.Info("Server exited")
}

func openArchivePool(cfg config.ArchiveConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse archive dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if err := repository.EnsureArchiveSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
