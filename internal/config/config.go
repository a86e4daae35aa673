package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Chat        ChatConfig
	NATS        NATSConfig
	Archive     ArchiveConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  string
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	PoolSize        int
	DialTimeout     time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

type JWTConfig struct {
	AccessSecret string
	Issuer       string
}

type ChatConfig struct {
	RetentionCap    int
	MaxPageSize     int
	DefaultPageSize int
	SendQueueSize   int
	MaxFrameBytes   int64
}

// NATSConfig enables the cross-node broadcast relay when URL is set.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	NodeID        string
}

// ArchiveConfig enables the PostgreSQL archive of trimmed history when DSN is set.
type ArchiveConfig struct {
	DSN            string
	MaxConnections int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// Загрузка .env файла (если существует)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnv("SERVER_ALLOWED_ORIGINS", "*"),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			PoolSize:        getEnvAsInt("REDIS_POOL_SIZE", 50),
			DialTimeout:     getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			MaxRetries:      getEnvAsInt("REDIS_MAX_RETRIES", 3),
			RetryBackoff:    getEnvAsDuration("REDIS_RETRY_BACKOFF", 50*time.Millisecond),
			MaxRetryBackoff: getEnvAsDuration("REDIS_MAX_RETRY_BACKOFF", time.Second),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "your-access-secret-key-change-in-production"),
			Issuer:       getEnv("JWT_ISSUER", "game-social"),
		},
		Chat: ChatConfig{
			RetentionCap:    getEnvAsInt("CHAT_RETENTION_CAP", 1000),
			MaxPageSize:     getEnvAsInt("CHAT_MAX_PAGE_SIZE", 1000),
			DefaultPageSize: getEnvAsInt("CHAT_DEFAULT_PAGE_SIZE", 50),
			SendQueueSize:   getEnvAsInt("CHAT_SEND_QUEUE_SIZE", 256),
			MaxFrameBytes:   int64(getEnvAsInt("CHAT_MAX_FRAME_BYTES", 64*1024)),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "chat.room"),
			NodeID:        getEnv("NODE_ID", ""),
		},
		Archive: ArchiveConfig{
			DSN:            getEnv("ARCHIVE_DSN", ""),
			MaxConnections: getEnvAsInt("ARCHIVE_MAX_CONNECTIONS", 10),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("JWT access secret must be set")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address must be set")
	}
	if c.Redis.MaxRetries < 0 {
		return fmt.Errorf("redis max retries must not be negative")
	}
	if c.Chat.RetentionCap <= 0 {
		return fmt.Errorf("chat retention cap must be positive")
	}
	if c.Chat.MaxPageSize <= 0 || c.Chat.DefaultPageSize <= 0 {
		return fmt.Errorf("chat page sizes must be positive")
	}
	if c.Chat.DefaultPageSize > c.Chat.MaxPageSize {
		return fmt.Errorf("chat default page size exceeds max page size")
	}
	if c.Chat.SendQueueSize <= 0 {
		return fmt.Errorf("chat send queue size must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
