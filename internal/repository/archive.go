package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

// MessageArchive принимает сообщения, вытесненные из журнала комнаты
// по лимиту хранения.
type MessageArchive interface {
	Archive(ctx context.Context, messages []*domain.Message) error
	Close()
}

const archiveSchema = `
	CREATE TABLE IF NOT EXISTS archived_messages (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL,
		sender_id   TEXT NOT NULL,
		type        TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		seq         BIGINT NOT NULL,
		edited_at   TIMESTAMPTZ,
		read_by     TEXT[] NOT NULL DEFAULT '{}',
		metadata    JSONB,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_archived_messages_room_created
		ON archived_messages (room_id, created_at DESC);
`

type postgresArchive struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewPostgresArchive(db *pgxpool.Pool, log logger.Logger) MessageArchive {
	return &postgresArchive{db: db, log: log}
}

// EnsureArchiveSchema создает таблицы архива и журнала аудита, если их еще нет.
func EnsureArchiveSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, schema := range []string{archiveSchema, auditSchema} {
		if _, err := db.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create archive schema: %w", err)
		}
	}
	return nil
}

func (a *postgresArchive) Archive(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	query := `
		INSERT INTO archived_messages (id, room_id, sender_id, type, content, created_at, seq, edited_at, read_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, m := range messages {
		var metadata []byte
		if len(m.Metadata) > 0 {
			b, err := json.Marshal(m.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
			metadata = b
		}
		readBy := m.ReadBy
		if readBy == nil {
			readBy = []string{}
		}
		batch.Queue(query,
			m.ID, m.RoomID, m.SenderID, string(m.ContentType), m.Content,
			m.CreatedAt, m.Seq, m.EditedAt, readBy, metadata,
		)
	}

	results := a.db.SendBatch(ctx, batch)
	defer results.Close()

	for range messages {
		if _, err := results.Exec(); err != nil {
			a.log.Error("Failed to archive message", "error", err)
			return err
		}
	}

	return nil
}

func (a *postgresArchive) Close() {
	a.db.Close()
}
