package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, event *domain.AuditEvent) error
}

const auditSchema = `
	CREATE TABLE IF NOT EXISTS room_audit_log (
		id            BIGSERIAL PRIMARY KEY,
		event_time    TIMESTAMPTZ NOT NULL,
		actor_user_id TEXT NOT NULL,
		room_id       TEXT NOT NULL,
		event_type    TEXT NOT NULL,
		payload       JSONB NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_room_audit_log_room
		ON room_audit_log (room_id, event_time DESC);
`

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, event *domain.AuditEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO room_audit_log (event_time, actor_user_id, room_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err = r.db.QueryRow(ctx, query,
		event.EventTime, event.ActorUserID, event.RoomID, event.EventType, payload,
	).Scan(&event.ID)
	if err != nil {
		r.log.Error("Failed to create audit log", "error", err)
		return err
	}

	return nil
}
