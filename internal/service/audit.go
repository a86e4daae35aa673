package service

import (
	"context"
	"time"

	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	"realtime_chat/pkg/logger"
)

// AuditService пишет журнал изменений комнат. Ошибки записи только
// логируются: аудит не отменяет уже выполненную операцию.
type AuditService interface {
	LogEvent(ctx context.Context, actorID, roomID, eventType string, payload map[string]any)
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

// NewAuditService с nil репозиторием возвращает сервис, который ничего не пишет.
func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorID, roomID, eventType string, payload map[string]any) {
	if s.auditRepo == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}

	event := &domain.AuditEvent{
		EventTime:   time.Now(),
		ActorUserID: actorID,
		RoomID:      roomID,
		EventType:   eventType,
		Payload:     payload,
	}

	if err := s.auditRepo.CreateLog(ctx, event); err != nil {
		s.log.Warn("Failed to write audit event", "event_type", eventType, "room_id", roomID, "error", err)
	}
}
