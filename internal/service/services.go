package service

import (
	"realtime_chat/internal/config"
	"realtime_chat/internal/repository"
	"realtime_chat/pkg/logger"
)

type Services struct {
	Auth        AuthService
	Room        RoomService
	Chat        ChatService
	Presence    PresenceService
	Audit       AuditService
	Coordinator Coordinator
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	services := &Services{
		Auth:     NewAuthService(cfg.JWT, log),
		Room:     NewRoomService(repos.Room, log),
		Chat:     NewChatService(repos.Message, cfg.Chat, log),
		Presence: NewPresenceService(repos.Presence, cfg.Chat, log),
		Audit:    NewAuditService(repos.Audit, log),
	}
	services.Coordinator = NewCoordinator(services.Room, services.Chat, services.Presence, services.Audit, log)

	return services
}
