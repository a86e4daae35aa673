package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/config"
	"realtime_chat/internal/gateway"
	"realtime_chat/internal/service"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// Pinger - проверка доступности хранилища для /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RoomNotifier получает изменения комнат, сделанные через HTTP,
// чтобы разослать их подключенным клиентам.
type RoomNotifier interface {
	RoomDeleted(ctx context.Context, roomID string)
	MemberRemoved(ctx context.Context, roomID, userID string)
}

type Handlers struct {
	Health    *HealthHandler
	Room      *RoomHandler
	Message   *MessageHandler
	Presence  *PresenceHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, store Pinger, gw *gateway.Gateway, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(store),
		Room:      NewRoomHandler(services.Coordinator, gw, log),
		Message:   NewMessageHandler(services.Coordinator, cfg.Chat.DefaultPageSize, log),
		Presence:  NewPresenceHandler(services.Coordinator, cfg.Chat.DefaultPageSize, log),
		WebSocket: NewWebSocketHandler(gw, cfg.Server.AllowedOrigins, cfg.Chat.MaxFrameBytes, log),
	}
}

// abort передает ошибку в middleware.ErrorHandler.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func invalidRequest(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
}
