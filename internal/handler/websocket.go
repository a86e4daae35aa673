package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"realtime_chat/internal/gateway"
	"realtime_chat/internal/middleware"
	"realtime_chat/pkg/logger"
)

type WebSocketHandler struct {
	gw            *gateway.Gateway
	upgrader      websocket.Upgrader
	maxFrameBytes int64
	log           logger.Logger
}

func NewWebSocketHandler(gw *gateway.Gateway, allowedOrigins string, maxFrameBytes int64, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		gw: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.OriginAllowed(allowedOrigins),
		},
		maxFrameBytes: maxFrameBytes,
		log:           log,
	}
}

// Handle поднимает websocket и передает соединение шлюзу. Токен берется
// из ?token= или заголовка Authorization; проверяет его сам шлюз, после
// отказа соединение закрывается.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err)
		return
	}

	transport := gateway.NewWebSocketTransport(conn, h.maxFrameBytes)
	if err := h.gw.Serve(c.Request.Context(), token, transport); err != nil {
		h.log.Info("Connection refused", "remote_addr", c.ClientIP(), "error", err)
	}
}

// Status отдает число соединений пользователя на этом узле.
func (h *WebSocketHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userId":      middleware.UserID(c),
		"connections": h.gw.ConnectionCount(middleware.UserID(c)),
	})
}
