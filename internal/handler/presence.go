package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type PresenceHandler struct {
	coordinator     service.Coordinator
	defaultPageSize int
	log             logger.Logger
}

func NewPresenceHandler(coordinator service.Coordinator, defaultPageSize int, log logger.Logger) *PresenceHandler {
	return &PresenceHandler{
		coordinator:     coordinator,
		defaultPageSize: defaultPageSize,
		log:             log,
	}
}

func (h *PresenceHandler) Online(c *gin.Context) {
	limit, err := queryLimit(c, h.defaultPageSize)
	if err != nil {
		abort(c, err)
		return
	}

	users, err := h.coordinator.GetOnlineUsers(c.Request.Context(), limit)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

func (h *PresenceHandler) Get(c *gin.Context) {
	presence, err := h.coordinator.GetPresence(c.Request.Context(), c.Param("userId"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, presence)
}
