package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/middleware"
	"realtime_chat/internal/service"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type MessageHandler struct {
	coordinator     service.Coordinator
	defaultPageSize int
	log             logger.Logger
}

func NewMessageHandler(coordinator service.Coordinator, defaultPageSize int, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		coordinator:     coordinator,
		defaultPageSize: defaultPageSize,
		log:             log,
	}
}

// GetMessages отдает историю от новых к старым. before - unix ms,
// строго раньше которого должны быть сообщения.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	limit, err := queryLimit(c, h.defaultPageSize)
	if err != nil {
		abort(c, err)
		return
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			abort(c, fmt.Errorf("before must be unix milliseconds: %w", apperrors.ErrInvalidArgument))
			return
		}
		t := time.UnixMilli(ms)
		before = &t
	}

	messages, err := h.coordinator.GetMessages(c.Request.Context(), middleware.UserID(c), c.Param("id"), limit, before)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

func queryLimit(c *gin.Context, defaultLimit int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer: %w", apperrors.ErrInvalidArgument)
	}
	return limit, nil
}
