package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/middleware"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type RoomHandler struct {
	coordinator service.Coordinator
	notifier    RoomNotifier
	log         logger.Logger
}

func NewRoomHandler(coordinator service.Coordinator, notifier RoomNotifier, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		coordinator: coordinator,
		notifier:    notifier,
		log:         log,
	}
}

type CreateRoomRequest struct {
	Name      string          `json:"name"`
	Type      domain.RoomType `json:"type" binding:"required"`
	MemberIDs []string        `json:"memberIds"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, invalidRequest(err))
		return
	}

	room, err := h.coordinator.CreateRoom(c.Request.Context(), middleware.UserID(c), req.Name, req.Type, req.MemberIDs, req.Metadata)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.coordinator.ListUserRooms(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, rooms)
}

func (h *RoomHandler) GetByID(c *gin.Context) {
	room, err := h.coordinator.GetRoom(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Update(c *gin.Context) {
	var req domain.RoomUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, invalidRequest(err))
		return
	}

	roomID := c.Param("id")
	room, removed, err := h.coordinator.UpdateRoom(c.Request.Context(), middleware.UserID(c), roomID, req)
	if err != nil {
		abort(c, err)
		return
	}
	for _, userID := range removed {
		h.notifier.MemberRemoved(c.Request.Context(), roomID, userID)
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Delete(c *gin.Context) {
	roomID := c.Param("id")
	deleted, err := h.coordinator.DeleteRoom(c.Request.Context(), middleware.UserID(c), roomID)
	if err != nil {
		abort(c, err)
		return
	}
	if deleted {
		h.notifier.RoomDeleted(c.Request.Context(), roomID)
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type AddMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *RoomHandler) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, invalidRequest(err))
		return
	}

	room, err := h.coordinator.AddMember(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.UserID)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// RemoveMember удаляет участника; после последнего удаляется и комната.
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	roomID, userID := c.Param("id"), c.Param("userId")
	roomDeleted, err := h.coordinator.RemoveMember(c.Request.Context(), middleware.UserID(c), roomID, userID)
	if err != nil {
		abort(c, err)
		return
	}
	if roomDeleted {
		h.notifier.RoomDeleted(c.Request.Context(), roomID)
	} else {
		h.notifier.MemberRemoved(c.Request.Context(), roomID, userID)
	}

	c.JSON(http.StatusOK, gin.H{"roomDeleted": roomDeleted})
}
