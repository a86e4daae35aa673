package service

import (
	"context"
	"fmt"
	"time"

	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// Coordinator - внешний набор операций чата. Каждая операция выполняется
// от имени actorID и проверяет его права по данным каталога комнат.
// Записи комнат и сообщений не кешируются между вызовами.
type Coordinator interface {
	CreateRoom(ctx context.Context, actorID, name string, roomType domain.RoomType, memberIDs []string, metadata map[string]any) (*domain.Room, error)
	GetRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error)
	// UpdateRoom возвращает и участников, исключенных заменой состава
	UpdateRoom(ctx context.Context, actorID, roomID string, update domain.RoomUpdate) (*domain.Room, []string, error)
	DeleteRoom(ctx context.Context, actorID, roomID string) (bool, error)
	ListUserRooms(ctx context.Context, userID string) ([]*domain.Room, error)
	AddMember(ctx context.Context, actorID, roomID, userID string) (*domain.Room, error)
	RemoveMember(ctx context.Context, actorID, roomID, userID string) (bool, error)

	// JoinRoom проверяет членство; в открытые комнаты добавляет участника
	JoinRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error)

	SendMessage(ctx context.Context, actorID, roomID string, contentType domain.ContentType, content string, metadata map[string]any) (*domain.Message, error)
	EditMessage(ctx context.Context, actorID, roomID, messageID string, update domain.MessageUpdate) (*domain.Message, error)
	DeleteMessage(ctx context.Context, actorID, roomID, messageID string) error
	MarkRead(ctx context.Context, actorID, roomID, messageID string) (*domain.Message, error)
	GetMessages(ctx context.Context, actorID, roomID string, limit int, before *time.Time) ([]*domain.Message, error)

	GetOnlineUsers(ctx context.Context, limit int) ([]*domain.Presence, error)
	GetPresence(ctx context.Context, userID string) (*domain.Presence, error)
}

type coordinator struct {
	rooms    RoomService
	chat     ChatService
	presence PresenceService
	audit    AuditService
	log      logger.Logger
}

func NewCoordinator(rooms RoomService, chat ChatService, presence PresenceService, audit AuditService, log logger.Logger) Coordinator {
	return &coordinator{
		rooms:    rooms,
		chat:     chat,
		presence: presence,
		audit:    audit,
		log:      log,
	}
}

func (c *coordinator) CreateRoom(ctx context.Context, actorID, name string, roomType domain.RoomType, memberIDs []string, metadata map[string]any) (*domain.Room, error) {
	room, err := c.rooms.Create(ctx, name, roomType, memberIDs, metadata)
	if err != nil {
		return nil, err
	}
	c.log.Debug("Room created by user", "room_id", room.ID, "actor_id", actorID)
	c.audit.LogEvent(ctx, actorID, room.ID, domain.EventTypeRoomCreated, map[string]any{
		"name":      room.Name,
		"type":      room.Type,
		"memberIds": room.MemberIDs,
	})
	return room, nil
}

func (c *coordinator) GetRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error) {
	return c.readableRoom(ctx, actorID, roomID)
}

func (c *coordinator) UpdateRoom(ctx context.Context, actorID, roomID string, update domain.RoomUpdate) (*domain.Room, []string, error) {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		return nil, nil, err
	}
	room, removed, err := c.rooms.Update(ctx, roomID, update)
	if err != nil {
		return nil, nil, err
	}
	c.audit.LogEvent(ctx, actorID, roomID, domain.EventTypeRoomUpdated, map[string]any{
		"name":      room.Name,
		"type":      room.Type,
		"memberIds": room.MemberIDs,
		"removed":   removed,
	})
	return room, removed, nil
}

func (c *coordinator) DeleteRoom(ctx context.Context, actorID, roomID string) (bool, error) {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		if apperrors.Is(err, apperrors.ErrRoomNotFound) {
			return false, nil
		}
		return false, err
	}
	deleted, err := c.rooms.Delete(ctx, roomID)
	if err != nil {
		return false, err
	}
	if deleted {
		c.audit.LogEvent(ctx, actorID, roomID, domain.EventTypeRoomDeleted, nil)
	}
	return deleted, nil
}

func (c *coordinator) ListUserRooms(ctx context.Context, userID string) ([]*domain.Room, error) {
	return c.rooms.ListByUser(ctx, userID)
}

func (c *coordinator) AddMember(ctx context.Context, actorID, roomID, userID string) (*domain.Room, error) {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	room, err := c.rooms.AddMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	c.audit.LogEvent(ctx, actorID, roomID, domain.EventTypeMemberAdded, map[string]any{"userId": userID})
	return room, nil
}

func (c *coordinator) RemoveMember(ctx context.Context, actorID, roomID, userID string) (bool, error) {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		return false, err
	}
	roomDeleted, err := c.rooms.RemoveMember(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	c.audit.LogEvent(ctx, actorID, roomID, domain.EventTypeMemberRemoved, map[string]any{
		"userId":      userID,
		"roomDeleted": roomDeleted,
	})
	return roomDeleted, nil
}

func (c *coordinator) JoinRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error) {
	room, err := c.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HasMember(actorID) {
		return room, nil
	}
	if !room.Type.OpenJoin() {
		return nil, fmt.Errorf("user %s is not a member of %s room %s: %w", actorID, room.Type, roomID, apperrors.ErrInvalidOperation)
	}
	room, err = c.rooms.AddMember(ctx, roomID, actorID)
	if err != nil {
		return nil, err
	}
	c.audit.LogEvent(ctx, actorID, roomID, domain.EventTypeRoomJoined, nil)
	return room, nil
}

func (c *coordinator) SendMessage(ctx context.Context, actorID, roomID string, contentType domain.ContentType, content string, metadata map[string]any) (*domain.Message, error) {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	return c.chat.Append(ctx, roomID, actorID, contentType, content, metadata)
}

func (c *coordinator) EditMessage(ctx context.Context, actorID, roomID, messageID string, update domain.MessageUpdate) (*domain.Message, error) {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	return c.chat.UpdateMessage(ctx, roomID, messageID, update, senderOnly(actorID))
}

func (c *coordinator) DeleteMessage(ctx context.Context, actorID, roomID, messageID string) error {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		return err
	}

	// Отправитель сообщения не меняется, поэтому проверка до удаления безопасна
	message, err := c.chat.GetMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if err := senderOnly(actorID)(message); err != nil {
		return err
	}
	return c.chat.DeleteMessage(ctx, roomID, messageID)
}

func (c *coordinator) MarkRead(ctx context.Context, actorID, roomID, messageID string) (*domain.Message, error) {
	if _, err := c.memberRoom(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	return c.chat.MarkRead(ctx, roomID, messageID, actorID)
}

func (c *coordinator) GetMessages(ctx context.Context, actorID, roomID string, limit int, before *time.Time) ([]*domain.Message, error) {
	if limit <= 0 {
		return nil, apperrors.ErrInvalidPagination
	}
	if _, err := c.readableRoom(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	return c.chat.GetMessages(ctx, roomID, limit, before)
}

func (c *coordinator) GetOnlineUsers(ctx context.Context, limit int) ([]*domain.Presence, error) {
	return c.presence.GetOnlineUsers(ctx, limit)
}

func (c *coordinator) GetPresence(ctx context.Context, userID string) (*domain.Presence, error) {
	return c.presence.GetPresence(ctx, userID)
}

// memberRoom возвращает комнату, если actorID в ней состоит.
func (c *coordinator) memberRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error) {
	room, err := c.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(actorID) {
		return nil, fmt.Errorf("user %s is not a member of room %s: %w", actorID, roomID, apperrors.ErrInvalidOperation)
	}
	return room, nil
}

// readableRoom - как memberRoom, но глобальные комнаты читает любой.
func (c *coordinator) readableRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error) {
	room, err := c.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Type != domain.RoomTypeGlobal && !room.HasMember(actorID) {
		return nil, fmt.Errorf("user %s is not a member of room %s: %w", actorID, roomID, apperrors.ErrInvalidOperation)
	}
	return room, nil
}

func senderOnly(actorID string) func(*domain.Message) error {
	return func(message *domain.Message) error {
		if message.SenderID != actorID {
			return fmt.Errorf("only the sender can change message %s: %w", message.ID, apperrors.ErrInvalidOperation)
		}
		return nil
	}
}
