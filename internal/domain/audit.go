package domain

import (
	"time"
)

// AuditEvent - запись журнала изменений комнат.
type AuditEvent struct {
	ID          int64          `json:"id"`
	EventTime   time.Time      `json:"eventTime"`
	ActorUserID string         `json:"actorUserId"`
	RoomID      string         `json:"roomId"`
	EventType   string         `json:"eventType"`
	Payload     map[string]any `json:"payload"`
}

const (
	EventTypeRoomCreated   = "ROOM_CREATED"
	EventTypeRoomUpdated   = "ROOM_UPDATED"
	EventTypeRoomDeleted   = "ROOM_DELETED"
	EventTypeRoomJoined    = "ROOM_JOINED"
	EventTypeMemberAdded   = "MEMBER_ADDED"
	EventTypeMemberRemoved = "MEMBER_REMOVED"
)
