package gateway

import (
	"encoding/json"
	"fmt"

	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

// События клиента
const (
	EventRoomJoin       = "room:join"
	EventRoomLeave      = "room:leave"
	EventRoomCreate     = "room:create"
	EventMessageSend    = "message:send"
	EventMessageEdit    = "message:edit"
	EventMessageDelete  = "message:delete"
	EventMessageRead    = "message:read"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventPresenceOnline = "presence:online"
)

// События сервера
const (
	EventAck               = "ack"
	EventError             = "error"
	EventRoomUserJoined    = "room:user-joined"
	EventRoomUserLeft      = "room:user-left"
	EventRoomDeleted       = "room:deleted"
	EventRoomMemberRemoved = "room:member-removed"
	EventMessageNew        = "message:new"
	EventMessageUpdated    = "message:updated"
	EventMessageDeleted    = "message:deleted"
	EventMessageReadBy     = "message:read"
	EventTypingStarted     = "typing:started"
	EventTypingStopped     = "typing:stopped"
	EventUserOffline       = "user:offline"
)

// Inbound - разобранное событие клиента. Набор вариантов закрыт:
// сессия перебирает их в type switch.
type Inbound interface {
	inbound()
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type CreateRoom struct {
	Name      string          `json:"name"`
	Type      domain.RoomType `json:"type"`
	MemberIDs []string        `json:"memberIds"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

type SendMessage struct {
	RoomID   string             `json:"roomId"`
	Content  string             `json:"content"`
	Type     domain.ContentType `json:"type"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

type EditMessage struct {
	RoomID    string         `json:"roomId"`
	MessageID string         `json:"messageId"`
	Content   *string        `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type DeleteMessage struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type MarkRead struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type StartTyping struct {
	RoomID string `json:"roomId"`
}

type StopTyping struct {
	RoomID string `json:"roomId"`
}

type OnlineUsers struct {
	Limit int `json:"limit"`
}

func (JoinRoom) inbound()      {}
func (LeaveRoom) inbound()     {}
func (CreateRoom) inbound()    {}
func (SendMessage) inbound()   {}
func (EditMessage) inbound()   {}
func (DeleteMessage) inbound() {}
func (MarkRead) inbound()      {}
func (StartTyping) inbound()   {}
func (StopTyping) inbound()    {}
func (OnlineUsers) inbound()   {}

type inboundFrame struct {
	ID    *int64          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var decoders = map[string]func(json.RawMessage) (Inbound, error){
	EventRoomJoin:       decodeAs[JoinRoom],
	EventRoomLeave:      decodeAs[LeaveRoom],
	EventRoomCreate:     decodeAs[CreateRoom],
	EventMessageSend:    decodeAs[SendMessage],
	EventMessageEdit:    decodeAs[EditMessage],
	EventMessageDelete:  decodeAs[DeleteMessage],
	EventMessageRead:    decodeAs[MarkRead],
	EventTypingStart:    decodeAs[StartTyping],
	EventTypingStop:     decodeAs[StopTyping],
	EventPresenceOnline: decodeAs[OnlineUsers],
}

func decodeAs[T Inbound](data json.RawMessage) (Inbound, error) {
	var msg T
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// DecodeInbound разбирает кадр клиента. id возвращается, даже если
// данные события некорректны, чтобы ошибку можно было подтвердить.
func DecodeInbound(raw []byte) (*int64, Inbound, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, nil, fmt.Errorf("malformed frame: %w", apperrors.ErrInvalidArgument)
	}

	decode, ok := decoders[frame.Event]
	if !ok {
		return frame.ID, nil, fmt.Errorf("unknown event %q: %w", frame.Event, apperrors.ErrInvalidArgument)
	}

	msg, err := decode(frame.Data)
	if err != nil {
		return frame.ID, nil, fmt.Errorf("malformed %s payload: %w", frame.Event, apperrors.ErrInvalidArgument)
	}

	return frame.ID, msg, nil
}

// Outbound - кадр сервера. ID заполнен только у подтверждений.
type Outbound struct {
	ID    *int64 `json:"id,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Ack struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *AckError `json:"error,omitempty"`
}

type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newAckError(err error) *AckError {
	code := apperrors.Code(err)
	message := err.Error()
	if code == apperrors.CodeInternal {
		message = "internal error"
	}
	return &AckError{Code: code, Message: message}
}

func encodeAck(id *int64, data any, err error) ([]byte, error) {
	ack := Ack{Success: err == nil, Data: data}
	if err != nil {
		ack.Data = nil
		ack.Error = newAckError(err)
	}
	return json.Marshal(Outbound{ID: id, Event: EventAck, Data: ack})
}

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: data})
}

// Данные широковещательных событий

type UserJoinedEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserLeftEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type TypingEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserOfflineEvent struct {
	UserID string `json:"userId"`
}

type RoomDeletedEvent struct {
	RoomID string `json:"roomId"`
}

type MemberRemovedEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type MessageDeletedEvent struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type MessageReadEvent struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}
