package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session - одно аутентифицированное соединение. Кадры читает Run,
// пишет writePump из очереди send.
type Session struct {
	id        string
	gw        *Gateway
	identity  domain.Identity
	transport Transport
	send      chan []byte
	done      chan struct{}
	finished  chan struct{}
	log       logger.Logger

	mu    sync.Mutex
	state State
	rooms map[string]struct{}

	closeOnce sync.Once
}

func newSession(g *Gateway, identity domain.Identity, transport Transport) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		gw:        g,
		identity:  identity,
		transport: transport,
		send:      make(chan []byte, g.opts.SendQueueSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		log:       g.log.With("user_id", identity.UserID, "conn_id", id),
		state:     StateAuthenticated,
		rooms:     make(map[string]struct{}),
	}
}

func (s *Session) UserID() string { return s.identity.UserID }

// ID - идентификатор соединения в общем учете присутствия.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Rooms возвращает отсортированный список комнат, на которые подписано соединение.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsLocked()
}

func (s *Session) roomsLocked() []string {
	rooms := make([]string, 0, len(s.rooms))
	for roomID := range s.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Done закрывается после очистки соединения.
func (s *Session) Done() <-chan struct{} { return s.finished }

// Run обрабатывает кадры до ошибки чтения. Паника в обработчике
// завершает только это соединение.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writePump(ctx)

	defer func() {
		if r := recover(); r != nil {
			s.gw.metrics.panics.Add(context.Background(), 1)
			s.log.Error("Connection task panicked", "panic", r, "stack", string(debug.Stack()))
		}
		s.close()
	}()

	for {
		raw, err := s.transport.Read(ctx)
		if err != nil {
			if !errors.Is(err, ErrTransportClosed) && ctx.Err() == nil {
				s.log.Debug("Connection read failed", "error", err)
			}
			return
		}

		id, msg, err := DecodeInbound(raw)
		if err != nil {
			s.reply(id, nil, err)
			continue
		}

		data, err := s.dispatch(ctx, msg)
		s.reply(id, data, err)
	}
}

func (s *Session) dispatch(ctx context.Context, msg Inbound) (any, error) {
	g := s.gw
	userID := s.identity.UserID

	switch m := msg.(type) {
	case JoinRoom:
		g.metrics.event(ctx, g.metrics.inbound, EventRoomJoin)
		room, err := g.coordinator.JoinRoom(ctx, userID, m.RoomID)
		if err != nil {
			return nil, err
		}
		joined, err := s.subscribe(room.ID)
		if err != nil {
			return nil, err
		}
		if joined {
			g.broadcast(ctx, room.ID, EventRoomUserJoined, UserJoinedEvent{
				RoomID:   room.ID,
				UserID:   userID,
				Username: s.identity.Username,
			}, s)
		}
		return room, nil

	case LeaveRoom:
		g.metrics.event(ctx, g.metrics.inbound, EventRoomLeave)
		if err := s.unsubscribe(m.RoomID); err != nil {
			return nil, err
		}
		g.broadcast(ctx, m.RoomID, EventRoomUserLeft, UserLeftEvent{RoomID: m.RoomID, UserID: userID}, nil)
		return nil, nil

	case CreateRoom:
		g.metrics.event(ctx, g.metrics.inbound, EventRoomCreate)
		return g.coordinator.CreateRoom(ctx, userID, m.Name, m.Type, m.MemberIDs, m.Metadata)

	case SendMessage:
		g.metrics.event(ctx, g.metrics.inbound, EventMessageSend)
		if err := s.requireSubscribed(m.RoomID); err != nil {
			return nil, err
		}
		message, err := g.coordinator.SendMessage(ctx, userID, m.RoomID, m.Type, m.Content, m.Metadata)
		if err != nil {
			return nil, err
		}
		g.broadcast(ctx, m.RoomID, EventMessageNew, message, s)
		return message, nil

	case EditMessage:
		g.metrics.event(ctx, g.metrics.inbound, EventMessageEdit)
		if err := s.requireSubscribed(m.RoomID); err != nil {
			return nil, err
		}
		message, err := g.coordinator.EditMessage(ctx, userID, m.RoomID, m.MessageID, domain.MessageUpdate{
			Content:  m.Content,
			Metadata: m.Metadata,
		})
		if err != nil {
			return nil, err
		}
		g.broadcast(ctx, m.RoomID, EventMessageUpdated, message, s)
		return message, nil

	case DeleteMessage:
		g.metrics.event(ctx, g.metrics.inbound, EventMessageDelete)
		if err := s.requireSubscribed(m.RoomID); err != nil {
			return nil, err
		}
		if err := g.coordinator.DeleteMessage(ctx, userID, m.RoomID, m.MessageID); err != nil {
			return nil, err
		}
		g.broadcast(ctx, m.RoomID, EventMessageDeleted, MessageDeletedEvent{RoomID: m.RoomID, MessageID: m.MessageID}, s)
		return nil, nil

	case MarkRead:
		g.metrics.event(ctx, g.metrics.inbound, EventMessageRead)
		if err := s.requireSubscribed(m.RoomID); err != nil {
			return nil, err
		}
		message, err := g.coordinator.MarkRead(ctx, userID, m.RoomID, m.MessageID)
		if err != nil {
			return nil, err
		}
		g.broadcast(ctx, m.RoomID, EventMessageReadBy, MessageReadEvent{
			RoomID:    m.RoomID,
			MessageID: m.MessageID,
			UserID:    userID,
		}, s)
		return message, nil

	case StartTyping:
		g.metrics.event(ctx, g.metrics.inbound, EventTypingStart)
		return nil, s.typing(ctx, m.RoomID, EventTypingStarted)

	case StopTyping:
		g.metrics.event(ctx, g.metrics.inbound, EventTypingStop)
		return nil, s.typing(ctx, m.RoomID, EventTypingStopped)

	case OnlineUsers:
		g.metrics.event(ctx, g.metrics.inbound, EventPresenceOnline)
		limit := m.Limit
		if limit == 0 {
			limit = g.opts.DefaultPageSize
		}
		return g.coordinator.GetOnlineUsers(ctx, limit)
	}

	return nil, fmt.Errorf("unsupported event %T: %w", msg, apperrors.ErrInvalidArgument)
}

// typing не сохраняется и не переживает разрыв соединения.
func (s *Session) typing(ctx context.Context, roomID, event string) error {
	if err := s.requireSubscribed(roomID); err != nil {
		return err
	}
	s.gw.broadcast(ctx, roomID, event, TypingEvent{
		RoomID:   roomID,
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
	}, s)
	return nil
}

// reply подтверждает кадр с id. Ошибку кадра без id клиент получает
// событием error.
func (s *Session) reply(id *int64, data any, err error) {
	var (
		frame   []byte
		encErr  error
		failure = err != nil
	)

	switch {
	case id != nil:
		frame, encErr = encodeAck(id, data, err)
	case failure:
		frame, encErr = encodeEvent(EventError, newAckError(err))
	default:
		return
	}

	if failure && apperrors.Code(err) == apperrors.CodeInternal {
		s.log.Error("Event failed", "error", err)
	}
	if encErr != nil {
		s.log.Error("Failed to encode reply", "error", encErr)
		return
	}
	s.enqueue(frame)
}

// enqueue не блокируется: при полной очереди кадр отбрасывается.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		s.gw.metrics.dropped.Add(context.Background(), 1)
		s.log.Warn("Send queue full, dropping frame")
		return false
	}
}

func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case frame := <-s.send:
			if err := s.transport.Write(ctx, frame); err != nil {
				if !errors.Is(err, ErrTransportClosed) {
					s.log.Debug("Connection write failed", "error", err)
				}
				_ = s.transport.Close()
				return
			}
		}
	}
}

// subscribe добавляет соединение в группу комнаты. false - уже подписано.
func (s *Session) subscribe(roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false, ErrTransportClosed
	}
	if _, ok := s.rooms[roomID]; ok {
		return false, nil
	}
	s.rooms[roomID] = struct{}{}
	s.gw.hub.join(roomID, s)
	return true, nil
}

func (s *Session) unsubscribe(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("room %s: %w", roomID, apperrors.ErrNotSubscribed)
	}
	delete(s.rooms, roomID)
	s.gw.hub.leave(roomID, s)
	return nil
}

// forget убирает комнату без рассылки, группа уже удалена.
func (s *Session) forget(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

func (s *Session) requireSubscribed(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("room %s: %w", roomID, apperrors.ErrNotSubscribed)
	}
	return nil
}

// close выполняется один раз: выход из групп с room:user-left,
// учет соединения и офлайн после последнего.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		rooms := s.roomsLocked()
		s.rooms = make(map[string]struct{})
		s.mu.Unlock()

		close(s.done)
		_ = s.transport.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		g := s.gw
		userID := s.identity.UserID
		for _, roomID := range rooms {
			g.hub.leave(roomID, s)
			g.broadcast(ctx, roomID, EventRoomUserLeft, UserLeftEvent{RoomID: roomID, UserID: userID}, nil)
		}

		g.disconnect(ctx, s.id, userID, rooms)
		g.unregister(s)
		g.metrics.connections.Add(ctx, -1)
		s.log.Info("Connection closed", "rooms", len(rooms))
		close(s.finished)
	})
}
