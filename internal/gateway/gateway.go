package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"realtime_chat/internal/domain"
	"realtime_chat/internal/service"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

var ErrGatewayClosed = errors.New("gateway is shutting down")

const cleanupTimeout = 5 * time.Second

type Options struct {
	SendQueueSize   int
	DefaultPageSize int
}

// userState сериализует подключения и отключения одного пользователя на узле.
// Общий учет соединений ведется в хранилище, conns - локальное зеркало.
// stale - закрытые соединения, которые не удалось снять с учета.
type userState struct {
	mu    sync.Mutex
	conns int
	stale []string
	refs  int
}

type Gateway struct {
	auth        service.AuthService
	coordinator service.Coordinator
	presence    service.PresenceService
	relay       Relay
	opts        Options
	hub         *hub
	metrics     *metrics
	log         logger.Logger

	usersMu sync.Mutex
	users   map[string]*userState

	sessionsMu sync.Mutex
	sessions   map[*Session]struct{}
	closed     bool
}

// New создает шлюз. relay может быть nil, тогда рассылка только локальная.
func New(auth service.AuthService, coordinator service.Coordinator, presence service.PresenceService, relay Relay, opts Options, log logger.Logger) (*Gateway, error) {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 256
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}

	g := &Gateway{
		auth:        auth,
		coordinator: coordinator,
		presence:    presence,
		relay:       relay,
		opts:        opts,
		hub:         newHub(),
		metrics:     newMetrics(),
		log:         log.With("component", "gateway"),
		users:       make(map[string]*userState),
		sessions:    make(map[*Session]struct{}),
	}

	if relay != nil {
		if err := relay.Subscribe(g.deliverRemote); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Accept проверяет токен рукопожатия и регистрирует соединение.
// При ошибке аутентификации транспорт закрывается без побочных эффектов.
func (g *Gateway) Accept(ctx context.Context, token string, transport Transport) (*Session, error) {
	identity, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		g.metrics.rejected.Add(ctx, 1)
		_ = transport.Close()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}

	g.sessionsMu.Lock()
	closed := g.closed
	g.sessionsMu.Unlock()
	if closed {
		_ = transport.Close()
		return nil, ErrGatewayClosed
	}

	s := newSession(g, identity, transport)
	if err := g.connect(ctx, s.id, identity); err != nil {
		_ = transport.Close()
		return nil, err
	}
	g.metrics.connections.Add(ctx, 1)

	g.sessionsMu.Lock()
	if g.closed {
		g.sessionsMu.Unlock()
		s.close()
		return nil, ErrGatewayClosed
	}
	g.sessions[s] = struct{}{}
	g.sessionsMu.Unlock()

	s.log.Info("Connection accepted")
	return s, nil
}

// Serve - Accept и Run одним вызовом, блокируется до закрытия соединения.
func (g *Gateway) Serve(ctx context.Context, token string, transport Transport) error {
	s, err := g.Accept(ctx, token, transport)
	if err != nil {
		return err
	}
	s.Run(ctx)
	return nil
}

// Shutdown закрывает все соединения, выполняя для каждого обычную очистку.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.sessionsMu.Lock()
	g.closed = true
	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.sessionsMu.Unlock()

	g.log.Info("Closing connections", "count", len(sessions))
	for _, s := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.close()
	}
	g.releaseStale(ctx)

	if g.relay != nil {
		if err := g.relay.Close(); err != nil {
			g.log.Warn("Failed to close relay", "error", err)
		}
	}
	return nil
}

// ConnectionCount - число открытых соединений пользователя на этом узле.
func (g *Gateway) ConnectionCount(userID string) int {
	g.usersMu.Lock()
	st, ok := g.users[userID]
	g.usersMu.Unlock()
	if !ok {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.conns
}

// RoomDeleted рассылает room:deleted и отписывает всех от комнаты.
func (g *Gateway) RoomDeleted(ctx context.Context, roomID string) {
	g.broadcast(ctx, roomID, EventRoomDeleted, RoomDeletedEvent{RoomID: roomID}, nil)
	g.dropRoom(roomID)
}

// MemberRemoved рассылает room:member-removed и отписывает соединения
// исключенного пользователя от комнаты.
func (g *Gateway) MemberRemoved(ctx context.Context, roomID, userID string) {
	g.broadcast(ctx, roomID, EventRoomMemberRemoved, MemberRemovedEvent{RoomID: roomID, UserID: userID}, nil)
	g.dropMember(roomID, userID)
}

func (g *Gateway) dropRoom(roomID string) {
	for _, s := range g.hub.drop(roomID) {
		s.forget(roomID)
	}
}

func (g *Gateway) dropMember(roomID, userID string) {
	for _, s := range g.hub.dropUser(roomID, userID) {
		s.forget(roomID)
		s.log.Debug("Unsubscribed removed member", "room_id", roomID)
	}
}

func (g *Gateway) lockUser(userID string) *userState {
	g.usersMu.Lock()
	st, ok := g.users[userID]
	if !ok {
		st = &userState{}
		g.users[userID] = st
	}
	st.refs++
	g.usersMu.Unlock()

	st.mu.Lock()
	return st
}

func (g *Gateway) unlockUser(userID string, st *userState) {
	st.mu.Unlock()

	g.usersMu.Lock()
	st.refs--
	if st.refs == 0 && st.conns == 0 && len(st.stale) == 0 {
		delete(g.users, userID)
	}
	g.usersMu.Unlock()
}

// connect регистрирует соединение в общем учете и переводит пользователя
// в онлайн. Заодно снимает с учета ранее не снятые соединения.
func (g *Gateway) connect(ctx context.Context, connID string, identity domain.Identity) error {
	st := g.lockUser(identity.UserID)
	defer g.unlockUser(identity.UserID, st)

	if _, err := g.presence.Connect(ctx, identity.UserID, connID, identity.Profile); err != nil {
		return err
	}
	st.conns++

	if len(st.stale) > 0 {
		if _, err := g.presence.Disconnect(ctx, identity.UserID, st.stale...); err != nil {
			g.log.Warn("Failed to release stale connections", "user_id", identity.UserID, "count", len(st.stale), "error", err)
		} else {
			st.stale = nil
		}
	}
	return nil
}

// disconnect снимает соединение с учета. Если у пользователя не осталось
// соединений ни на одном узле, комнаты закрытой сессии получают user:offline.
// При ошибке хранилища соединение остается в stale до следующей попытки.
func (g *Gateway) disconnect(ctx context.Context, connID, userID string, rooms []string) {
	st := g.lockUser(userID)
	defer g.unlockUser(userID, st)

	if st.conns > 0 {
		st.conns--
	}

	connIDs := append(st.stale, connID)
	wentOffline, err := g.presence.Disconnect(ctx, userID, connIDs...)
	if err != nil {
		st.stale = connIDs
		g.log.Warn("Failed to release connection", "user_id", userID, "conn_id", connID, "pending", len(connIDs), "error", err)
		return
	}
	st.stale = nil

	if !wentOffline {
		return
	}
	for _, roomID := range rooms {
		g.broadcast(ctx, roomID, EventUserOffline, UserOfflineEvent{UserID: userID}, nil)
	}
}

// releaseStale повторяет снятие с учета соединений, закрытых с ошибкой.
func (g *Gateway) releaseStale(ctx context.Context) {
	g.usersMu.Lock()
	userIDs := make([]string, 0, len(g.users))
	for userID := range g.users {
		userIDs = append(userIDs, userID)
	}
	g.usersMu.Unlock()

	for _, userID := range userIDs {
		st := g.lockUser(userID)
		if len(st.stale) > 0 {
			if _, err := g.presence.Disconnect(ctx, userID, st.stale...); err != nil {
				g.log.Warn("Failed to release stale connections", "user_id", userID, "count", len(st.stale), "error", err)
			} else {
				st.stale = nil
			}
		}
		g.unlockUser(userID, st)
	}
}

func (g *Gateway) unregister(s *Session) {
	g.sessionsMu.Lock()
	delete(g.sessions, s)
	g.sessionsMu.Unlock()
}

// broadcast доставляет событие группе комнаты на этом узле, кроме exclude,
// и передает кадр остальным узлам.
func (g *Gateway) broadcast(ctx context.Context, roomID, event string, data any, exclude *Session) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		g.log.Error("Failed to encode event", "event", event, "room_id", roomID, "error", err)
		return
	}

	g.deliver(roomID, frame, exclude)
	g.metrics.event(ctx, g.metrics.broadcasts, event)

	if g.relay != nil {
		if err := g.relay.Publish(ctx, roomID, frame); err != nil {
			g.log.Warn("Failed to relay event", "event", event, "room_id", roomID, "error", err)
		}
	}
}

func (g *Gateway) deliver(roomID string, frame []byte, exclude *Session) {
	for _, s := range g.hub.members(roomID) {
		if s == exclude {
			continue
		}
		s.enqueue(frame)
	}
}

// deliverRemote доставляет кадр другого узла. События, меняющие группы
// рассылки, применяются и к локальным группам.
func (g *Gateway) deliverRemote(ctx context.Context, roomID string, frame []byte) {
	g.metrics.relayed.Add(ctx, 1)
	g.deliver(roomID, frame, nil)

	var peek inboundFrame
	if err := json.Unmarshal(frame, &peek); err != nil {
		g.log.Warn("Failed to decode relayed frame", "room_id", roomID, "error", err)
		return
	}
	switch peek.Event {
	case EventRoomDeleted:
		g.dropRoom(roomID)
	case EventRoomMemberRemoved:
		var ev MemberRemovedEvent
		if err := json.Unmarshal(peek.Data, &ev); err != nil || ev.UserID == "" {
			g.log.Warn("Malformed relayed member removal", "room_id", roomID, "error", err)
			return
		}
		g.dropMember(roomID, ev.UserID)
	}
}
