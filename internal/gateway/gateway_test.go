package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

func TestGateway_RejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for name, token := range map[string]string{"empty": "", "garbage": "not-a-token"} {
		t.Run(name, func(t *testing.T) {
			conn := newTestConn()
			s, err := env.gw.Accept(ctx, token, conn)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Equal(t, apperrors.ErrUnauthorized, apperrors.Kind(err))
			assert.True(t, conn.isClosed())
		})
	}

	online, err := env.svc.Presence.GetOnlineUsers(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestGateway_PresenceFollowsLastConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, firstConn := env.connect(t, "alice")
	second, secondConn := env.connect(t, "alice")
	assert.Equal(t, 2, env.gw.ConnectionCount("alice"))

	presence, err := env.svc.Presence.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, presence.Online)

	disconnect(t, first, firstConn)
	assert.Equal(t, 1, env.gw.ConnectionCount("alice"))

	presence, err = env.svc.Presence.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, presence.Online, "one connection is still open")

	disconnect(t, second, secondConn)
	assert.Equal(t, 0, env.gw.ConnectionCount("alice"))

	presence, err = env.svc.Presence.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, presence.Online)
	assert.Equal(t, StateClosed, second.State())
}

func TestGateway_BroadcastMatchesHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	_, aliceConn := env.connect(t, "alice")
	_, bobConn := env.connect(t, "bob")

	aliceConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, aliceConn.ack(t, 1).Success)
	bobConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 1).Success)

	joined := aliceConn.expect(t, EventRoomUserJoined)
	var joinedEvent UserJoinedEvent
	require.NoError(t, json.Unmarshal(joined.Data, &joinedEvent))
	assert.Equal(t, "bob", joinedEvent.UserID)

	aliceConn.request(t, 2, EventMessageSend, SendMessage{RoomID: room.ID, Content: "hello"})
	ack := aliceConn.ack(t, 2)
	require.True(t, ack.Success)

	var acked domain.Message
	require.NoError(t, json.Unmarshal(ack.Data, &acked))

	frame := bobConn.expect(t, EventMessageNew)
	var broadcast domain.Message
	require.NoError(t, json.Unmarshal(frame.Data, &broadcast))

	history, err := env.svc.Coordinator.GetMessages(ctx, "bob", room.ID, 10, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)

	for _, got := range []domain.Message{acked, broadcast} {
		assert.Equal(t, history[0].ID, got.ID)
		assert.Equal(t, "hello", got.Content)
		assert.Equal(t, "alice", got.SenderID)
		assert.Equal(t, domain.ContentTypeText, got.ContentType)
		assert.Equal(t, history[0].Seq, got.Seq)
		assert.True(t, history[0].CreatedAt.Equal(got.CreatedAt))
	}

	for _, f := range aliceConn.frames(t, 100*time.Millisecond) {
		assert.NotEqual(t, EventMessageNew, f.Event, "sender connection is excluded")
	}
}

func TestGateway_TypingIsNotStoppedOnDisconnect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	_, aliceConn := env.connect(t, "alice")
	bob, bobConn := env.connect(t, "bob")

	aliceConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, aliceConn.ack(t, 1).Success)
	bobConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 1).Success)

	bobConn.notify(t, EventTypingStart, StartTyping{RoomID: room.ID})
	started := aliceConn.expect(t, EventTypingStarted)
	var typing TypingEvent
	require.NoError(t, json.Unmarshal(started.Data, &typing))
	assert.Equal(t, "bob", typing.UserID)

	disconnect(t, bob, bobConn)

	got := events(aliceConn.frames(t, 200*time.Millisecond))
	assert.Contains(t, got, EventRoomUserLeft)
	assert.Contains(t, got, EventUserOffline)
	assert.NotContains(t, got, EventTypingStopped)
}

func TestGateway_ErrorAcks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	direct, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "dm", domain.RoomTypeDirect, []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	group, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "mallory"}, nil)
	require.NoError(t, err)

	_, conn := env.connect(t, "mallory")

	t.Run("join direct room as outsider", func(t *testing.T) {
		conn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: direct.ID})
		ack := conn.ack(t, 1)
		assert.False(t, ack.Success)
		require.NotNil(t, ack.Error)
		assert.Equal(t, apperrors.CodeInvalidOperation, ack.Error.Code)
	})

	t.Run("create room without members", func(t *testing.T) {
		conn.request(t, 2, EventRoomCreate, CreateRoom{Name: "empty", Type: domain.RoomTypeGroup, MemberIDs: []string{}})
		ack := conn.ack(t, 2)
		assert.False(t, ack.Success)
		require.NotNil(t, ack.Error)
		assert.Equal(t, apperrors.CodeInvalidArgument, ack.Error.Code)
	})

	t.Run("send without subscription", func(t *testing.T) {
		conn.request(t, 3, EventMessageSend, SendMessage{RoomID: group.ID, Content: "hi"})
		ack := conn.ack(t, 3)
		assert.False(t, ack.Success)
		require.NotNil(t, ack.Error)
		assert.Equal(t, apperrors.CodeInvalidOperation, ack.Error.Code)
	})

	t.Run("missing room", func(t *testing.T) {
		conn.request(t, 4, EventRoomJoin, JoinRoom{RoomID: "missing"})
		ack := conn.ack(t, 4)
		require.NotNil(t, ack.Error)
		assert.Equal(t, apperrors.CodeNotFound, ack.Error.Code)
	})

	t.Run("unknown event", func(t *testing.T) {
		conn.request(t, 5, "room:explode", map[string]any{})
		ack := conn.ack(t, 5)
		require.NotNil(t, ack.Error)
		assert.Equal(t, apperrors.CodeInvalidArgument, ack.Error.Code)
	})

	t.Run("malformed frame without id", func(t *testing.T) {
		conn.in <- []byte("{not json")
		frame := conn.expect(t, EventError)
		var ackErr AckError
		require.NoError(t, json.Unmarshal(frame.Data, &ackErr))
		assert.Equal(t, apperrors.CodeInvalidArgument, ackErr.Code)
	})

	t.Run("connection survives errors", func(t *testing.T) {
		conn.request(t, 6, EventRoomJoin, JoinRoom{RoomID: group.ID})
		assert.True(t, conn.ack(t, 6).Success)
	})
}

func TestGateway_CreateJoinEditDeleteRead(t *testing.T) {
	env := newTestEnv(t)

	_, aliceConn := env.connect(t, "alice")
	_, bobConn := env.connect(t, "bob")

	aliceConn.request(t, 1, EventRoomCreate, CreateRoom{Name: "squad", Type: domain.RoomTypeGroup, MemberIDs: []string{"alice", "bob"}})
	ack := aliceConn.ack(t, 1)
	require.True(t, ack.Success)
	var room domain.Room
	require.NoError(t, json.Unmarshal(ack.Data, &room))
	assert.Equal(t, []string{"alice", "bob"}, room.MemberIDs)

	aliceConn.request(t, 2, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, aliceConn.ack(t, 2).Success)
	bobConn.request(t, 2, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 2).Success)

	aliceConn.request(t, 3, EventMessageSend, SendMessage{RoomID: room.ID, Content: "helo"})
	ack = aliceConn.ack(t, 3)
	require.True(t, ack.Success)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(ack.Data, &msg))

	content := "hello"
	aliceConn.request(t, 4, EventMessageEdit, EditMessage{RoomID: room.ID, MessageID: msg.ID, Content: &content})
	require.True(t, aliceConn.ack(t, 4).Success)
	updated := bobConn.expect(t, EventMessageUpdated)
	var edited domain.Message
	require.NoError(t, json.Unmarshal(updated.Data, &edited))
	assert.Equal(t, "hello", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	bobConn.request(t, 3, EventMessageRead, MarkRead{RoomID: room.ID, MessageID: msg.ID})
	require.True(t, bobConn.ack(t, 3).Success)
	read := aliceConn.expect(t, EventMessageReadBy)
	var readEvent MessageReadEvent
	require.NoError(t, json.Unmarshal(read.Data, &readEvent))
	assert.Equal(t, "bob", readEvent.UserID)
	assert.Equal(t, msg.ID, readEvent.MessageID)

	bobConn.request(t, 4, EventMessageDelete, DeleteMessage{RoomID: room.ID, MessageID: msg.ID})
	ack = bobConn.ack(t, 4)
	require.NotNil(t, ack.Error)
	assert.Equal(t, apperrors.CodeInvalidOperation, ack.Error.Code)

	aliceConn.request(t, 5, EventMessageDelete, DeleteMessage{RoomID: room.ID, MessageID: msg.ID})
	require.True(t, aliceConn.ack(t, 5).Success)
	deleted := bobConn.expect(t, EventMessageDeleted)
	var deletedEvent MessageDeletedEvent
	require.NoError(t, json.Unmarshal(deleted.Data, &deletedEvent))
	assert.Equal(t, msg.ID, deletedEvent.MessageID)

	bobConn.request(t, 5, EventRoomLeave, LeaveRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 5).Success)
	aliceConn.expect(t, EventRoomUserLeft)

	bobConn.request(t, 6, EventRoomLeave, LeaveRoom{RoomID: room.ID})
	ack = bobConn.ack(t, 6)
	require.NotNil(t, ack.Error)
	assert.Equal(t, apperrors.CodeInvalidOperation, ack.Error.Code)
}

func TestGateway_OnlineUsers(t *testing.T) {
	env := newTestEnv(t)

	_, aliceConn := env.connect(t, "alice")
	env.connect(t, "bob")

	aliceConn.request(t, 1, EventPresenceOnline, OnlineUsers{})
	ack := aliceConn.ack(t, 1)
	require.True(t, ack.Success)

	var online []domain.Presence
	require.NoError(t, json.Unmarshal(ack.Data, &online))
	ids := make([]string, 0, len(online))
	for _, p := range online {
		ids = append(ids, p.UserID)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)

	aliceConn.request(t, 2, EventPresenceOnline, OnlineUsers{Limit: -1})
	ack = aliceConn.ack(t, 2)
	require.NotNil(t, ack.Error)
	assert.Equal(t, apperrors.CodeInvalidArgument, ack.Error.Code)
}

func TestGateway_RoomDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice"}, nil)
	require.NoError(t, err)

	alice, aliceConn := env.connect(t, "alice")
	aliceConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, aliceConn.ack(t, 1).Success)

	deleted, err := env.svc.Coordinator.DeleteRoom(ctx, "alice", room.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	env.gw.RoomDeleted(ctx, room.ID)

	frame := aliceConn.expect(t, EventRoomDeleted)
	var event RoomDeletedEvent
	require.NoError(t, json.Unmarshal(frame.Data, &event))
	assert.Equal(t, room.ID, event.RoomID)
	assert.Empty(t, alice.Rooms())
	assert.Zero(t, env.gw.hub.size(room.ID))
}

func TestGateway_MemberRemoved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	_, aliceConn := env.connect(t, "alice")
	bob, bobConn := env.connect(t, "bob")
	aliceConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, aliceConn.ack(t, 1).Success)
	bobConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 1).Success)

	deleted, err := env.svc.Coordinator.RemoveMember(ctx, "alice", room.ID, "bob")
	require.NoError(t, err)
	require.False(t, deleted)
	env.gw.MemberRemoved(ctx, room.ID, "bob")

	frame := bobConn.expect(t, EventRoomMemberRemoved)
	var event MemberRemovedEvent
	require.NoError(t, json.Unmarshal(frame.Data, &event))
	assert.Equal(t, MemberRemovedEvent{RoomID: room.ID, UserID: "bob"}, event)
	aliceConn.expect(t, EventRoomMemberRemoved)

	assert.Empty(t, bob.Rooms())
	assert.Equal(t, 1, env.gw.hub.size(room.ID))

	aliceConn.request(t, 2, EventMessageSend, SendMessage{RoomID: room.ID, Content: "bob is gone"})
	require.True(t, aliceConn.ack(t, 2).Success)
	assert.NotContains(t, events(bobConn.frames(t, 100*time.Millisecond)), EventMessageNew)

	bobConn.request(t, 2, EventMessageSend, SendMessage{RoomID: room.ID, Content: "still here?"})
	assert.False(t, bobConn.ack(t, 2).Success)
}

func TestGateway_PresenceSharedAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	nodeA := newTestEnvWith(t, mr, nil, Options{SendQueueSize: 64})
	nodeB := newTestEnvWith(t, mr, nil, Options{SendQueueSize: 64})
	ctx := context.Background()

	room, err := nodeA.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	onA, onAConn := nodeA.connect(t, "alice")
	onB, onBConn := nodeB.connect(t, "alice")
	_, bobConn := nodeA.connect(t, "bob")

	onAConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, onAConn.ack(t, 1).Success)
	bobConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 1).Success)

	disconnect(t, onA, onAConn)
	assert.Equal(t, 0, nodeA.gw.ConnectionCount("alice"))
	assert.Equal(t, 1, nodeB.gw.ConnectionCount("alice"))

	presence, err := nodeA.svc.Presence.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, presence.Online, "connection on the other node is still open")

	online, err := nodeA.svc.Presence.GetOnlineUsers(ctx, 10)
	require.NoError(t, err)
	var ids []string
	for _, p := range online {
		ids = append(ids, p.UserID)
	}
	assert.Contains(t, ids, "alice")

	got := events(bobConn.frames(t, 100*time.Millisecond))
	assert.Contains(t, got, EventRoomUserLeft)
	assert.NotContains(t, got, EventUserOffline)

	disconnect(t, onB, onBConn)

	presence, err = nodeA.svc.Presence.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, presence.Online)
}

func TestGateway_ReleasesConnectionAfterStoreError(t *testing.T) {
	t.Run("on next connect", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		s, conn := env.connect(t, "alice")
		env.mr.SetError("LOADING server is loading")
		disconnect(t, s, conn)
		env.mr.SetError("")

		presence, err := env.svc.Presence.GetPresence(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, presence.Online)

		s, conn = env.connect(t, "alice")
		disconnect(t, s, conn)

		presence, err = env.svc.Presence.GetPresence(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, presence.Online)
	})

	t.Run("on shutdown", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		s, conn := env.connect(t, "alice")
		env.mr.SetError("LOADING server is loading")
		disconnect(t, s, conn)
		env.mr.SetError("")

		require.NoError(t, env.gw.Shutdown(ctx))

		presence, err := env.svc.Presence.GetPresence(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, presence.Online)
	})
}

// panicConn паникует при повторном чтении.
type panicConn struct {
	*testConn
	reads int
}

func (c *panicConn) Read(ctx context.Context) ([]byte, error) {
	c.reads++
	if c.reads > 1 {
		panic("transport exploded")
	}
	return c.testConn.Read(ctx)
}

func TestGateway_PanicTerminatesOnlyThatConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	_, aliceConn := env.connect(t, "alice")
	aliceConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, aliceConn.ack(t, 1).Success)

	conn := &panicConn{testConn: newTestConn()}
	bob, err := env.gw.Accept(ctx, testToken(t, "bob"), conn)
	require.NoError(t, err)
	go bob.Run(ctx)

	conn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})

	select {
	case <-bob.Done():
	case <-time.After(waitFrame):
		t.Fatal("panicking session was not cleaned up")
	}

	presence, err := env.svc.Presence.GetPresence(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, presence.Online)

	aliceConn.request(t, 2, EventMessageSend, SendMessage{RoomID: room.ID, Content: "still here"})
	assert.True(t, aliceConn.ack(t, 2).Success)
}

func TestGateway_StoreOutageFailsOperationNotConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice"}, nil)
	require.NoError(t, err)

	alice, conn := env.connect(t, "alice")
	conn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, conn.ack(t, 1).Success)

	env.mr.SetError("LOADING server is loading")
	conn.request(t, 2, EventMessageSend, SendMessage{RoomID: room.ID, Content: "hello"})
	ack := conn.ack(t, 2)
	require.NotNil(t, ack.Error)
	assert.Equal(t, apperrors.CodeStoreUnavailable, ack.Error.Code)
	assert.Equal(t, StateAuthenticated, alice.State())

	env.mr.SetError("")
	conn.request(t, 3, EventMessageSend, SendMessage{RoomID: room.ID, Content: "hello again"})
	assert.True(t, conn.ack(t, 3).Success)
}

func TestGateway_RelayDeliversAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newMemBus()
	nodeA := newTestEnvWith(t, mr, bus.relay("a"), Options{SendQueueSize: 64})
	nodeB := newTestEnvWith(t, mr, bus.relay("b"), Options{SendQueueSize: 64})
	ctx := context.Background()

	room, err := nodeA.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	_, aliceConn := nodeA.connect(t, "alice")
	_, bobConn := nodeB.connect(t, "bob")

	aliceConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, aliceConn.ack(t, 1).Success)
	bobConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 1).Success)

	aliceConn.request(t, 2, EventMessageSend, SendMessage{RoomID: room.ID, Content: "cross-node"})
	require.True(t, aliceConn.ack(t, 2).Success)

	frame := bobConn.expect(t, EventMessageNew)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(frame.Data, &msg))
	assert.Equal(t, "cross-node", msg.Content)
}

func TestGateway_RelayUpdatesGroupsOnOtherNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newMemBus()
	nodeA := newTestEnvWith(t, mr, bus.relay("a"), Options{SendQueueSize: 64})
	nodeB := newTestEnvWith(t, mr, bus.relay("b"), Options{SendQueueSize: 64})
	ctx := context.Background()

	room, err := nodeA.svc.Coordinator.CreateRoom(ctx, "alice", "squad", domain.RoomTypeGroup, []string{"alice", "bob", "carol"}, nil)
	require.NoError(t, err)

	bob, bobConn := nodeB.connect(t, "bob")
	carol, carolConn := nodeB.connect(t, "carol")
	bobConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, bobConn.ack(t, 1).Success)
	carolConn.request(t, 1, EventRoomJoin, JoinRoom{RoomID: room.ID})
	require.True(t, carolConn.ack(t, 1).Success)

	_, err = nodeA.svc.Coordinator.RemoveMember(ctx, "alice", room.ID, "carol")
	require.NoError(t, err)
	nodeA.gw.MemberRemoved(ctx, room.ID, "carol")

	carolConn.expect(t, EventRoomMemberRemoved)
	assert.Empty(t, carol.Rooms())
	assert.Equal(t, []string{room.ID}, bob.Rooms())
	assert.Equal(t, 1, nodeB.gw.hub.size(room.ID))

	deleted, err := nodeA.svc.Coordinator.DeleteRoom(ctx, "alice", room.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	nodeA.gw.RoomDeleted(ctx, room.ID)

	bobConn.expect(t, EventRoomDeleted)
	assert.Empty(t, bob.Rooms())
	assert.Zero(t, nodeB.gw.hub.size(room.ID))
}

func TestGateway_Shutdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, conn := env.connect(t, "alice")
	require.NoError(t, env.gw.Shutdown(ctx))

	<-s.Done()
	assert.True(t, conn.isClosed())

	presence, err := env.svc.Presence.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, presence.Online)

	_, err = env.gw.Accept(ctx, testToken(t, "bob"), newTestConn())
	assert.True(t, errors.Is(err, ErrGatewayClosed))
}
