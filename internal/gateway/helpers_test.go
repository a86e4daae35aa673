package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/config"
	"realtime_chat/internal/repository"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/jwt"
	"realtime_chat/pkg/logger"
)

const (
	testSecret = "test-secret"
	testIssuer = "game-social"
	waitFrame  = 2 * time.Second
)

type testEnv struct {
	gw  *Gateway
	svc *service.Services
	mr  *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{AccessSecret: testSecret, Issuer: testIssuer},
		Chat: config.ChatConfig{
			RetentionCap:    1000,
			MaxPageSize:     1000,
			DefaultPageSize: 50,
			SendQueueSize:   64,
		},
	}
}

func newTestServices(t *testing.T, mr *miniredis.Miniredis) *service.Services {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Nop()
	store := repository.NewStore(rdb, repository.StoreOptions{
		MaxRetries:      1,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: time.Millisecond,
	}, log)
	cfg := testConfig()
	repos := repository.NewRepositories(store, nil, cfg.Chat.RetentionCap, log)
	return service.NewServices(repos, cfg, log)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	return newTestEnvWith(t, mr, nil, Options{SendQueueSize: 64})
}

func newTestEnvWith(t *testing.T, mr *miniredis.Miniredis, relay Relay, opts Options) *testEnv {
	t.Helper()

	svc := newTestServices(t, mr)
	gw, err := New(svc.Auth, svc.Coordinator, svc.Presence, relay, opts, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	return &testEnv{gw: gw, svc: svc, mr: mr}
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateAccessToken(userID, userID, "", testSecret, testIssuer, time.Hour)
	require.NoError(t, err)
	return token
}

// connect открывает аутентифицированное соединение и запускает его цикл.
func (e *testEnv) connect(t *testing.T, userID string) (*Session, *testConn) {
	t.Helper()

	conn := newTestConn()
	s, err := e.gw.Accept(context.Background(), testToken(t, userID), conn)
	require.NoError(t, err)
	go s.Run(context.Background())
	return s, conn
}

func disconnect(t *testing.T, s *Session, conn *testConn) {
	t.Helper()
	_ = conn.Close()
	select {
	case <-s.Done():
	case <-time.After(waitFrame):
		t.Fatalf("session of %s did not finish", s.UserID())
	}
}

// testConn - транспорт в памяти: in читает сессия, out пишет writePump.
type testConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newTestConn() *testConn {
	return &testConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *testConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.in:
		return frame, nil
	case <-c.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *testConn) Write(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return ErrTransportClosed
	case c.out <- frame:
		return nil
	}
}

func (c *testConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *testConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type testFrame struct {
	ID    *int64          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type testAck struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *AckError       `json:"error"`
}

func (c *testConn) request(t *testing.T, id int64, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": id, "event": event, "data": data})
	require.NoError(t, err)
	c.in <- raw
}

func (c *testConn) notify(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	c.in <- raw
}

// expect пропускает кадры, пока не придет событие event.
func (c *testConn) expect(t *testing.T, event string) testFrame {
	t.Helper()
	deadline := time.After(waitFrame)
	for {
		select {
		case raw := <-c.out:
			var frame testFrame
			require.NoError(t, json.Unmarshal(raw, &frame))
			if frame.Event == event {
				return frame
			}
		case <-deadline:
			t.Fatalf("no %s frame within %s", event, waitFrame)
		}
	}
}

func (c *testConn) ack(t *testing.T, id int64) testAck {
	t.Helper()
	deadline := time.After(waitFrame)
	for {
		select {
		case raw := <-c.out:
			var frame testFrame
			require.NoError(t, json.Unmarshal(raw, &frame))
			if frame.Event != EventAck || frame.ID == nil || *frame.ID != id {
				continue
			}
			var ack testAck
			require.NoError(t, json.Unmarshal(frame.Data, &ack))
			return ack
		case <-deadline:
			t.Fatalf("no ack for frame %d within %s", id, waitFrame)
		}
	}
}

// frames собирает все кадры, пришедшие за wait.
func (c *testConn) frames(t *testing.T, wait time.Duration) []testFrame {
	t.Helper()
	var frames []testFrame
	deadline := time.After(wait)
	for {
		select {
		case raw := <-c.out:
			var frame testFrame
			require.NoError(t, json.Unmarshal(raw, &frame))
			frames = append(frames, frame)
		case <-deadline:
			return frames
		}
	}
}

func events(frames []testFrame) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

// memRelay соединяет шлюзы одного теста, как общий брокер.
type memRelay struct {
	bus    *memBus
	nodeID string
}

type memBus struct {
	mu       sync.Mutex
	handlers map[string]RelayHandler
}

func newMemBus() *memBus {
	return &memBus{handlers: make(map[string]RelayHandler)}
}

func (b *memBus) relay(nodeID string) *memRelay {
	return &memRelay{bus: b, nodeID: nodeID}
}

func (r *memRelay) Publish(ctx context.Context, roomID string, frame []byte) error {
	r.bus.mu.Lock()
	handlers := make([]RelayHandler, 0, len(r.bus.handlers))
	for nodeID, h := range r.bus.handlers {
		if nodeID != r.nodeID {
			handlers = append(handlers, h)
		}
	}
	r.bus.mu.Unlock()

	for _, h := range handlers {
		h(ctx, roomID, frame)
	}
	return nil
}

func (r *memRelay) Subscribe(handler RelayHandler) error {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	r.bus.handlers[r.nodeID] = handler
	return nil
}

func (r *memRelay) Close() error {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	delete(r.bus.handlers, r.nodeID)
	return nil
}
