package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

type wsTransport struct {
	conn      *websocket.Conn
	stop      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport оборачивает соединение gorilla/websocket. Пинги
// отправляются отдельной горутиной через WriteControl.
func NewWebSocketTransport(conn *websocket.Conn, maxFrameBytes int64) Transport {
	if maxFrameBytes > 0 {
		conn.SetReadLimit(maxFrameBytes)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	t := &wsTransport{
		conn: conn,
		stop: make(chan struct{}),
	}
	go t.ping()
	return t
}

func (t *wsTransport) ping() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = t.Close()
				return
			}
		}
	}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.closed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrTransportClosed
			}
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	if t.closed() {
		return ErrTransportClosed
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrTransportClosed
		}
		return err
	}
	return nil
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) closed() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
