package gateway

import (
	"context"
	"errors"
)

// ErrTransportClosed возвращается Read и Write после Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport - одно сетевое соединение, обменивающееся целыми кадрами.
// Read вызывается только из цикла сессии, Write только из writePump.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}
