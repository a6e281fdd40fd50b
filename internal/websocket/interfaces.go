package websocket

import (
	"context"
	"time"

	"bmidash/pkg/contracts/events"
)

// Connection is the subset of a gorilla connection the client pumps use,
// so tests can substitute MockConnection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
}

// HubInterface lets handlers and services depend on the hub abstractly
type HubInterface interface {
	Register(client *Client)
	Unregister(client *Client)
	Broadcast(ctx context.Context, msgType events.MessageType, data interface{}) error
	ClientCount() int
	Start()
	Stop()
}

var _ HubInterface = (*Hub)(nil)
