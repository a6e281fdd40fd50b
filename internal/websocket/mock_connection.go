package websocket

import (
	"errors"
	"sync"
	"time"
)

// ErrMockClosed is returned by MockConnection after Close
var ErrMockClosed = errors.New("mock connection closed")

// MockMessage is a frame written to or queued on a MockConnection
type MockMessage struct {
	Type int
	Data []byte
}

// MockConnection is an in-memory Connection for hub and client tests.
// ReadMessage blocks until a frame is queued with Push or the mock is closed.
type MockConnection struct {
	mu       sync.Mutex
	written  []MockMessage
	closed   bool
	writeErr error

	incoming  chan MockMessage
	closeOnce sync.Once
	done      chan struct{}

	RemoteAddress string
	ReadLimit     int64
	PongHandler   func(string) error
}

// NewMockConnection creates a new mock connection
func NewMockConnection() *MockConnection {
	return &MockConnection{
		incoming:      make(chan MockMessage, 16),
		done:          make(chan struct{}),
		RemoteAddress: "127.0.0.1:50000",
	}
}

// Push queues a frame for ReadMessage
func (m *MockConnection) Push(messageType int, data []byte) {
	m.incoming <- MockMessage{Type: messageType, Data: data}
}

// FailWrites makes every later WriteMessage return err
func (m *MockConnection) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// WriteMessage records the frame
func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMockClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, MockMessage{Type: messageType, Data: append([]byte(nil), data...)})
	return nil
}

// ReadMessage returns the next pushed frame
func (m *MockConnection) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-m.incoming:
		return msg.Type, msg.Data, nil
	case <-m.done:
		return 0, nil, ErrMockClosed
	}
}

// Close unblocks readers and rejects further writes
func (m *MockConnection) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
	return nil
}

// SetReadDeadline implements Connection
func (m *MockConnection) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline implements Connection
func (m *MockConnection) SetWriteDeadline(time.Time) error { return nil }

// SetReadLimit implements Connection
func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadLimit = limit
}

// SetPongHandler implements Connection
func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PongHandler = h
}

// RemoteAddr implements Connection
func (m *MockConnection) RemoteAddr() string {
	return m.RemoteAddress
}

// Written returns a copy of the frames written so far
func (m *MockConnection) Written() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.written))
	copy(out, m.written)
	return out
}

// IsClosed reports whether Close was called
func (m *MockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
