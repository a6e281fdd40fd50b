package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bmidash/internal/infrastructure"
	"bmidash/pkg/contracts/events"
)

// ErrHubStopped is returned when broadcasting on a stopped hub
var ErrHubStopped = errors.New("websocket hub stopped")

// replayed message types are remembered and sent to clients as they connect,
// so a fresh page sees the current phase and tables without polling
var replayed = []events.MessageType{events.MessageTypeSystemStatus, events.MessageTypeSummaryUpdate}

type outbound struct {
	msgType events.MessageType
	payload []byte
}

// Hub maintains the set of active clients and fans messages out to them
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound

	mu      sync.RWMutex
	latest  map[events.MessageType][]byte
	running bool

	logger  *slog.Logger
	metrics *OTelMetrics

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64

	quit chan struct{}
	done chan struct{}
}

// HubStats is a point-in-time view of hub activity
type HubStats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
}

// NewHub creates a Hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *OTelMetrics) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 64),
		latest:     make(map[events.MessageType][]byte),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in a goroutine. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Stop ends the hub loop and closes every client. It waits for the loop to exit.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "closed")

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	backlog := make([][]byte, 0, len(replayed))
	for _, t := range replayed {
		if payload, ok := h.latest[t]; ok {
			backlog = append(backlog, payload)
		}
	}
	h.mu.Unlock()

	h.totalConnections.Add(1)
	ctx := client.context()
	h.metrics.RecordConnection(ctx)

	h.logger.InfoContext(ctx, "client registered",
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("total_clients", count))

	greeting, err := json.Marshal(events.NewMessage(events.MessageTypeConnection, events.ConnectionInfo{
		Status:   "connected",
		Message:  "Connected to the BMI dashboard",
		ClientID: client.id,
	}, client.traceID))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal greeting", slog.String("error", err.Error()))
		return
	}

	for _, payload := range append([][]byte{greeting}, backlog...) {
		select {
		case client.send <- payload:
		default:
			h.logger.WarnContext(ctx, "client buffer full during replay",
				slog.String("client_id", client.id))
			return
		}
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	lifetime := time.Since(client.connectedAt)
	h.metrics.RecordDisconnection(ctx, lifetime, reason)

	h.logger.InfoContext(ctx, "client unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", lifetime),
		slog.Int("total_clients", count))
}

func (h *Hub) fanOut(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, client := range clients {
		select {
		case client.send <- msg.payload:
			delivered++
		default:
			dropped++
			h.removeClient(client, "slow consumer")
		}
	}

	h.messagesSent.Add(int64(delivered))
	h.messagesDropped.Add(int64(dropped))
	h.metrics.RecordBroadcast(context.Background(), string(msg.msgType), delivered, dropped)

	h.logger.Debug("broadcast delivered",
		slog.String("type", string(msg.msgType)),
		slog.Int("delivered", delivered),
		slog.Int("dropped", dropped),
		slog.Int("payload_size", len(msg.payload)))
}

// Broadcast sends a typed message to every client. Status and summary
// messages are also kept for replay to clients that connect later. On a hub
// that has not been started the message is only kept for replay.
func (h *Hub) Broadcast(ctx context.Context, msgType events.MessageType, data interface{}) error {
	payload, err := json.Marshal(events.NewMessage(msgType, data, infrastructure.GetTraceID(ctx)))
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msgType, err)
	}

	h.mu.Lock()
	for _, t := range replayed {
		if t == msgType {
			h.latest[msgType] = payload
		}
	}
	running := h.running
	h.mu.Unlock()

	if !running {
		return nil
	}

	select {
	case h.broadcast <- outbound{msgType: msgType, payload: payload}:
		return nil
	case <-h.quit:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns current hub counters
func (h *Hub) Stats() HubStats {
	return HubStats{
		ActiveClients:    h.ClientCount(),
		TotalConnections: h.totalConnections.Load(),
		MessagesSent:     h.messagesSent.Load(),
		MessagesDropped:  h.messagesDropped.Load(),
	}
}
