package http

import (
	"log/slog"
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"bmidash/internal/websocket"
)

// WebSocketHandler upgrades requests and attaches them to the hub
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader *gorilla.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a websocket handler accepting allowedOrigins
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websocket.NewUpgrader(allowedOrigins),
		logger:   logger.With(slog.String("handler", "websocket")),
	}
}

// ServeHTTP handles GET /ws. A failed upgrade has already been answered by
// the upgrader, so it is only logged.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client, err := websocket.ServeWS(h.hub, h.upgrader, w, r, h.logger)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}
	h.logger.DebugContext(r.Context(), "websocket client attached", slog.String("client_id", client.ID()))
}
