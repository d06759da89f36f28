package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"sessionhub/internal/domain"
	"sessionhub/internal/ws"
)

// upgrader accepts the connection from any origin. The CORS middleware
// only sets response headers and does not reject upgrades from origins
// outside its allowlist.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketHandler upgrades GET /api/v1/session/connect/{session_id} and
// hands the connection to the session protocol.
type WebSocketHandler struct {
	protocol *ws.Handler
}

// NewWebSocketHandler builds a WebSocketHandler over the given protocol
// handler.
func NewWebSocketHandler(protocol *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{protocol: protocol}
}

// HandleConnect handles the WebSocket upgrade and blocks for the lifetime
// of the connection.
func (h *WebSocketHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	sessionID, err := domain.ParseSessionID(chi.URLParam(r, "session_id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already wrote the appropriate HTTP error response
	}
	h.protocol.Serve(r.Context(), sessionID, conn)
}
