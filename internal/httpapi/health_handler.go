package httpapi

import (
	"net/http"

	"sessionhub/internal/query"
	httputil "sessionhub/pkg/httputil"
)

const serviceVersion = "1.0.0"

// HealthHandler serves the liveness and info endpoints.
type HealthHandler struct {
	surface *query.Surface
}

// NewHealthHandler builds a HealthHandler over the given Query Surface.
func NewHealthHandler(surface *query.Surface) *HealthHandler {
	return &HealthHandler{surface: surface}
}

// HandleHealth handles GET /health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	live := h.surface.ListLiveSessions()
	totalConns := 0
	for _, ls := range live {
		totalConns += ls.Participants
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"service":            "sessionhub",
		"version":            serviceVersion,
		"active_sessions":    len(live),
		"total_connections":  totalConns,
	})
}

// HandleRoot handles GET /.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"service":   "Session Hub Collaboration API",
		"version":   serviceVersion,
		"websocket": "/api/v1/session/connect/{session_id}",
		"health":    "/health",
	})
}
