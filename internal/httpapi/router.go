// Package httpapi implements the administrative HTTP surface: chi-routed
// REST handlers over the token verifier and query surface, plus the
// WebSocket upgrade that hands a connection to the session protocol. Small
// handler structs with injected dependencies, mounted under one router
// constructor.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sessionhub/internal/auth"
	"sessionhub/internal/query"
	"sessionhub/internal/ws"
)

// Deps is everything the router needs to wire every route.
type Deps struct {
	Verifier        *auth.Verifier
	Surface         *query.Surface
	ProtocolHandler *ws.Handler
	CORSOrigins     []string
}

// NewRouter builds the fully-wired chi.Router for this service.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(CORS(deps.CORSOrigins))
	r.NotFound(notFoundJSON)

	authHandler := NewAuthHandler(deps.Verifier)
	sessionsHandler := NewSessionsHandler(deps.Surface)
	historyHandler := NewHistoryHandler(deps.Surface)
	healthHandler := NewHealthHandler(deps.Surface)
	wsHandler := NewWebSocketHandler(deps.ProtocolHandler)

	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/", healthHandler.HandleRoot)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/anonymous", authHandler.HandleAnonymous)
		api.Post("/auth/login", authHandler.HandleLogin)
		api.Post("/auth/refresh", authHandler.HandleRefresh)
		api.Post("/auth/verify", authHandler.HandleVerify)
		api.Get("/auth/me", authHandler.HandleMe)

		api.Post("/sessions", sessionsHandler.HandleCreate)
		api.Get("/sessions", sessionsHandler.HandleList)
		api.Get("/sessions/{id}", sessionsHandler.HandleGet)
		api.Delete("/sessions/{id}", sessionsHandler.HandleDelete)

		api.Get("/history/active", historyHandler.HandleActive)
		api.Get("/history/{id}/full", historyHandler.HandleFull)
		api.Get("/history/{id}/metadata", historyHandler.HandleMetadata)
		api.Get("/history/{id}", historyHandler.HandleRange)
		api.Delete("/history/{id}", historyHandler.HandleDelete)

		api.Get("/session/connect/{session_id}", wsHandler.HandleConnect)
	})

	return r
}

// notFoundJSON matches chi's default text 404 with the JSON error shape
// the rest of this API returns.
func notFoundJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"not found"}`))
}
