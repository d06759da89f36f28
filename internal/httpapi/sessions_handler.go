package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sessionhub/internal/domain"
	"sessionhub/internal/query"
	httputil "sessionhub/pkg/httputil"
)

// SessionsHandler binds live-session CRUD to the query surface.
type SessionsHandler struct {
	surface *query.Surface
}

// NewSessionsHandler builds a SessionsHandler over the given Query Surface.
func NewSessionsHandler(surface *query.Surface) *SessionsHandler {
	return &SessionsHandler{surface: surface}
}

type createSessionRequest struct {
	Name string `json:"name,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	JoinURL   string `json:"join_url"`
	CreatedAt string `json:"created_at"`
}

type sessionInfo struct {
	SessionID  string             `json:"session_id"`
	UserCount  int                `json:"user_count"`
	CurrentSeq uint64             `json:"current_seq"`
	State      map[string]float64 `json:"state"`
}

// HandleCreate handles POST /sessions: mints a short session id. The hub
// itself is created lazily on first join, not here.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	_ = httputil.DecodeJSON(r, &req)

	sessionID := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	httputil.WriteJSON(w, http.StatusOK, createSessionResponse{
		SessionID: sessionID,
		JoinURL:   "/trilogic?session=" + sessionID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleList handles GET /sessions: every session with a live hub.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	live := h.surface.ListLiveSessions()
	out := make([]sessionInfo, 0, len(live))
	for _, ls := range live {
		out = append(out, toSessionInfo(ls))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /sessions/{id}: 404 if no live hub exists for id.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	ls, ok := h.surface.GetLiveSession(id)
	if !ok {
		httputil.WriteError(w, notFound("session not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionInfo(ls))
}

// HandleDelete handles DELETE /sessions/{id}: disconnects every live
// participant and removes the persisted snapshot.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	if _, ok := h.surface.GetLiveSession(id); !ok {
		httputil.WriteError(w, notFound("session not found"))
		return
	}
	if err := h.surface.DeleteSession(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": string(id)})
}

func toSessionInfo(ls query.LiveSession) sessionInfo {
	return sessionInfo{
		SessionID:  string(ls.SessionID),
		UserCount:  ls.Participants,
		CurrentSeq: ls.Seq,
		State: map[string]float64{
			"mu": ls.State.Mu, "omega": ls.State.Omega, "kappa": ls.State.Kappa, "beta": ls.State.Beta,
		},
	}
}
