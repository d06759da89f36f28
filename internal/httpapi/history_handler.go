package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sessionhub/internal/domain"
	"sessionhub/internal/query"
	"sessionhub/internal/store"
	httputil "sessionhub/pkg/httputil"
)

// HistoryHandler binds persisted-history access to the query surface.
type HistoryHandler struct {
	surface *query.Surface
}

// NewHistoryHandler builds a HistoryHandler over the given Query Surface.
func NewHistoryHandler(surface *query.Surface) *HistoryHandler {
	return &HistoryHandler{surface: surface}
}

type historyEventView struct {
	Seq       uint64         `json:"seq"`
	UserID    string         `json:"user_id"`
	Params    map[string]any `json:"params"`
	Timestamp string         `json:"timestamp"`
}

type historyResponse struct {
	SessionID  string             `json:"session_id"`
	Events     []historyEventView `json:"events"`
	TotalCount int                `json:"total_count"`
}

// HandleRange handles GET /history/{id}?start_seq=&end_seq=. A negative
// or absent end_seq selects the unbounded tail.
func (h *HistoryHandler) HandleRange(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	start := parseUintParam(r, "start_seq", 0)
	end := parseEndSeq(r)

	events, err := h.surface.GetHistory(r.Context(), id, start, end)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeHistory(w, id, events)
}

// HandleFull handles GET /history/{id}/full: the complete retained history.
func (h *HistoryHandler) HandleFull(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	events, err := h.surface.GetHistory(r.Context(), id, 0, nil)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeHistory(w, id, events)
}

type sessionMetadataResponse struct {
	SessionID    string             `json:"session_id"`
	State        map[string]float64 `json:"state"`
	Users        []map[string]any   `json:"users"`
	UserCount    int                `json:"user_count"`
	HistoryCount int                `json:"history_count"`
	Seq          uint64             `json:"seq"`
}

// HandleMetadata handles GET /history/{id}/metadata.
func (h *HistoryHandler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	meta, err := h.surface.GetPersistedMetadata(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	users := make([]map[string]any, 0, len(meta.Users))
	for _, u := range meta.Users {
		users = append(users, map[string]any{"id": u.ID, "name": u.Name, "color": u.Color, "avatar": u.Avatar})
	}

	httputil.WriteJSON(w, http.StatusOK, sessionMetadataResponse{
		SessionID: string(meta.SessionID),
		State: map[string]float64{
			"mu": meta.State.Mu, "omega": meta.State.Omega, "kappa": meta.State.Kappa, "beta": meta.State.Beta,
		},
		Users:        users,
		UserCount:    len(users),
		HistoryCount: meta.HistoryCount,
		Seq:          meta.Seq,
	})
}

// HandleActive handles GET /history/active.
func (h *HistoryHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	ids, err := h.surface.ListActiveSessionIDs(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleDelete handles DELETE /history/{id}.
func (h *HistoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	if err := h.surface.DeleteSession(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": string(id)})
}

func writeHistory(w http.ResponseWriter, id domain.SessionID, events []store.HistoryEvent) {
	views := make([]historyEventView, 0, len(events))
	for _, ev := range events {
		views = append(views, historyEventView{
			Seq: ev.Seq, UserID: ev.UserID, Params: ev.Params,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{
		SessionID: string(id), Events: views, TotalCount: len(views),
	})
}

func parseUintParam(r *http.Request, key string, def uint64) uint64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func parseEndSeq(r *http.Request) *uint64 {
	raw := r.URL.Query().Get("end_seq")
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil
	}
	u := uint64(v)
	return &u
}
