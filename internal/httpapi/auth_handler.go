package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessionhub/internal/auth"
	"sessionhub/internal/domain"
	httputil "sessionhub/pkg/httputil"
)

// AuthHandler binds the token verifier to the token-lifecycle routes.
type AuthHandler struct {
	verifier *auth.Verifier
}

// NewAuthHandler builds an AuthHandler over the given verifier.
func NewAuthHandler(verifier *auth.Verifier) *AuthHandler {
	return &AuthHandler{verifier: verifier}
}

type anonymousLoginRequest struct {
	Username string `json:"username,omitempty"`
	Color    string `json:"color,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Provider string `json:"provider,omitempty"`
}

type loginResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
	ExpiresAt   string `json:"expires_at"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type refreshResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// HandleAnonymous handles POST /auth/anonymous: mints a token for a fresh
// anonymous identity, no credentials required.
func (h *AuthHandler) HandleAnonymous(w http.ResponseWriter, r *http.Request) {
	var req anonymousLoginRequest
	_ = httputil.DecodeJSON(r, &req) // empty body is valid; a malformed one just yields zero values

	userID := "anon_" + shortID()
	username := req.Username
	if username == "" {
		username = "User " + lastSix(userID)
	}

	token, err := h.verifier.Issue(domain.UserID(userID), username, "", true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	principal, err := h.verifier.Verify(token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token: token, UserID: userID, Username: username,
		IsAnonymous: true, ExpiresAt: principal.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleLogin handles POST /auth/login. This is the OAuth integration
// point; until a real provider is wired in it returns a mock authenticated
// user derived from the submitted email.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Email == "" {
		httputil.WriteError(w, badRequest("email required"))
		return
	}

	userID := "user_" + shortID()
	username := req.Email
	if at := strings.IndexByte(req.Email, '@'); at >= 0 {
		username = req.Email[:at]
	}

	token, err := h.verifier.Issue(domain.UserID(userID), username, req.Email, false)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	principal, err := h.verifier.Verify(token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token: token, UserID: userID, Username: username, Email: req.Email,
		IsAnonymous: false, ExpiresAt: principal.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleRefresh handles POST /auth/refresh: verifies the token, then mints
// a fresh one carrying the same identity but a new expiry.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	newToken, err := h.verifier.Refresh(req.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	principal, err := h.verifier.Verify(newToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, refreshResponse{
		Token: newToken, ExpiresAt: principal.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleVerify handles POST /auth/verify?token=... and returns the
// embedded identity claims, or 401 if the token is invalid or expired.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, principalResponse(principal, true))
}

// HandleMe handles GET /auth/me?token=... identically to HandleVerify
// minus the "valid" flag.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, principalResponse(principal, false))
}

func principalResponse(p *domain.Principal, withValidFlag bool) map[string]any {
	resp := map[string]any{
		"user_id":      string(p.UserID),
		"username":     p.DisplayName,
		"email":        p.Email,
		"is_anonymous": p.Anonymous,
		"expires_at":   p.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if withValidFlag {
		resp["valid"] = true
	}
	return resp
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func lastSix(s string) string {
	if len(s) <= 6 {
		return s
	}
	return s[len(s)-6:]
}
