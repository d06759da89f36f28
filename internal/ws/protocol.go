package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"sessionhub/internal/auth"
	"sessionhub/internal/domain"
	"sessionhub/internal/hub"
	"sessionhub/internal/metrics"
	"sessionhub/internal/wire"
)

// Handler drives one connection through Connecting → AwaitingAuth →
// Authenticated → Closing. One Handler is shared across every connection;
// all per-connection state lives in the call stack of Serve.
type Handler struct {
	registry *hub.Registry
	verifier *auth.Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler builds a connection Handler over the given registry/verifier.
func NewHandler(registry *hub.Registry, verifier *auth.Verifier, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, verifier: verifier, metrics: m, logger: logger}
}

// Serve owns one accepted websocket connection end to end: authenticate,
// join, dispatch frames until disconnect, then leave. It returns once the
// connection is fully torn down.
func (h *Handler) Serve(ctx context.Context, sessionID domain.SessionID, wsConn *websocket.Conn) {
	conn := NewConn(wsConn)
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.keepAlive(connCtx, conn)

	principal, color, ok := h.awaitAuth(sessionID, conn)
	if !ok {
		return
	}
	conn.SetUserID(principal.UserID)

	if h.metrics != nil {
		h.metrics.IncActiveConns(1)
		defer h.metrics.IncActiveConns(-1)
	}

	result := h.registry.Join(sessionID, conn, principal, color)
	h.sendAuthSuccess(conn, sessionID, principal, result)

	if h.logger != nil {
		h.logger.InfoContext(ctx, "participant joined", "session_id", sessionID, "user_id", principal.UserID)
	}

	defer func() {
		h.registry.Leave(sessionID, principal.UserID)
		if h.logger != nil {
			h.logger.InfoContext(ctx, "participant left", "session_id", sessionID, "user_id", principal.UserID)
		}
	}()

	h.serveAuthenticated(connCtx, sessionID, principal.UserID, conn)
}

// awaitAuth loops in AwaitingAuth until a well-formed auth{} frame verifies
// successfully, or the connection closes. An invalid token sends
// auth:failed and stays in AwaitingAuth rather than closing, so a client
// can retry without reconnecting.
func (h *Handler) awaitAuth(sessionID domain.SessionID, conn *Conn) (domain.Principal, string, bool) {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			return domain.Principal{}, "", false
		}
		if env.Type != wire.TypeAuth {
			continue // protocol error: ignored silently, stays in AwaitingAuth
		}

		var payload wire.AuthPayload
		if err := wire.Decode(env, &payload); err != nil {
			continue
		}

		principal, err := h.verifier.Verify(payload.Token)
		if err != nil {
			if h.metrics != nil {
				h.metrics.IncAuthFailure()
			}
			h.sendAuthFailed(conn, err)
			continue
		}

		return *principal, payload.Color, true
	}
}

func (h *Handler) sendAuthFailed(conn *Conn, cause error) {
	env, err := wire.Encode(wire.TypeAuthFailed, nil, wire.AuthFailedPayload{Error: cause.Error()})
	if err != nil {
		return
	}
	_ = conn.Send(env)
}

func (h *Handler) sendAuthSuccess(conn *Conn, sessionID domain.SessionID, principal domain.Principal, result hub.JoinResult) {
	env, err := wire.Encode(wire.TypeAuthSuccess, nil, wire.AuthSuccessPayload{
		SessionID: string(sessionID),
		UserID:    string(principal.UserID),
		Users:     result.Roster,
		CurrentState: wire.CurrentState{
			Params: snapshotParams(result.Snapshot),
			Seq:    result.Seq,
		},
	})
	if err != nil {
		return
	}
	_ = conn.Send(env)
}

// serveAuthenticated dispatches inbound frames to hub operations until the
// connection errors out (client disconnect, read timeout, protocol close)
// or the session's hub is torn down administratively (registry.Done).
func (h *Handler) serveAuthenticated(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, conn *Conn) {
	done, _ := h.registry.Done(sessionID) // nil channel if already gone; select on nil never fires

	frames := make(chan wire.Envelope)
	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			env, err := conn.ReadEnvelope()
			if err != nil {
				return
			}
			select {
			case frames <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-readErr:
			return
		case env := <-frames:
			h.dispatch(sessionID, userID, env)
		}
	}
}

func (h *Handler) dispatch(sessionID domain.SessionID, userID domain.UserID, env wire.Envelope) {
	switch env.Type {
	case wire.TypeParamUpdate:
		var payload wire.ParamUpdatePayload
		if err := wire.Decode(env, &payload); err != nil {
			return
		}
		h.registry.Propose(sessionID, userID, toParams(payload))

	case wire.TypeConflictResolved:
		var payload wire.ConflictResolvedPayload
		if err := wire.Decode(env, &payload); err != nil {
			return
		}
		h.registry.Resolve(sessionID, userID, domain.ParamName(payload.Param), payload.ResolvedValue)

	case wire.TypeSessionResync:
		var payload wire.SessionResyncPayload
		if err := wire.Decode(env, &payload); err != nil {
			return
		}
		h.registry.Resync(sessionID, userID, payload.LastSeenSeq)

	case wire.TypePing:
		h.registry.Heartbeat(sessionID, userID)

	default:
		// unknown type: ignored
	}
}

// keepAlive sends a transport ping every pingInterval; Conn's pong handler
// refreshes the read deadline on each reply. A missed pong eventually trips
// the read deadline and ReadEnvelope returns an error, ending Serve.
func (h *Handler) keepAlive(ctx context.Context, conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.sendPing(); err != nil {
				return
			}
		}
	}
}

func toParams(payload wire.ParamUpdatePayload) domain.Params {
	out := make(domain.Params, len(payload))
	for name, value := range payload {
		out[domain.ParamName(name)] = value
	}
	return out
}

func snapshotParams(snap domain.Snapshot) map[string]float64 {
	return map[string]float64{
		string(domain.ParamMu):    snap.Mu,
		string(domain.ParamOmega): snap.Omega,
		string(domain.ParamKappa): snap.Kappa,
	}
}
