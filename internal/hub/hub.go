// Package hub implements the session hub: the single authority over
// one session's state, sequence counter, and participant roster. Every
// exported method here runs on the hub's serialized command path — see
// registry.go for how that serialization is enforced per session.
package hub

import (
	"context"
	"log/slog"
	"math"
	"time"

	"sessionhub/internal/domain"
	"sessionhub/internal/metrics"
	"sessionhub/internal/store"
	"sessionhub/internal/wire"
)

const (
	conflictWindow    = 500 * time.Millisecond
	conflictTolerance = 1e-3
)

// Peer is the hub's view of a connected participant: just enough to fan
// out frames and identify who a frame is for or from. internal/ws supplies
// the concrete implementation wrapping a websocket connection.
type Peer interface {
	UserID() domain.UserID
	Send(env wire.Envelope) error
}

type participant struct {
	peer      Peer
	principal domain.Principal
	color     string
	joinedAt  time.Time
}

type lastUpdate struct {
	at time.Time
	by domain.UserID
}

// ConflictDescriptor is one per-parameter conflict, reported only to the
// proposing connection.
type ConflictDescriptor struct {
	Param         domain.ParamName
	YourValue     float64
	TheirValue    float64
	TheirUserID   domain.UserID
	TheirUserName string
}

// JoinResult is returned by Join: enough for C5 to build auth:success.
type JoinResult struct {
	Snapshot domain.Snapshot
	Seq      uint64
	Roster   []wire.User
}

// ProposeOutcome is the result of Propose: at most one of Conflicts being
// non-empty or Applied being true holds. Neither holds when the proposal
// was dropped (unknown participant or an out-of-bounds value).
type ProposeOutcome struct {
	Conflicts []ConflictDescriptor
	Applied   bool
}

// Hub owns exactly one session's authoritative state, sequence counter,
// participant roster, and conflict window. Every mutating method is called
// only from the registry's single-goroutine command loop for this session
// (see registry.go), so Hub itself holds no lock.
type Hub struct {
	sessionID domain.SessionID
	state     *domain.State
	seq       uint64

	participants map[domain.UserID]*participant
	lastUpdates  map[domain.ParamName]lastUpdate

	store   store.Store
	writer  *store.Writer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// newHub constructs an Active hub, hydrating from the store if a prior
// snapshot exists. Called by the registry on first join of a session id.
func newHub(ctx context.Context, sessionID domain.SessionID, st store.Store, writer *store.Writer, m *metrics.Metrics, logger *slog.Logger) *Hub {
	h := &Hub{
		sessionID:    sessionID,
		state:        domain.NewState(),
		participants: make(map[domain.UserID]*participant),
		lastUpdates:  make(map[domain.ParamName]lastUpdate),
		store:        st,
		writer:       writer,
		metrics:      m,
		logger:       logger,
	}

	if st != nil && st.Enabled() {
		if rec, err := st.LoadState(ctx, sessionID); err == nil && rec != nil {
			if err := h.state.Hydrate(rec.State); err != nil {
				if logger != nil {
					logger.WarnContext(ctx, "discarding invalid persisted snapshot", "session_id", sessionID, "error", err)
				}
			} else {
				h.seq = rec.Seq
			}
		}
	}

	return h
}

// Join registers a participant. If this is the first participant the hub
// was already hydrated from the store at construction time, so Join never
// re-reads the backend. Returns the current snapshot, seq, and roster, and
// schedules a participant-joined broadcast to every other participant.
func (h *Hub) Join(peer Peer, principal domain.Principal, color string) JoinResult {
	p := &participant{peer: peer, principal: principal, color: color, joinedAt: time.Now()}
	h.participants[principal.UserID] = p

	if h.writer != nil {
		h.writer.AddUser(h.sessionID, principal.UserID, store.UserRecord{
			ID: string(principal.UserID), Name: principal.DisplayName, Color: color,
		})
	}

	joinedUser := wireUser(p)
	h.broadcastExcept(principal.UserID, wire.TypeSessionJoined, nil, wire.SessionJoinedPayload{User: joinedUser})

	return JoinResult{
		Snapshot: h.state.Snapshot(),
		Seq:      h.seq,
		Roster:   h.roster(),
	}
}

// Leave removes a participant and, if present, broadcasts session:left to
// the remainder. Returns true if the hub's roster is now empty, signalling
// the registry should tear this hub down.
func (h *Hub) Leave(userID domain.UserID) (empty bool) {
	if _, ok := h.participants[userID]; !ok {
		return len(h.participants) == 0
	}
	delete(h.participants, userID)

	if h.writer != nil {
		h.writer.RemoveUser(h.sessionID, userID)
	}

	h.broadcastExcept(userID, wire.TypeSessionLeft, nil, wire.SessionLeftPayload{UserID: string(userID)})
	return len(h.participants) == 0
}

// Propose is the hot path: validate against the conflict window, then
// either report per-parameter conflicts to the proposer alone or apply,
// bump seq, and broadcast to everyone else.
func (h *Hub) Propose(userID domain.UserID, partial domain.Params) ProposeOutcome {
	p, ok := h.participants[userID]
	if !ok {
		return ProposeOutcome{}
	}

	now := time.Now()
	var conflicts []ConflictDescriptor
	for name, value := range partial {
		lu, ok := h.lastUpdates[name]
		if !ok || lu.by == userID || now.Sub(lu.at) >= conflictWindow {
			continue
		}
		stored := h.state.Snapshot()
		if math.Abs(storedValue(stored, name)-value) <= conflictTolerance {
			continue
		}
		other := h.participants[lu.by]
		conflicts = append(conflicts, ConflictDescriptor{
			Param:         name,
			YourValue:     value,
			TheirValue:    storedValue(stored, name),
			TheirUserID:   lu.by,
			TheirUserName: displayNameOf(other),
		})
	}

	if len(conflicts) > 0 {
		if h.metrics != nil {
			h.metrics.IncConflict()
		}
		for _, c := range conflicts {
			h.sendConflict(p, c)
		}
		return ProposeOutcome{Conflicts: conflicts}
	}

	return h.applyAndBroadcast(userID, partial, now)
}

// Resolve applies a single parameter value unconditionally, skipping the
// conflict check, and always broadcasts.
func (h *Hub) Resolve(userID domain.UserID, param domain.ParamName, value float64) ProposeOutcome {
	if _, ok := h.participants[userID]; !ok {
		return ProposeOutcome{}
	}
	return h.applyAndBroadcast(userID, domain.Params{param: value}, time.Now())
}

func (h *Hub) applyAndBroadcast(userID domain.UserID, partial domain.Params, at time.Time) ProposeOutcome {
	if _, err := h.state.Apply(partial); err != nil {
		return ProposeOutcome{}
	}

	h.seq++
	for name := range partial {
		h.lastUpdates[name] = lastUpdate{at: at, by: userID}
	}

	wireParams := make(map[string]float64, len(partial))
	for name, value := range partial {
		wireParams[string(name)] = value
	}

	seq := h.seq
	h.broadcastExcept(userID, wire.TypeParamBroadcast, &seq, wire.ParamBroadcastPayload{
		UserID: string(userID), Params: wireParams,
	})
	if h.metrics != nil {
		h.metrics.IncBroadcast(string(wire.TypeParamBroadcast))
	}

	if h.writer != nil {
		snap := h.state.Snapshot()
		h.writer.SaveState(h.sessionID, snap, seq)
		h.writer.AppendHistory(h.sessionID, userID, partial, seq)
	}

	return ProposeOutcome{Applied: true}
}

// Resync returns a full snapshot for the requesting connection only;
// lastSeenSeq is logged at debug level but not used to compute a delta.
func (h *Hub) Resync(userID domain.UserID, lastSeenSeq uint64) {
	p, ok := h.participants[userID]
	if !ok {
		return
	}
	if h.logger != nil {
		h.logger.Debug("resync requested", "session_id", h.sessionID, "user_id", userID, "last_seen_seq", lastSeenSeq, "seq", h.seq)
	}
	snap := h.state.Snapshot()
	env, err := wire.Encode(wire.TypeSessionState, nil, wire.SessionStatePayload{
		Params: snapshotToParams(snap), Seq: h.seq,
	})
	if err != nil {
		return
	}
	_ = p.peer.Send(env)
}

// Heartbeat replies with a pong to the requester only.
func (h *Hub) Heartbeat(userID domain.UserID) {
	p, ok := h.participants[userID]
	if !ok {
		return
	}
	env, err := wire.Encode(wire.TypePong, nil, struct{}{})
	if err != nil {
		return
	}
	_ = p.peer.Send(env)
}

// SnapshotForQuery is the read-only view used by the query surface.
func (h *Hub) SnapshotForQuery() (domain.Snapshot, uint64, int) {
	return h.state.Snapshot(), h.seq, len(h.participants)
}

func (h *Hub) roster() []wire.User {
	users := make([]wire.User, 0, len(h.participants))
	for _, p := range h.participants {
		users = append(users, wireUser(p))
	}
	return users
}

func (h *Hub) sendConflict(p *participant, c ConflictDescriptor) {
	env, err := wire.Encode(wire.TypeConflictDetected, nil, wire.ConflictDetectedPayload{
		Param: string(c.Param), YourValue: c.YourValue, TheirValue: c.TheirValue,
		TheirUserID: string(c.TheirUserID), TheirUserName: c.TheirUserName,
	})
	if err != nil {
		return
	}
	_ = p.peer.Send(env)
}

// broadcastExcept fans a frame out to every participant except excluded.
// Dead sends are collected and those peers removed after the fan-out
// completes, per the dead-peer handling rule: failures never interleave
// with an in-progress broadcast.
func (h *Hub) broadcastExcept(excluded domain.UserID, t wire.Type, seq *uint64, payload any) {
	env, err := wire.Encode(t, seq, payload)
	if err != nil {
		return
	}

	var dead []domain.UserID
	for id, p := range h.participants {
		if id == excluded {
			continue
		}
		if err := p.peer.Send(env); err != nil {
			dead = append(dead, id)
		}
	}

	for _, id := range dead {
		h.Leave(id)
	}
}

func wireUser(p *participant) wire.User {
	return wire.User{
		ID:    string(p.principal.UserID),
		Name:  p.principal.DisplayName,
		Color: p.color,
	}
}

func displayNameOf(p *participant) string {
	if p == nil {
		return ""
	}
	return p.principal.DisplayName
}

func storedValue(snap domain.Snapshot, name domain.ParamName) float64 {
	switch name {
	case domain.ParamMu:
		return snap.Mu
	case domain.ParamOmega:
		return snap.Omega
	case domain.ParamKappa:
		return snap.Kappa
	default:
		return 0
	}
}

func snapshotToParams(snap domain.Snapshot) map[string]float64 {
	return map[string]float64{
		string(domain.ParamMu):    snap.Mu,
		string(domain.ParamOmega): snap.Omega,
		string(domain.ParamKappa): snap.Kappa,
	}
}
