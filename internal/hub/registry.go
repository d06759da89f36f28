package hub

import (
	"context"
	"log/slog"
	"sync"

	"sessionhub/internal/domain"
	"sessionhub/internal/metrics"
	"sessionhub/internal/store"
)

// hubActor pairs a Hub with the single-goroutine command queue that
// serializes every mutation to it: connection tasks post into the queue,
// the actor drains it in order.
type hubActor struct {
	hub    *Hub
	inbox  chan func()
	ctx    context.Context
	cancel context.CancelFunc
}

func (a *hubActor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.inbox:
			cmd()
		}
	}
}

// execute posts fn onto the actor's command queue and blocks until it has
// run, giving callers a synchronous-looking call against serialized state.
// A caller that raced with this actor's teardown returns without running
// fn instead of blocking on a queue nobody drains anymore.
func (a *hubActor) execute(fn func(h *Hub)) {
	done := make(chan struct{})
	select {
	case a.inbox <- func() {
		fn(a.hub)
		close(done)
	}:
	case <-a.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-a.ctx.Done():
	}
}

// Registry is the process-wide session id → hub mapping. Creation and
// destruction are the only operations requiring Registry's own lock;
// everything else is delegated to the per-session actor.
type Registry struct {
	mu     sync.Mutex
	actors map[domain.SessionID]*hubActor

	store   store.Store
	writer  *store.Writer
	metrics *metrics.Metrics
	logger  *slog.Logger
	baseCtx context.Context
}

// NewRegistry builds an empty registry. baseCtx governs every hub actor's
// lifetime; cancelling it tears down all live hubs.
func NewRegistry(baseCtx context.Context, st store.Store, writer *store.Writer, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		actors:  make(map[domain.SessionID]*hubActor),
		store:   st,
		writer:  writer,
		metrics: m,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Registry) getOrCreate(sessionID domain.SessionID) *hubActor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if actor, ok := r.actors[sessionID]; ok {
		return actor
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	actor := &hubActor{
		hub:    newHub(ctx, sessionID, r.store, r.writer, r.metrics, r.logger),
		inbox:  make(chan func(), 64),
		ctx:    ctx,
		cancel: cancel,
	}
	r.actors[sessionID] = actor
	go actor.run(ctx)

	if r.metrics != nil {
		r.metrics.SetActiveSessions(len(r.actors))
	}
	return actor
}

func (r *Registry) lookup(sessionID domain.SessionID) (*hubActor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	actor, ok := r.actors[sessionID]
	return actor, ok
}

// destroy removes sessionID's actor, but only if it is still the same
// instance that reported itself empty — guards against a race where a new
// join recreated the hub between Leave returning and destroy running.
func (r *Registry) destroy(sessionID domain.SessionID, actor *hubActor) {
	r.mu.Lock()
	current, ok := r.actors[sessionID]
	if ok && current == actor {
		delete(r.actors, sessionID)
	}
	size := len(r.actors)
	r.mu.Unlock()

	if ok && current == actor {
		actor.cancel()
		if r.metrics != nil {
			r.metrics.SetActiveSessions(size)
		}
	}
}

// Join registers a participant with sessionID's hub, creating and
// hydrating it from the store if this is the first join.
func (r *Registry) Join(sessionID domain.SessionID, peer Peer, principal domain.Principal, color string) JoinResult {
	actor := r.getOrCreate(sessionID)
	var result JoinResult
	actor.execute(func(h *Hub) { result = h.Join(peer, principal, color) })
	return result
}

// Leave removes a participant; if the session becomes empty the hub is torn
// down (its store snapshot survives under its own TTL).
func (r *Registry) Leave(sessionID domain.SessionID, userID domain.UserID) {
	actor, ok := r.lookup(sessionID)
	if !ok {
		return
	}
	var empty bool
	actor.execute(func(h *Hub) { empty = h.Leave(userID) })
	if empty {
		r.destroy(sessionID, actor)
	}
}

// Propose forwards a parameter proposal to sessionID's hub. A proposal for
// a session with no live hub is dropped silently.
func (r *Registry) Propose(sessionID domain.SessionID, userID domain.UserID, partial domain.Params) ProposeOutcome {
	actor, ok := r.lookup(sessionID)
	if !ok {
		return ProposeOutcome{}
	}
	var outcome ProposeOutcome
	actor.execute(func(h *Hub) { outcome = h.Propose(userID, partial) })
	return outcome
}

// Resolve forwards a client-driven conflict resolution, skipping the
// conflict check.
func (r *Registry) Resolve(sessionID domain.SessionID, userID domain.UserID, param domain.ParamName, value float64) ProposeOutcome {
	actor, ok := r.lookup(sessionID)
	if !ok {
		return ProposeOutcome{}
	}
	var outcome ProposeOutcome
	actor.execute(func(h *Hub) { outcome = h.Resolve(userID, param, value) })
	return outcome
}

// Resync delivers a full state snapshot to the requesting connection only.
func (r *Registry) Resync(sessionID domain.SessionID, userID domain.UserID, lastSeenSeq uint64) {
	actor, ok := r.lookup(sessionID)
	if !ok {
		return
	}
	actor.execute(func(h *Hub) { h.Resync(userID, lastSeenSeq) })
}

// Heartbeat replies with a pong to the requester only.
func (r *Registry) Heartbeat(sessionID domain.SessionID, userID domain.UserID) {
	actor, ok := r.lookup(sessionID)
	if !ok {
		return
	}
	actor.execute(func(h *Hub) { h.Heartbeat(userID) })
}

// SnapshotForQuery is the read-only view backing the query surface.
// ok is false if no live hub exists for sessionID.
func (r *Registry) SnapshotForQuery(sessionID domain.SessionID) (snap domain.Snapshot, seq uint64, participants int, ok bool) {
	actor, found := r.lookup(sessionID)
	if !found {
		return domain.Snapshot{}, 0, 0, false
	}
	actor.execute(func(h *Hub) { snap, seq, participants = h.SnapshotForQuery() })
	return snap, seq, participants, true
}

// ListLiveSessionIDs returns every session id with a live hub.
func (r *Registry) ListLiveSessionIDs() []domain.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]domain.SessionID, 0, len(r.actors))
	for id := range r.actors {
		ids = append(ids, id)
	}
	return ids
}

// Done returns the done channel for sessionID's live hub, so a connection
// handler can react to an administrative close by shutting itself down.
// ok is false if no live hub exists.
func (r *Registry) Done(sessionID domain.SessionID) (done <-chan struct{}, ok bool) {
	actor, found := r.lookup(sessionID)
	if !found {
		return nil, false
	}
	return actor.ctx.Done(), true
}

// Close closes all live connections registered against sessionID by tearing
// down its hub actor; used by the administrative delete-session operation.
// It does not touch the store; callers call DeleteState separately.
func (r *Registry) Close(sessionID domain.SessionID) {
	actor, ok := r.lookup(sessionID)
	if !ok {
		return
	}
	r.destroy(sessionID, actor)
}
