// Package query implements read-only views over
// live session hubs (via the registry) and persisted history (via the
// store), for the administrative HTTP handlers in internal/httpapi.
package query

import (
	"context"

	"sessionhub/internal/domain"
	"sessionhub/internal/hub"
	"sessionhub/internal/store"
	dErrors "sessionhub/pkg/domainerrors"
)

// LiveSession is a point-in-time view of one live hub.
type LiveSession struct {
	SessionID    domain.SessionID
	Participants int
	Seq          uint64
	State        domain.Snapshot
}

// PersistedMetadata is the store-backed view of a session: its last saved
// state, its known presence, and how many history events are retained.
type PersistedMetadata struct {
	SessionID    domain.SessionID
	State        domain.Snapshot
	Seq          uint64
	Users        []store.UserRecord
	HistoryCount int
}

// Surface is the query surface.
type Surface struct {
	registry *hub.Registry
	store    store.Store
}

// New builds a Surface over the given registry and store.
func New(registry *hub.Registry, st store.Store) *Surface {
	return &Surface{registry: registry, store: st}
}

// ListLiveSessions enumerates every session id with a live hub.
func (s *Surface) ListLiveSessions() []LiveSession {
	ids := s.registry.ListLiveSessionIDs()
	out := make([]LiveSession, 0, len(ids))
	for _, id := range ids {
		if ls, ok := s.GetLiveSession(id); ok {
			out = append(out, ls)
		}
	}
	return out
}

// GetLiveSession returns the live view of one session, or ok=false if no
// hub is currently active for it.
func (s *Surface) GetLiveSession(id domain.SessionID) (LiveSession, bool) {
	snap, seq, participants, ok := s.registry.SnapshotForQuery(id)
	if !ok {
		return LiveSession{}, false
	}
	return LiveSession{SessionID: id, Participants: participants, Seq: seq, State: snap}, true
}

// GetPersistedMetadata reads the store-backed snapshot, roster, and history
// count for a session. Returns CodeUnavailable if the store is disabled and
// CodeNotFound if the store is enabled but holds no snapshot for id.
func (s *Surface) GetPersistedMetadata(ctx context.Context, id domain.SessionID) (*PersistedMetadata, error) {
	if !s.store.Enabled() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "persistence store is not configured")
	}

	rec, err := s.store.LoadState(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load session state", err)
	}
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no persisted snapshot for this session")
	}

	users, err := s.store.ListUsers(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list session users", err)
	}

	events, err := s.store.RangeHistory(ctx, id, 0, nil)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "range session history", err)
	}

	return &PersistedMetadata{
		SessionID:    id,
		State:        rec.State,
		Seq:          rec.Seq,
		Users:        users,
		HistoryCount: len(events),
	}, nil
}

// GetHistory reads the [start, end] (inclusive) slice of persisted history
// events for a session. end == nil selects the tail. Returns
// CodeUnavailable if the store is disabled.
func (s *Surface) GetHistory(ctx context.Context, id domain.SessionID, start uint64, end *uint64) ([]store.HistoryEvent, error) {
	if !s.store.Enabled() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "persistence store is not configured")
	}
	events, err := s.store.RangeHistory(ctx, id, start, end)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "range session history", err)
	}
	return events, nil
}

// ListActiveSessionIDs lists session ids known to the store (may include
// sessions with no live hub — derived by enumerating snapshot keys).
func (s *Surface) ListActiveSessionIDs(ctx context.Context) ([]domain.SessionID, error) {
	if !s.store.Enabled() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "persistence store is not configured")
	}
	ids, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list active sessions", err)
	}
	return ids, nil
}

// DeleteSession tears down any live hub for id (disconnecting its
// participants via the registry's normal teardown path) and deletes its
// persisted snapshot, history, and presence.
func (s *Surface) DeleteSession(ctx context.Context, id domain.SessionID) error {
	s.registry.Close(id)
	if s.store.Enabled() {
		if err := s.store.DeleteState(ctx, id); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "delete session state", err)
		}
	}
	return nil
}
