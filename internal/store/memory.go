package store

import (
	"context"
	"sort"
	"sync"

	"sessionhub/internal/domain"
)

// MemoryStore is an in-process Store used by hub unit tests and as a
// dependency-free fallback. It mirrors RedisStore's semantics (including
// the MaxHistoryEvents cap) without any network I/O.
type MemoryStore struct {
	mu       sync.Mutex
	states   map[domain.SessionID]StateRecord
	history  map[domain.SessionID][]HistoryEvent
	presence map[domain.SessionID]map[domain.UserID]UserRecord
}

// NewMemoryStore returns a ready-to-use, always-enabled in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:   make(map[domain.SessionID]StateRecord),
		history:  make(map[domain.SessionID][]HistoryEvent),
		presence: make(map[domain.SessionID]map[domain.UserID]UserRecord),
	}
}

func (s *MemoryStore) Enabled() bool { return true }

func (s *MemoryStore) SaveState(ctx context.Context, sessionID domain.SessionID, state domain.Snapshot, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = StateRecord{State: state, Seq: seq}
	return nil
}

func (s *MemoryStore) LoadState(ctx context.Context, sessionID domain.SessionID) (*StateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.states[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) DeleteState(ctx context.Context, sessionID domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	delete(s.history, sessionID)
	delete(s.presence, sessionID)
	return nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, params domain.Params, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wireParams := make(map[string]any, len(params))
	for name, value := range params {
		wireParams[string(name)] = value
	}

	events := append(s.history[sessionID], HistoryEvent{
		Seq: seq, UserID: string(userID), Params: wireParams,
	})
	if len(events) > MaxHistoryEvents {
		events = events[len(events)-MaxHistoryEvents:]
	}
	s.history[sessionID] = events
	return nil
}

func (s *MemoryStore) RangeHistory(ctx context.Context, sessionID domain.SessionID, startSeq uint64, endSeq *uint64) ([]HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []HistoryEvent
	for _, ev := range s.history[sessionID] {
		if ev.Seq < startSeq {
			continue
		}
		if endSeq != nil && ev.Seq > *endSeq {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) AddUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, user UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presence[sessionID] == nil {
		s.presence[sessionID] = make(map[domain.UserID]UserRecord)
	}
	s.presence[sessionID][userID] = user
	return nil
}

func (s *MemoryStore) RemoveUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence[sessionID], userID)
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, sessionID domain.SessionID) ([]UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]UserRecord, 0, len(s.presence[sessionID]))
	for _, u := range s.presence[sessionID] {
		users = append(users, u)
	}
	return users, nil
}

func (s *MemoryStore) ListActiveSessions(ctx context.Context) ([]domain.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.SessionID, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	return ids, nil
}
