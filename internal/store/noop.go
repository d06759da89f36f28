package store

import (
	"context"

	"sessionhub/internal/domain"
)

// NoopStore is used when no persistence backend is configured or the
// backend was unreachable at startup. Every call is a cheap, silent no-op;
// callers never need to branch on whether persistence is enabled.
type NoopStore struct{}

// NewNoopStore returns a Store that persists nothing.
func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) Enabled() bool { return false }

func (s *NoopStore) SaveState(ctx context.Context, sessionID domain.SessionID, state domain.Snapshot, seq uint64) error {
	return nil
}

func (s *NoopStore) LoadState(ctx context.Context, sessionID domain.SessionID) (*StateRecord, error) {
	return nil, nil
}

func (s *NoopStore) DeleteState(ctx context.Context, sessionID domain.SessionID) error { return nil }

func (s *NoopStore) AppendHistory(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, params domain.Params, seq uint64) error {
	return nil
}

func (s *NoopStore) RangeHistory(ctx context.Context, sessionID domain.SessionID, startSeq uint64, endSeq *uint64) ([]HistoryEvent, error) {
	return nil, nil
}

func (s *NoopStore) AddUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, user UserRecord) error {
	return nil
}

func (s *NoopStore) RemoveUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	return nil
}

func (s *NoopStore) ListUsers(ctx context.Context, sessionID domain.SessionID) ([]UserRecord, error) {
	return nil, nil
}

func (s *NoopStore) ListActiveSessions(ctx context.Context) ([]domain.SessionID, error) {
	return nil, nil
}
