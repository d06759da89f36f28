// Package store implements the persistence façade: a best-effort,
// optional key-value backend for session snapshots, ordered history, and
// presence. Every operation is safe to call when the backend
// is unreachable — it degrades to a logged no-op rather than an error, so
// the hub never has to branch on "is persistence enabled".
package store

import (
	"context"
	"time"

	"sessionhub/internal/domain"
)

// TTL is the idle expiry refreshed on every write.
const TTL = 24 * time.Hour

// MaxHistoryEvents bounds the retained history per session.
const MaxHistoryEvents = 1000

// StateRecord is what's persisted for a session's snapshot, plus the
// bookkeeping fields needed to resume the monotonic sequence chain.
type StateRecord struct {
	State     domain.Snapshot
	Seq       uint64
	UpdatedAt time.Time
}

// HistoryEvent is one accepted parameter change, ordered by Seq.
type HistoryEvent struct {
	Seq       uint64         `json:"seq"`
	UserID    string         `json:"user_id"`
	Params    map[string]any `json:"params"`
	Timestamp time.Time      `json:"timestamp"`
}

// UserRecord is the presence payload stored per (session, user).
type UserRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Store is the persistence façade every hub writes through. Implementations
// must never return an error that represents "backend unavailable" — they
// translate that into a zero value and a logged warning internally.
type Store interface {
	Enabled() bool

	SaveState(ctx context.Context, sessionID domain.SessionID, state domain.Snapshot, seq uint64) error
	LoadState(ctx context.Context, sessionID domain.SessionID) (*StateRecord, error)
	DeleteState(ctx context.Context, sessionID domain.SessionID) error

	AppendHistory(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, params domain.Params, seq uint64) error
	RangeHistory(ctx context.Context, sessionID domain.SessionID, startSeq uint64, endSeq *uint64) ([]HistoryEvent, error)

	AddUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, user UserRecord) error
	RemoveUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error
	ListUsers(ctx context.Context, sessionID domain.SessionID) ([]UserRecord, error)

	ListActiveSessions(ctx context.Context) ([]domain.SessionID, error)
}

// key builders, shared by every backend so the persisted key layout stays
// centralized in one place instead of being re-derived per implementation.
func stateKey(sessionID domain.SessionID) string   { return "session:" + string(sessionID) + ":state" }
func seqKey(sessionID domain.SessionID) string     { return "session:" + string(sessionID) + ":seq" }
func usersKey(sessionID domain.SessionID) string   { return "session:" + string(sessionID) + ":users" }
func historyKey(sessionID domain.SessionID) string { return "session:" + string(sessionID) + ":history" }
