package store

import (
	"context"
	"log/slog"

	"sessionhub/internal/domain"
)

// writeJob is one fire-and-forget persistence write. kind selects the store
// operation and thereby which of the remaining fields it reads.
type writeJob struct {
	kind      string
	sessionID domain.SessionID
	userID    domain.UserID
	state     domain.Snapshot
	params    domain.Params
	user      UserRecord
	seq       uint64
}

const (
	jobSaveState     = "save_state"
	jobAppendHistory = "append_history"
	jobAddUser       = "add_user"
	jobRemoveUser    = "remove_user"
)

// Writer drains persistence writes off the hub's command path so a slow or
// unreachable backend never blocks a session's broadcast loop: a single
// consumer pulling off an inbox channel until ctx is cancelled.
type Writer struct {
	store  Store
	inbox  chan writeJob
	logger *slog.Logger
}

// NewWriter creates a Writer with the given inbox buffer size. A buffer of
// zero is valid but means a write is dropped unless Run is ready to
// receive it at that moment, since enqueue never blocks.
func NewWriter(s Store, bufferSize int, logger *slog.Logger) *Writer {
	return &Writer{
		store:  s,
		inbox:  make(chan writeJob, bufferSize),
		logger: logger,
	}
}

// Run drains the inbox until ctx is cancelled. It returns ctx.Err() on
// cancellation; persistence failures are swallowed because Store
// implementations already degrade internally and log their own warnings.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-w.inbox:
			w.dispatch(ctx, job)
		}
	}
}

func (w *Writer) dispatch(ctx context.Context, job writeJob) {
	var err error
	switch job.kind {
	case jobSaveState:
		err = w.store.SaveState(ctx, job.sessionID, job.state, job.seq)
	case jobAppendHistory:
		err = w.store.AppendHistory(ctx, job.sessionID, job.userID, job.params, job.seq)
	case jobAddUser:
		err = w.store.AddUser(ctx, job.sessionID, job.userID, job.user)
	case jobRemoveUser:
		err = w.store.RemoveUser(ctx, job.sessionID, job.userID)
	}
	if err != nil && w.logger != nil {
		w.logger.WarnContext(ctx, "async persistence write failed", "kind", job.kind, "error", err)
	}
}

// enqueue submits a job without blocking the caller when the inbox is full;
// the write is dropped and logged rather than backing up the hub.
func (w *Writer) enqueue(job writeJob) {
	select {
	case w.inbox <- job:
	default:
		if w.logger != nil {
			w.logger.Warn("persistence writer inbox full, dropping write", "kind", job.kind)
		}
	}
}

// SaveState queues a state snapshot write.
func (w *Writer) SaveState(sessionID domain.SessionID, state domain.Snapshot, seq uint64) {
	w.enqueue(writeJob{kind: jobSaveState, sessionID: sessionID, state: state, seq: seq})
}

// AppendHistory queues a history event write.
func (w *Writer) AppendHistory(sessionID domain.SessionID, userID domain.UserID, params domain.Params, seq uint64) {
	w.enqueue(writeJob{kind: jobAppendHistory, sessionID: sessionID, userID: userID, params: params, seq: seq})
}

// AddUser queues a presence upsert.
func (w *Writer) AddUser(sessionID domain.SessionID, userID domain.UserID, user UserRecord) {
	w.enqueue(writeJob{kind: jobAddUser, sessionID: sessionID, userID: userID, user: user})
}

// RemoveUser queues a presence removal.
func (w *Writer) RemoveUser(sessionID domain.SessionID, userID domain.UserID) {
	w.enqueue(writeJob{kind: jobRemoveUser, sessionID: sessionID, userID: userID})
}
