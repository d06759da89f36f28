package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhub/internal/domain"
	"sessionhub/internal/store"
	"sessionhub/internal/wire"
)

func newTestRegistry(t *testing.T) (*Registry, store.Store, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	st := store.NewMemoryStore()
	writer := store.NewWriter(st, 64, nil)
	go writer.Run(ctx)
	return NewRegistry(ctx, st, writer, nil, nil), st, cancel
}

func principal(id, name string) domain.Principal {
	return domain.Principal{UserID: domain.UserID(id), DisplayName: name}
}

func decodeEnvelope[T any](t *testing.T, env wire.Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, wire.Decode(env, &out))
	return out
}

// TestBasicBroadcast: two clients join, A proposes mu, B receives the
// broadcast, A receives nothing, and hub state reflects the accepted
// value including the derived beta.
func TestBasicBroadcast(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a, b := newFakePeer("A"), newFakePeer("B")
	r.Join("s1", a, principal("A", "Alice"), "")
	r.Join("s1", b, principal("B", "Bob"), "")

	aBefore := len(a.messages()) // A already holds B's session:joined
	outcome := r.Propose("s1", "A", domain.Params{domain.ParamMu: 0.60})
	assert.True(t, outcome.Applied)

	assert.Len(t, a.messages(), aBefore, "the proposer receives nothing for its own update")

	msg := b.last()
	require.NotNil(t, msg)
	assert.Equal(t, wire.TypeParamBroadcast, msg.Type)
	require.NotNil(t, msg.Seq)
	assert.Equal(t, uint64(1), *msg.Seq)

	payload := decodeEnvelope[wire.ParamBroadcastPayload](t, *msg)
	assert.Equal(t, "A", payload.UserID)
	assert.InDelta(t, 0.60, payload.Params["mu"], 1e-9)

	snap, seq, participants, ok := r.SnapshotForQuery("s1")
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, 2, participants)
	assert.InDelta(t, 0.60, snap.Mu, 1e-9)
	assert.InDelta(t, 0.847, snap.Omega, 1e-9)
	assert.InDelta(t, 0.0207, snap.Kappa, 1e-9)
	assert.InDelta(t, 1-0.60-0.0207*10.8, snap.Beta, 1e-9)
}

// TestConflictDetection: A updates omega, then within the conflict window
// B proposes a materially different omega and is told about the conflict
// instead of having it applied.
func TestConflictDetection(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a, b := newFakePeer("A"), newFakePeer("B")
	r.Join("s1", a, principal("A", "Alice"), "")
	r.Join("s1", b, principal("B", "Bob"), "")

	outcome := r.Propose("s1", "A", domain.Params{domain.ParamOmega: 1.20})
	require.True(t, outcome.Applied)

	outcome = r.Propose("s1", "B", domain.Params{domain.ParamOmega: 0.90})
	require.Len(t, outcome.Conflicts, 1)

	c := outcome.Conflicts[0]
	assert.Equal(t, domain.ParamOmega, c.Param)
	assert.InDelta(t, 0.90, c.YourValue, 1e-9)
	assert.InDelta(t, 1.20, c.TheirValue, 1e-9)
	assert.Equal(t, domain.UserID("A"), c.TheirUserID)

	bMsg := b.last()
	require.NotNil(t, bMsg)
	assert.Equal(t, wire.TypeConflictDetected, bMsg.Type)

	// No one else is notified: A saw only its own earlier broadcast-free
	// apply, and seq must not have moved past the first accepted update.
	_, seq, _, ok := r.SnapshotForQuery("s1")
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
}

// TestConflictResolution: following a detected conflict, B resolves
// explicitly and the resolution applies unconditionally, broadcasting to
// A (the other participant) but not to B.
func TestConflictResolution(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a, b := newFakePeer("A"), newFakePeer("B")
	r.Join("s1", a, principal("A", "Alice"), "")
	r.Join("s1", b, principal("B", "Bob"), "")

	r.Propose("s1", "A", domain.Params{domain.ParamOmega: 1.20})
	r.Propose("s1", "B", domain.Params{domain.ParamOmega: 0.90}) // conflicts

	bBefore := len(b.messages()) // B already holds A's seq-1 broadcast
	outcome := r.Resolve("s1", "B", domain.ParamOmega, 1.05)
	assert.True(t, outcome.Applied)

	msg := a.last()
	require.NotNil(t, msg)
	assert.Equal(t, wire.TypeParamBroadcast, msg.Type)
	require.NotNil(t, msg.Seq)
	assert.Equal(t, uint64(2), *msg.Seq)

	payload := decodeEnvelope[wire.ParamBroadcastPayload](t, *msg)
	assert.InDelta(t, 1.05, payload.Params["omega"], 1e-9)

	for _, m := range b.messages()[bBefore:] {
		assert.NotEqual(t, wire.TypeParamBroadcast, m.Type, "the resolver does not receive its own broadcast")
	}
}

// TestResyncAfterReconnect checks that a resync delivers the
// current snapshot and seq to the requester only, without bumping seq.
func TestResyncAfterReconnect(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a := newFakePeer("A")
	r.Join("s1", a, principal("A", "Alice"), "")

	// same-user updates never trip the conflict window
	for i := 0; i < 5; i++ {
		r.Propose("s1", "A", domain.Params{domain.ParamMu: 0.55 + float64(i)*0.001})
	}

	_, seqBefore, _, ok := r.SnapshotForQuery("s1")
	require.True(t, ok)

	r.Resync("s1", "A", 3)

	msg := a.last()
	require.NotNil(t, msg)
	assert.Equal(t, wire.TypeSessionState, msg.Type)
	assert.Nil(t, msg.Seq, "resync payload carries seq inside the payload, not as a broadcast envelope field")

	payload := decodeEnvelope[wire.SessionStatePayload](t, *msg)
	assert.Equal(t, seqBefore, payload.Seq)

	_, seqAfter, _, _ := r.SnapshotForQuery("s1")
	assert.Equal(t, seqBefore, seqAfter, "resync must never bump seq")
}

// TestOutOfBoundsRejection checks that an out-of-bounds
// proposal produces no broadcast and leaves state and seq untouched.
func TestOutOfBoundsRejection(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a, b := newFakePeer("A"), newFakePeer("B")
	r.Join("s1", a, principal("A", "Alice"), "")
	r.Join("s1", b, principal("B", "Bob"), "")

	before, seqBefore, _, ok := r.SnapshotForQuery("s1")
	require.True(t, ok)

	outcome := r.Propose("s1", "A", domain.Params{domain.ParamMu: 0.80})
	assert.False(t, outcome.Applied)
	assert.Empty(t, outcome.Conflicts)

	after, seqAfter, _, _ := r.SnapshotForQuery("s1")
	assert.Equal(t, before, after)
	assert.Equal(t, seqBefore, seqAfter)
	assert.Empty(t, b.messages())
}

// TestPresenceChurn checks that join/leave broadcasts fire to
// the right audience and the hub tears down after the last participant
// leaves, while the store retains the last saved snapshot.
func TestPresenceChurn(t *testing.T) {
	r, st, cancel := newTestRegistry(t)
	defer cancel()

	a := newFakePeer("A")
	r.Join("s2", a, principal("A", "Alice"), "")

	_, seq, _, ok := r.SnapshotForQuery("s2")
	require.True(t, ok)
	assert.Equal(t, uint64(0), seq)

	b := newFakePeer("B")
	r.Join("s2", b, principal("B", "Bob"), "")

	joinedMsg := a.last()
	require.NotNil(t, joinedMsg)
	assert.Equal(t, wire.TypeSessionJoined, joinedMsg.Type)
	joinedPayload := decodeEnvelope[wire.SessionJoinedPayload](t, *joinedMsg)
	assert.Equal(t, "B", joinedPayload.User.ID)

	r.Propose("s2", "A", domain.Params{domain.ParamMu: 0.6})
	require.Eventually(t, func() bool {
		rec, err := st.LoadState(context.Background(), "s2")
		return err == nil && rec != nil
	}, time.Second, 5*time.Millisecond)

	r.Leave("s2", "B")
	leftMsg := a.last()
	require.NotNil(t, leftMsg)
	assert.Equal(t, wire.TypeSessionLeft, leftMsg.Type)
	leftPayload := decodeEnvelope[wire.SessionLeftPayload](t, *leftMsg)
	assert.Equal(t, "B", leftPayload.UserID)

	r.Leave("s2", "A")

	_, _, _, ok = r.SnapshotForQuery("s2")
	assert.False(t, ok, "the hub is torn down once empty")

	rec, err := st.LoadState(context.Background(), "s2")
	require.NoError(t, err)
	require.NotNil(t, rec, "the persisted snapshot outlives the live session")
	assert.InDelta(t, 0.6, rec.State.Mu, 1e-9)
}

func TestJoin_RehydratesFromStore(t *testing.T) {
	r, st, cancel := newTestRegistry(t)
	defer cancel()

	require.NoError(t, st.SaveState(context.Background(), "s3", domain.Snapshot{
		Mu: 0.65, Omega: 1.1, Kappa: 0.03, Beta: 1 - 0.65 - 0.03*10.8,
	}, 42))

	a := newFakePeer("A")
	result := r.Join("s3", a, principal("A", "Alice"), "")

	assert.Equal(t, uint64(42), result.Seq, "seq resumes from the persisted value")
	assert.InDelta(t, 0.65, result.Snapshot.Mu, 1e-9)
}

func TestPropose_DropsSilentlyForUnknownParticipant(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a := newFakePeer("A")
	r.Join("s1", a, principal("A", "Alice"), "")

	outcome := r.Propose("s1", "ghost", domain.Params{domain.ParamMu: 0.6})
	assert.False(t, outcome.Applied)
	assert.Empty(t, outcome.Conflicts)
	assert.Empty(t, a.messages())
}

func TestDeadPeer_RemovedAfterFailedSend(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a, b := newFakePeer("A"), newFakePeer("B")
	r.Join("s1", a, principal("A", "Alice"), "")
	r.Join("s1", b, principal("B", "Bob"), "")

	b.mu.Lock()
	b.dead = true
	b.mu.Unlock()

	r.Propose("s1", "A", domain.Params{domain.ParamMu: 0.61})

	_, _, participants, ok := r.SnapshotForQuery("s1")
	require.True(t, ok)
	assert.Equal(t, 1, participants, "a peer whose send failed is removed from the roster")
}

// TestSeqIsMonotonicTotalOrder checks that successive broadcasts have
// strictly incrementing seq.
func TestSeqIsMonotonicTotalOrder(t *testing.T) {
	r, _, cancel := newTestRegistry(t)
	defer cancel()

	a := newFakePeer("A")
	r.Join("s1", a, principal("A", "Alice"), "")
	b := newFakePeer("B")
	r.Join("s1", b, principal("B", "Bob"), "")

	var lastSeq uint64
	for i := 0; i < 5; i++ {
		outcome := r.Propose("s1", "A", domain.Params{domain.ParamMu: 0.55 + float64(i)*0.01})
		require.True(t, outcome.Applied)
		msg := b.last()
		require.NotNil(t, msg)
		require.NotNil(t, msg.Seq)
		assert.Equal(t, lastSeq+1, *msg.Seq)
		lastSeq = *msg.Seq
	}
}
