package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "sessionhub/pkg/domainerrors"
)

func TestNewState_Defaults(t *testing.T) {
	s := NewState()
	snap := s.Snapshot()

	assert.InDelta(t, 0.569, snap.Mu, 1e-9)
	assert.InDelta(t, 0.847, snap.Omega, 1e-9)
	assert.InDelta(t, 0.0207, snap.Kappa, 1e-9)
	assert.InDelta(t, 1-0.569-0.0207*10.8, snap.Beta, 1e-9)
}

func TestApply_PartialUpdate(t *testing.T) {
	s := NewState()

	changed, err := s.Apply(Params{ParamMu: 0.60})
	require.NoError(t, err)
	assert.Equal(t, []ParamName{ParamMu}, changed)

	snap := s.Snapshot()
	assert.InDelta(t, 0.60, snap.Mu, 1e-9)
	assert.InDelta(t, 0.847, snap.Omega, 1e-9, "untouched fields are preserved")
	assert.InDelta(t, 1-0.60-0.0207*10.8, snap.Beta, 1e-9)
}

func TestApply_OutOfBoundsRejectsEntireProposal(t *testing.T) {
	s := NewState()
	before := s.Snapshot()

	_, err := s.Apply(Params{ParamMu: 0.60, ParamOmega: 5.0})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	after := s.Snapshot()
	assert.Equal(t, before, after, "a rejected proposal must not mutate any field")
}

func TestApply_NoOpOnSnapshot(t *testing.T) {
	s := NewState()
	_, _ = s.Apply(Params{ParamMu: 0.61, ParamOmega: 1.1})

	changed, err := s.Apply(Params(map[ParamName]float64{
		ParamMu:    s.get(ParamMu),
		ParamOmega: s.get(ParamOmega),
		ParamKappa: s.get(ParamKappa),
	}))
	require.NoError(t, err)
	assert.Empty(t, changed, "apply(snapshot()) must be a no-op on changed fields")
}

func TestHydrate_RoundTrip(t *testing.T) {
	s := NewState()
	_, _ = s.Apply(Params{ParamMu: 0.65, ParamKappa: 0.03})
	snap := s.Snapshot()

	restored := NewState()
	require.NoError(t, restored.Hydrate(snap))
	assert.Equal(t, snap, restored.Snapshot())
}

func TestHydrate_RejectsOutOfBounds(t *testing.T) {
	s := NewState()
	err := s.Hydrate(Snapshot{Mu: 0.9, Omega: 0.8, Kappa: 0.02})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestApply_ChangeDetectionTolerance(t *testing.T) {
	s := NewState()
	_, _ = s.Apply(Params{ParamMu: 0.6})

	changed, err := s.Apply(Params{ParamMu: 0.6 + 1e-12})
	require.NoError(t, err)
	assert.Empty(t, changed, "sub-epsilon deltas must not count as a change")
}
