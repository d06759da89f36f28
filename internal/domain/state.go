package domain

import (
	"math"

	dErrors "sessionhub/pkg/domainerrors"
)

// betaConstant is the fixed coefficient in beta = 1 - mu - kappa*c.
const betaConstant = 10.8

// changeEpsilon is the minimum difference for a new value to count as a
// "changed field" per Apply's contract.
const changeEpsilon = 1e-9

// ParamName identifies one of the three primary session parameters.
type ParamName string

const (
	ParamMu    ParamName = "mu"
	ParamOmega ParamName = "omega"
	ParamKappa ParamName = "kappa"
)

type bounds struct{ min, max, def float64 }

var paramBounds = map[ParamName]bounds{
	ParamMu:    {min: 0.500, max: 0.700, def: 0.569},
	ParamOmega: {min: 0.500, max: 1.500, def: 0.847},
	ParamKappa: {min: 0.010, max: 0.050, def: 0.0207},
}

// Params is a partial or full set of primary parameter values, keyed by
// name. It is the wire shape of param:update payloads and of apply's input.
type Params map[ParamName]float64

// Snapshot is the full set of fields describing a session's state,
// including the derived beta, suitable for serialization.
type Snapshot struct {
	Mu    float64 `json:"mu"`
	Omega float64 `json:"omega"`
	Kappa float64 `json:"kappa"`
	Beta  float64 `json:"beta"`
}

// State is the authoritative parameter record for one session. It has no
// concurrency of its own: callers (the hub) serialize access.
type State struct {
	mu    float64
	omega float64
	kappa float64
	beta  float64
}

// NewState returns a state initialized to the documented defaults.
func NewState() *State {
	s := &State{
		mu:    paramBounds[ParamMu].def,
		omega: paramBounds[ParamOmega].def,
		kappa: paramBounds[ParamKappa].def,
	}
	s.recomputeBeta()
	return s
}

func (s *State) get(name ParamName) float64 {
	switch name {
	case ParamMu:
		return s.mu
	case ParamOmega:
		return s.omega
	case ParamKappa:
		return s.kappa
	default:
		return 0
	}
}

func (s *State) set(name ParamName, value float64) {
	switch name {
	case ParamMu:
		s.mu = value
	case ParamOmega:
		s.omega = value
	case ParamKappa:
		s.kappa = value
	}
}

func (s *State) recomputeBeta() {
	s.beta = 1 - s.mu - s.kappa*betaConstant
}

// validate checks a single (name, value) pair against its declared bounds.
func validate(name ParamName, value float64) error {
	b, ok := paramBounds[name]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown parameter: "+string(name))
	}
	if value < b.min || value > b.max {
		return dErrors.New(dErrors.CodeInvalidInput, "parameter out of bounds: "+string(name))
	}
	return nil
}

// Apply validates every (name, value) pair in partial, rejecting the whole
// proposal atomically on any bounds violation, then writes the accepted
// values and recomputes beta. It returns the names of fields whose value
// actually changed by more than changeEpsilon.
func (s *State) Apply(partial Params) ([]ParamName, error) {
	for name, value := range partial {
		if err := validate(name, value); err != nil {
			return nil, err
		}
	}

	var changed []ParamName
	for name, value := range partial {
		if math.Abs(s.get(name)-value) > changeEpsilon {
			changed = append(changed, name)
		}
		s.set(name, value)
	}
	s.recomputeBeta()
	return changed, nil
}

// Snapshot returns the current field values including beta.
func (s *State) Snapshot() Snapshot {
	return Snapshot{Mu: s.mu, Omega: s.omega, Kappa: s.kappa, Beta: s.beta}
}

// Hydrate restores state from a persisted snapshot, ignoring any
// seq/updated_at metadata the caller may have attached, and validating
// bounds on every primary field.
func (s *State) Hydrate(snap Snapshot) error {
	for name, value := range map[ParamName]float64{
		ParamMu:    snap.Mu,
		ParamOmega: snap.Omega,
		ParamKappa: snap.Kappa,
	} {
		if err := validate(name, value); err != nil {
			return err
		}
	}
	s.mu, s.omega, s.kappa = snap.Mu, snap.Omega, snap.Kappa
	s.recomputeBeta()
	return nil
}
