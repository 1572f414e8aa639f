package kinfit

import (
	"fmt"
	"math"

	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

// Status reports how a fit ended.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusNotConverged
	StatusSingular
	StatusNonFinite
	StatusUnsupported
	StatusBadInput
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotConverged:
		return "not_converged"
	case StatusSingular:
		return "singular"
	case StatusNonFinite:
		return "non_finite"
	case StatusUnsupported:
		return "unsupported"
	case StatusBadInput:
		return "bad_input"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Trial is the complete input of one fit.
type Trial struct {
	BeamEnergy float64
	Recoil     event.Hypothesis
	Quanta     []event.Hypothesis
}

// Particle is a fitted particle.
type Particle struct {
	Type  *kinematics.ParticleType
	Ek    float64
	Theta float64
	Phi   float64
}

// LorentzVec is the particle's four-vector.
func (p Particle) LorentzVec() kinematics.LorentzVec {
	return kinematics.FromEkThetaPhi(p.Ek, p.Theta, p.Phi, p.Type.Mass)
}

// SumParticles adds up the four-vectors of ps.
func SumParticles(ps []Particle) kinematics.LorentzVec {
	var s kinematics.LorentzVec
	for _, p := range ps {
		s = s.Add(p.LorentzVec())
	}
	return s
}

// Pull is the normalised shift of one measured variable.
type Pull struct {
	Name  string
	Value float64
}

// Outcome is the result of one fit. Failed fits carry a NaN probability
// and no particles.
type Outcome struct {
	Status      Status
	Probability float64
	ChiSquare   float64
	NDF         int
	Iterations  int
	BeamEnergy  float64 // fitted
	VertexZ     float64 // fitted, cm; zero without vertex fit
	Recoil      Particle
	Quanta      []Particle
	Pulls       []Pull
}

// Success reports whether the fit converged with a finite probability.
func (o Outcome) Success() bool {
	return o.Status == StatusSuccess && !math.IsNaN(o.Probability) && !math.IsInf(o.Probability, 0)
}

func failed(s Status, iterations int) Outcome {
	return Outcome{
		Status:      s,
		Probability: math.NaN(),
		ChiSquare:   math.NaN(),
		Iterations:  iterations,
	}
}

// Evaluator runs fits. *Pool implements it.
type Evaluator interface {
	Evaluate(t Trial) Outcome
	Supports(multiplicity int) bool
}
