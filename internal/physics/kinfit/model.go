package kinfit

import (
	"math"

	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

// Uncertainty holds the one-sigma resolutions of a particle's measured
// variables.
type Uncertainty struct {
	SigmaEk    float64 // MeV
	SigmaTheta float64 // rad
	SigmaPhi   float64 // rad
}

// UncertaintyModel maps a hypothesis to its resolutions.
type UncertaintyModel interface {
	Uncertainties(t *kinematics.ParticleType, c *event.Candidate) Uncertainty
}

// DetectorResolution parameterises one calorimeter.
type DetectorResolution struct {
	// Photon energy resolution σE/E = EnergyConst + EnergyStochastic/E^EnergyExponent (E in GeV).
	EnergyConst      float64
	EnergyStochastic float64
	EnergyExponent   float64
	PhotonThetaDeg   float64
	PhotonPhiDeg     float64 // divided by sinθ
	ProtonEnergyRel  float64
	ProtonThetaDeg   float64
	ProtonPhiDeg     float64 // divided by sinθ
}

// SimpleModel is a detector-dependent resolution model for photons and
// charged recoils.
type SimpleModel struct {
	CB   DetectorResolution
	TAPS DetectorResolution
}

// DefaultModel returns resolutions typical of a Crystal Ball / TAPS setup.
func DefaultModel() *SimpleModel {
	return &SimpleModel{
		CB: DetectorResolution{
			EnergyStochastic: 0.02,
			EnergyExponent:   0.36,
			PhotonThetaDeg:   2.5,
			PhotonPhiDeg:     2.5,
			ProtonEnergyRel:  0.10,
			ProtonThetaDeg:   5.5,
			ProtonPhiDeg:     5.3,
		},
		TAPS: DetectorResolution{
			EnergyConst:      0.018,
			EnergyStochastic: 0.008,
			EnergyExponent:   0.5,
			PhotonThetaDeg:   1.0,
			PhotonPhiDeg:     1.0,
			ProtonEnergyRel:  0.10,
			ProtonThetaDeg:   2.8,
			ProtonPhiDeg:     2.8,
		},
	}
}

// minSinTheta caps the φ resolution blow-up near the beam axis.
const minSinTheta = 0.1

// Uncertainties implements UncertaintyModel.
func (m *SimpleModel) Uncertainties(t *kinematics.ParticleType, c *event.Candidate) Uncertainty {
	r := m.CB
	if c.Detector == event.DetectorTAPS {
		r = m.TAPS
	}
	sinTheta := math.Max(math.Abs(math.Sin(c.Theta)), minSinTheta)
	ek := math.Max(c.Ek, 1)

	if t.Mass == 0 {
		egev := ek / 1000
		rel := r.EnergyConst + r.EnergyStochastic/math.Pow(egev, r.EnergyExponent)
		return Uncertainty{
			SigmaEk:    rel * ek,
			SigmaTheta: kinematics.DegreeToRadian(r.PhotonThetaDeg),
			SigmaPhi:   kinematics.DegreeToRadian(r.PhotonPhiDeg) / sinTheta,
		}
	}
	return Uncertainty{
		SigmaEk:    r.ProtonEnergyRel * ek,
		SigmaTheta: kinematics.DegreeToRadian(r.ProtonThetaDeg),
		SigmaPhi:   kinematics.DegreeToRadian(r.ProtonPhiDeg) / sinTheta,
	}
}
