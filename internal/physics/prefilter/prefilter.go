// Package prefilter rejects trial assignments that cannot satisfy the
// reaction kinematics, before a constrained fit is paid for.
package prefilter

import (
	"fmt"
	"math"

	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

// Verdict is the outcome of a pre-filter check.
type Verdict uint8

const (
	Pass Verdict = iota
	RejectCoplanarity
	RejectMissingMass
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case RejectCoplanarity:
		return "coplanarity"
	case RejectMissingMass:
		return "missing_mass"
	}
	return "unknown"
}

// Config holds the cut windows.
type Config struct {
	// Coplanarity is the allowed deviation from back-to-back in degrees,
	// i.e. |Δφ| - 180 must fall inside it.
	Coplanarity kinematics.Interval
	// MissingMass is the allowed missing mass in MeV.
	MissingMass kinematics.Interval
	// TargetMass is the mass of the target at rest.
	TargetMass float64
}

// DefaultConfig returns ±25° coplanarity and a 300 MeV window around the
// proton mass with a proton target.
func DefaultConfig() Config {
	return NewConfig(25, 300, kinematics.Proton, kinematics.Proton.Mass)
}

// NewConfig builds a Config from a symmetric coplanarity half-width in
// degrees and a missing-mass window width around the recoil mass.
func NewConfig(coplanarityDeg, missingMassWidth float64, recoil *kinematics.ParticleType, targetMass float64) Config {
	return Config{
		Coplanarity: kinematics.Symmetric(coplanarityDeg),
		MissingMass: recoil.Window(missingMassWidth),
		TargetMass:  targetMass,
	}
}

// Validate checks that both windows are well formed.
func (c Config) Validate() error {
	if !c.Coplanarity.IsSane() {
		return fmt.Errorf("coplanarity window %v is inverted", c.Coplanarity)
	}
	if !c.MissingMass.IsSane() {
		return fmt.Errorf("missing mass window %v is inverted", c.MissingMass)
	}
	if c.TargetMass <= 0 {
		return fmt.Errorf("target mass must be positive, got %g", c.TargetMass)
	}
	return nil
}

// Result carries the verdict and the quantities it was based on. When the
// coplanarity cut rejects, MissingMass is NaN because it was not computed.
type Result struct {
	Verdict     Verdict
	Coplanarity float64 // degrees, |Δφ| - 180
	MissingMass float64 // MeV
}

// Filter applies the cuts. It is stateless and safe to share.
type Filter struct {
	cfg    Config
	target kinematics.LorentzVec
}

// New returns a Filter for cfg.
func New(cfg Config) *Filter {
	return &Filter{
		cfg:    cfg,
		target: kinematics.FromEkThetaPhi(0, 0, 0, cfg.TargetMass),
	}
}

// Config returns the filter's configuration.
func (f *Filter) Config() Config { return f.cfg }

// Check evaluates recoil and quanta against the beam photon of hit.
func (f *Filter) Check(hit event.TaggerHit, recoil event.Hypothesis, quanta []event.Hypothesis) Result {
	sum := event.SumLorentzVec(quanta)
	return f.CheckSum(hit, recoil.LorentzVec(), sum)
}

// CheckSum is Check with the quanta already summed.
func (f *Filter) CheckSum(hit event.TaggerHit, recoil, quanta kinematics.LorentzVec) Result {
	copl := Coplanarity(quanta, recoil)
	if !f.cfg.Coplanarity.Contains(copl) {
		return Result{Verdict: RejectCoplanarity, Coplanarity: copl, MissingMass: math.NaN()}
	}
	mm := MissingMass(hit.PhotonBeam(), f.target, quanta)
	if !f.cfg.MissingMass.Contains(mm) {
		return Result{Verdict: RejectMissingMass, Coplanarity: copl, MissingMass: mm}
	}
	return Result{Verdict: Pass, Coplanarity: copl, MissingMass: mm}
}

// Coplanarity is the azimuthal separation of a and b in degrees minus 180;
// zero means exactly back-to-back.
func Coplanarity(a, b kinematics.LorentzVec) float64 {
	return kinematics.RadianToDegree(math.Abs(a.Phi()-b.Phi())) - 180
}

// MissingMass is the invariant mass of beam + target - detected.
func MissingMass(beam, target, detected kinematics.LorentzVec) float64 {
	return beam.Add(target).Sub(detected).M()
}
