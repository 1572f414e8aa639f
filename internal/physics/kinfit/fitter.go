package kinfit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

// nConstraints is the number of four-momentum conservation equations.
const nConstraints = 4

// Calorimeter geometry used by the vertex correction, in cm.
const (
	CBRadius     = 25.4
	TAPSDistance = 145.7
)

// Settings configures a Fitter.
type Settings struct {
	MaxIterations          int
	ConstraintTolerance    float64 // max |constraint| in MeV at convergence
	ChiSquareTolerance     float64 // max χ² change between iterations at convergence
	BeamEnergySigma        float64 // MeV
	TargetMass             float64 // MeV, target at rest
	UnmeasuredRecoilEnergy bool
	FitVertex              bool
	VertexSigmaZ           float64 // cm, used when FitVertex
	JacobianStep           float64
}

// DefaultSettings matches the production analysis: 20 iterations, proton
// target, unmeasured recoil energy, no vertex fit.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:          20,
		ConstraintTolerance:    1e-3,
		ChiSquareTolerance:     1e-4,
		BeamEnergySigma:        2.0,
		TargetMass:             kinematics.Proton.Mass,
		UnmeasuredRecoilEnergy: true,
		JacobianStep:           1e-6,
	}
}

// Validate checks the settings for values the solver cannot work with.
func (s Settings) Validate() error {
	if s.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", s.MaxIterations)
	}
	if s.ConstraintTolerance <= 0 || s.ChiSquareTolerance <= 0 {
		return errors.New("fit tolerances must be positive")
	}
	if s.BeamEnergySigma <= 0 {
		return fmt.Errorf("beam energy sigma must be positive, got %g", s.BeamEnergySigma)
	}
	if s.TargetMass <= 0 {
		return fmt.Errorf("target mass must be positive, got %g", s.TargetMass)
	}
	if s.FitVertex && s.VertexSigmaZ <= 0 {
		return fmt.Errorf("vertex fit needs a positive sigma z, got %g", s.VertexSigmaZ)
	}
	if s.JacobianStep <= 0 {
		return fmt.Errorf("jacobian step must be positive, got %g", s.JacobianStep)
	}
	return nil
}

// slot addresses a fit variable in the measured (x) or unmeasured (u)
// vector.
type slot struct {
	measured bool
	idx      int
}

type particleSlots struct {
	ek, theta, phi slot
}

// Fitter is a reusable constrained-fit engine for a fixed number of quanta.
// It is not safe for concurrent use.
type Fitter struct {
	name     string
	nQuanta  int
	model    UncertaintyModel
	settings Settings

	slots  []particleSlots // recoil first, then quanta
	beam   int
	vertex int // -1 without vertex fit
	names  []string
	nx, nu int

	// Per-trial state, fully overwritten by load.
	types  []*kinematics.ParticleType
	dets   []event.Detector
	x0     []float64
	sigma2 []float64
	x, xn  []float64
	u, un  []float64

	// Scratch.
	y, r, rr, lambda, t, du []float64
	B, A, BV, S, Sinv        *mat.Dense
	SinvA, W, Winv           *mat.Dense
	jac                      fd.JacobianSettings
	fx, fu                   func(y, v []float64)
}

// NewFitter builds an engine for nQuanta emitted quanta plus one recoil.
func NewFitter(name string, nQuanta int, model UncertaintyModel, s Settings) (*Fitter, error) {
	if nQuanta < 1 {
		return nil, fmt.Errorf("fitter %s: need at least one quantum, got %d", name, nQuanta)
	}
	if model == nil {
		return nil, fmt.Errorf("fitter %s: nil uncertainty model", name)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("fitter %s: %w", name, err)
	}

	f := &Fitter{
		name:     name,
		nQuanta:  nQuanta,
		model:    model,
		settings: s,
		vertex:   -1,
	}
	f.layout()

	nParticles := nQuanta + 1
	f.types = make([]*kinematics.ParticleType, nParticles)
	f.dets = make([]event.Detector, nParticles)
	f.x0 = make([]float64, f.nx)
	f.sigma2 = make([]float64, f.nx)
	f.x = make([]float64, f.nx)
	f.xn = make([]float64, f.nx)
	f.u = make([]float64, f.nu)
	f.un = make([]float64, f.nu)

	f.y = make([]float64, nConstraints)
	f.r = make([]float64, nConstraints)
	f.rr = make([]float64, nConstraints)
	f.lambda = make([]float64, nConstraints)
	f.B = mat.NewDense(nConstraints, f.nx, nil)
	f.BV = mat.NewDense(nConstraints, f.nx, nil)
	f.S = mat.NewDense(nConstraints, nConstraints, nil)
	f.Sinv = mat.NewDense(nConstraints, nConstraints, nil)
	if f.nu > 0 {
		f.t = make([]float64, f.nu)
		f.du = make([]float64, f.nu)
		f.A = mat.NewDense(nConstraints, f.nu, nil)
		f.SinvA = mat.NewDense(nConstraints, f.nu, nil)
		f.W = mat.NewDense(f.nu, f.nu, nil)
		f.Winv = mat.NewDense(f.nu, f.nu, nil)
	}
	f.jac = fd.JacobianSettings{Formula: fd.Central, Step: s.JacobianStep}
	f.fx = func(y, v []float64) { f.constraints(y, v, f.u) }
	f.fu = func(y, v []float64) { f.constraints(y, f.x, v) }
	return f, nil
}

func (f *Fitter) layout() {
	f.beam = 0
	f.names = append(f.names, "Beam.E")
	f.nx = 1

	measured := func(name string) slot {
		f.names = append(f.names, name)
		f.nx++
		return slot{measured: true, idx: f.nx - 1}
	}

	f.slots = make([]particleSlots, f.nQuanta+1)
	for p := range f.slots {
		prefix := "Recoil"
		if p > 0 {
			prefix = fmt.Sprintf("Quantum[%d]", p-1)
		}
		var s particleSlots
		if p == 0 && f.settings.UnmeasuredRecoilEnergy {
			s.ek = slot{idx: f.nu}
			f.nu++
		} else {
			s.ek = measured(prefix + ".Ek")
		}
		s.theta = measured(prefix + ".Theta")
		s.phi = measured(prefix + ".Phi")
		f.slots[p] = s
	}
	if f.settings.FitVertex {
		f.vertex = measured("Vertex.Z").idx
	}
}

// Name identifies the engine, e.g. "kinfit_3g".
func (f *Fitter) Name() string { return f.name }

// Multiplicity is the number of quanta this engine fits.
func (f *Fitter) Multiplicity() int { return f.nQuanta }

// Settings returns the engine's solver settings.
func (f *Fitter) Settings() Settings { return f.settings }

// VariableNames lists the measured variables in pull order.
func (f *Fitter) VariableNames() []string { return append([]string(nil), f.names...) }

// Evaluate overwrites all inputs with t and runs the fit.
func (f *Fitter) Evaluate(t Trial) Outcome {
	if len(t.Quanta) != f.nQuanta {
		return failed(StatusUnsupported, 0)
	}
	if s := f.load(t); s != StatusSuccess {
		return failed(s, 0)
	}
	return f.solve()
}

func (f *Fitter) load(t Trial) Status {
	if !finite(t.BeamEnergy) {
		return StatusNonFinite
	}
	if t.BeamEnergy <= 0 {
		return StatusBadInput
	}
	f.x0[f.beam] = t.BeamEnergy
	f.sigma2[f.beam] = f.settings.BeamEnergySigma * f.settings.BeamEnergySigma

	for p := range f.slots {
		h := t.Recoil
		if p > 0 {
			h = t.Quanta[p-1]
		}
		c := h.Candidate
		if c == nil || h.Type == nil {
			return StatusBadInput
		}
		if !finite(c.Ek) || !finite(c.Theta) || !finite(c.Phi) {
			return StatusNonFinite
		}
		f.types[p] = h.Type
		f.dets[p] = c.Detector

		unc := f.model.Uncertainties(h.Type, c)
		s := f.slots[p]
		if s.ek.measured {
			if st := f.setMeasured(s.ek.idx, c.Ek, unc.SigmaEk); st != StatusSuccess {
				return st
			}
		} else {
			f.u[s.ek.idx] = math.Max(c.Ek, 1)
		}
		if st := f.setMeasured(s.theta.idx, c.Theta, unc.SigmaTheta); st != StatusSuccess {
			return st
		}
		if st := f.setMeasured(s.phi.idx, c.Phi, unc.SigmaPhi); st != StatusSuccess {
			return st
		}
	}
	if f.vertex >= 0 {
		f.x0[f.vertex] = 0
		f.sigma2[f.vertex] = f.settings.VertexSigmaZ * f.settings.VertexSigmaZ
	}
	copy(f.x, f.x0)
	return StatusSuccess
}

func (f *Fitter) setMeasured(idx int, v, sigma float64) Status {
	if !finite(sigma) || sigma <= 0 {
		return StatusBadInput
	}
	f.x0[idx] = v
	f.sigma2[idx] = sigma * sigma
	return StatusSuccess
}

func (f *Fitter) solve() Outcome {
	chi2Prev := math.Inf(1)
	for iter := 1; iter <= f.settings.MaxIterations; iter++ {
		f.constraints(f.y, f.x, f.u)
		fd.Jacobian(f.B, f.fx, f.x, &f.jac)
		if f.nu > 0 {
			fd.Jacobian(f.A, f.fu, f.u, &f.jac)
		}

		// r = F + B(x0 - x)
		for i := 0; i < nConstraints; i++ {
			s := f.y[i]
			for j := 0; j < f.nx; j++ {
				s += f.B.At(i, j) * (f.x0[j] - f.x[j])
			}
			f.r[i] = s
		}

		// S = B V Bᵀ
		for i := 0; i < nConstraints; i++ {
			for j := 0; j < f.nx; j++ {
				f.BV.Set(i, j, f.B.At(i, j)*f.sigma2[j])
			}
		}
		f.S.Mul(f.BV, f.B.T())
		if err := f.Sinv.Inverse(f.S); err != nil {
			return failed(StatusSingular, iter)
		}

		copy(f.rr, f.r)
		if f.nu > 0 {
			f.SinvA.Mul(f.Sinv, f.A)
			f.W.Mul(f.A.T(), f.SinvA)
			if err := f.Winv.Inverse(f.W); err != nil {
				return failed(StatusSingular, iter)
			}
			for k := 0; k < f.nu; k++ {
				s := 0.0
				for i := 0; i < nConstraints; i++ {
					s += f.SinvA.At(i, k) * f.r[i]
				}
				f.t[k] = s
			}
			for k := 0; k < f.nu; k++ {
				s := 0.0
				for l := 0; l < f.nu; l++ {
					s += f.Winv.At(k, l) * f.t[l]
				}
				f.du[k] = -s
				f.un[k] = f.u[k] + f.du[k]
			}
			for i := 0; i < nConstraints; i++ {
				for k := 0; k < f.nu; k++ {
					f.rr[i] += f.A.At(i, k) * f.du[k]
				}
			}
		}

		// λ = S⁻¹ rr, x = x0 - V Bᵀ λ
		for i := 0; i < nConstraints; i++ {
			s := 0.0
			for j := 0; j < nConstraints; j++ {
				s += f.Sinv.At(i, j) * f.rr[j]
			}
			f.lambda[i] = s
		}
		chi2 := 0.0
		for j := 0; j < f.nx; j++ {
			s := 0.0
			for i := 0; i < nConstraints; i++ {
				s += f.B.At(i, j) * f.lambda[i]
			}
			f.xn[j] = f.x0[j] - f.sigma2[j]*s
			d := f.xn[j] - f.x0[j]
			chi2 += d * d / f.sigma2[j]
		}
		if !finite(chi2) || !allFinite(f.xn) || !allFinite(f.un) {
			return failed(StatusNonFinite, iter)
		}
		f.x, f.xn = f.xn, f.x
		f.u, f.un = f.un, f.u

		f.constraints(f.y, f.x, f.u)
		if maxAbs(f.y) < f.settings.ConstraintTolerance && math.Abs(chi2-chi2Prev) < f.settings.ChiSquareTolerance {
			return f.success(chi2, iter)
		}
		chi2Prev = chi2
	}
	return failed(StatusNotConverged, f.settings.MaxIterations)
}

func (f *Fitter) success(chi2 float64, iter int) Outcome {
	ndf := nConstraints - f.nu
	out := Outcome{
		Status:      StatusSuccess,
		Probability: distuv.ChiSquared{K: float64(ndf)}.Survival(chi2),
		ChiSquare:   chi2,
		NDF:         ndf,
		Iterations:  iter,
		BeamEnergy:  f.x[f.beam],
		Recoil:      f.particle(0),
		Quanta:      make([]Particle, f.nQuanta),
		Pulls:       f.pulls(),
	}
	if f.vertex >= 0 {
		out.VertexZ = f.x[f.vertex]
	}
	for i := range out.Quanta {
		out.Quanta[i] = f.particle(i + 1)
	}
	return out
}

// pulls computes (fitted - measured) / sqrt(σ²_measured - σ²_fitted) from
// the last linearisation.
func (f *Fitter) pulls() []Pull {
	var k mat.Dense
	k.CloneFrom(f.Sinv)
	if f.nu > 0 {
		var tmp, corr mat.Dense
		tmp.Mul(f.SinvA, f.Winv)
		corr.Mul(&tmp, f.SinvA.T())
		k.Sub(&k, &corr)
	}
	out := make([]Pull, f.nx)
	for j := 0; j < f.nx; j++ {
		q := 0.0
		for a := 0; a < nConstraints; a++ {
			for b := 0; b < nConstraints; b++ {
				q += f.B.At(a, j) * k.At(a, b) * f.B.At(b, j)
			}
		}
		denom := f.sigma2[j] * f.sigma2[j] * q
		v := 0.0
		if denom > 0 {
			v = (f.x[j] - f.x0[j]) / math.Sqrt(denom)
		}
		out[j] = Pull{Name: f.names[j], Value: v}
	}
	return out
}

func (f *Fitter) value(s slot, x, u []float64) float64 {
	if s.measured {
		return x[s.idx]
	}
	return u[s.idx]
}

// constraints writes (beam + target) - Σ particles into y.
func (f *Fitter) constraints(y, x, u []float64) {
	beamE := x[f.beam]
	z := 0.0
	if f.vertex >= 0 {
		z = x[f.vertex]
	}
	e := beamE + f.settings.TargetMass
	px, py, pz := 0.0, 0.0, beamE
	for p, s := range f.slots {
		v := f.fourVec(p, f.value(s.ek, x, u), f.value(s.theta, x, u), f.value(s.phi, x, u), z)
		e -= v.E
		px -= v.P.X
		py -= v.P.Y
		pz -= v.P.Z
	}
	y[0], y[1], y[2], y[3] = e, px, py, pz
}

func (f *Fitter) fourVec(p int, ek, theta, phi, z float64) kinematics.LorentzVec {
	if f.vertex >= 0 {
		theta = VertexCorrectedTheta(theta, z, f.dets[p])
	}
	return kinematics.FromEkThetaPhi(ek, theta, phi, f.types[p].Mass)
}

func (f *Fitter) particle(p int) Particle {
	s := f.slots[p]
	theta := f.value(s.theta, f.x, f.u)
	if f.vertex >= 0 {
		theta = VertexCorrectedTheta(theta, f.x[f.vertex], f.dets[p])
	}
	return Particle{
		Type:  f.types[p],
		Ek:    f.value(s.ek, f.x, f.u),
		Theta: theta,
		Phi:   f.value(s.phi, f.x, f.u),
	}
}

// VertexCorrectedTheta returns the polar angle of a cluster seen from a
// vertex displaced by z along the beam axis. theta is the angle measured
// from the target centre.
func VertexCorrectedTheta(theta, z float64, det event.Detector) float64 {
	var rho, zpos float64
	if det == event.DetectorTAPS {
		zpos = TAPSDistance
		rho = TAPSDistance * math.Tan(theta)
	} else {
		rho = CBRadius * math.Sin(theta)
		zpos = CBRadius * math.Cos(theta)
	}
	return math.Atan2(rho, zpos-z)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}

func maxAbs(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
