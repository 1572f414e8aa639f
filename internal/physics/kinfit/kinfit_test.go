package kinfit

import (
	"math"
	"testing"

	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
	"github.com/banshee-data/combfit/internal/testutil"
)

func omegaTrial(beam float64, cands []*event.Candidate, recoil int) Trial {
	t := Trial{BeamEnergy: beam, Recoil: event.Recoil(kinematics.Proton, cands[recoil])}
	for i, c := range cands {
		if i != recoil {
			t.Quanta = append(t.Quanta, event.Quantum(kinematics.Photon, c))
		}
	}
	return t
}

func newFitter(t *testing.T, n int, s Settings) *Fitter {
	t.Helper()
	f, err := NewFitter("test", n, DefaultModel(), s)
	testutil.AssertNoError(t, err)
	return f
}

func TestFitter_ExactEventConverges(t *testing.T) {
	f := newFitter(t, 3, DefaultSettings())
	out := f.Evaluate(omegaTrial(testutil.OmegaBeamEnergy, testutil.OmegaCandidates(), 3))

	if !out.Success() {
		t.Fatalf("status = %v, want success", out.Status)
	}
	if out.ChiSquare > 1e-6 {
		t.Errorf("chi2 = %g, want ~0", out.ChiSquare)
	}
	if out.Probability < 0.999 {
		t.Errorf("probability = %g, want ~1", out.Probability)
	}
	if out.NDF != 3 {
		t.Errorf("ndf = %d, want 3", out.NDF)
	}
	if len(out.Quanta) != 3 {
		t.Fatalf("got %d fitted quanta, want 3", len(out.Quanta))
	}
	if len(out.Pulls) != 12 {
		t.Errorf("got %d pulls, want 12", len(out.Pulls))
	}
	testutil.AssertClose(t, "beam energy", out.BeamEnergy, testutil.OmegaBeamEnergy, 1e-3)
	testutil.AssertClose(t, "omega mass", SumParticles(out.Quanta).M(), kinematics.Omega.Mass, 1e-2)
	testutil.AssertClose(t, "recoil ek", out.Recoil.Ek, testutil.OmegaCandidates()[3].Ek, 1e-2)
}

func TestFitter_PerturbedEventSatisfiesConstraints(t *testing.T) {
	f := newFitter(t, 3, DefaultSettings())
	beam := testutil.OmegaBeamEnergy + 4
	out := f.Evaluate(omegaTrial(beam, testutil.OmegaCandidates(), 3))

	if !out.Success() {
		t.Fatalf("status = %v, want success", out.Status)
	}
	if out.ChiSquare <= 0 {
		t.Errorf("chi2 = %g, want > 0", out.ChiSquare)
	}
	if out.Probability <= 0 || out.Probability >= 1 {
		t.Errorf("probability = %g, want in (0,1)", out.Probability)
	}

	initial := kinematics.LorentzVec{E: out.BeamEnergy + kinematics.Proton.Mass}
	initial.P.Z = out.BeamEnergy
	final := SumParticles(out.Quanta).Add(out.Recoil.LorentzVec())
	d := initial.Sub(final)
	for name, v := range map[string]float64{"E": d.E, "px": d.P.X, "py": d.P.Y, "pz": d.P.Z} {
		if math.Abs(v) > 1e-2 {
			t.Errorf("fitted %s imbalance = %g", name, v)
		}
	}
}

func TestFitter_TrueAssignmentBeatsSwappedRecoil(t *testing.T) {
	f := newFitter(t, 3, DefaultSettings())
	cands := testutil.OmegaCandidates()
	best := f.Evaluate(omegaTrial(testutil.OmegaBeamEnergy, cands, 3))
	if !best.Success() {
		t.Fatalf("status = %v, want success", best.Status)
	}
	for recoil := 0; recoil < 3; recoil++ {
		out := f.Evaluate(omegaTrial(testutil.OmegaBeamEnergy, cands, recoil))
		if out.Success() && out.Probability >= best.Probability {
			t.Errorf("recoil %d: probability %g not below true assignment %g", recoil, out.Probability, best.Probability)
		}
	}
}

func TestFitter_ReuseDoesNotLeakState(t *testing.T) {
	f := newFitter(t, 3, DefaultSettings())
	fresh := newFitter(t, 3, DefaultSettings())

	first := f.Evaluate(omegaTrial(testutil.OmegaBeamEnergy+4, testutil.OmegaCandidates(), 3))
	firstEk := first.Quanta[0].Ek
	firstPull := first.Pulls[0].Value

	got := f.Evaluate(omegaTrial(testutil.OmegaBeamEnergy, testutil.OmegaCandidates(), 3))
	want := fresh.Evaluate(omegaTrial(testutil.OmegaBeamEnergy, testutil.OmegaCandidates(), 3))

	if got.Status != want.Status || got.Iterations != want.Iterations {
		t.Errorf("reused fitter: status %v/%d iterations, fresh %v/%d", got.Status, got.Iterations, want.Status, want.Iterations)
	}
	testutil.AssertClose(t, "chi2", got.ChiSquare, want.ChiSquare, 1e-9)
	testutil.AssertClose(t, "probability", got.Probability, want.Probability, 1e-9)

	if first.Quanta[0].Ek != firstEk || first.Pulls[0].Value != firstPull {
		t.Error("earlier outcome was modified by a later Evaluate")
	}
}

func TestFitter_RejectsBadTrials(t *testing.T) {
	f := newFitter(t, 3, DefaultSettings())
	cands := testutil.OmegaCandidates()

	tests := []struct {
		name  string
		trial Trial
		want  Status
	}{
		{"wrong multiplicity", Trial{BeamEnergy: 1400, Recoil: event.Recoil(kinematics.Proton, cands[3]),
			Quanta: []event.Hypothesis{event.Quantum(kinematics.Photon, cands[0])}}, StatusUnsupported},
		{"nil candidate", func() Trial {
			tr := omegaTrial(1400, cands, 3)
			tr.Quanta[1].Candidate = nil
			return tr
		}(), StatusBadInput},
		{"zero beam", omegaTrial(0, cands, 3), StatusBadInput},
		{"nan beam", omegaTrial(math.NaN(), cands, 3), StatusNonFinite},
		{"nan energy", func() Trial {
			cs := testutil.OmegaCandidates()
			cs[0].Ek = math.NaN()
			return omegaTrial(1400, cs, 3)
		}(), StatusNonFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.Evaluate(tt.trial)
			if out.Status != tt.want {
				t.Errorf("status = %v, want %v", out.Status, tt.want)
			}
			if !math.IsNaN(out.Probability) || out.Success() {
				t.Errorf("failed fit reported probability %g", out.Probability)
			}
		})
	}
}

func TestFitter_VertexFit(t *testing.T) {
	s := DefaultSettings()
	s.FitVertex = true
	s.VertexSigmaZ = 1.0
	f := newFitter(t, 3, s)

	names := f.VariableNames()
	if names[len(names)-1] != "Vertex.Z" {
		t.Errorf("last variable = %q, want Vertex.Z", names[len(names)-1])
	}
	out := f.Evaluate(omegaTrial(testutil.OmegaBeamEnergy, testutil.OmegaCandidates(), 3))
	if !out.Success() {
		t.Fatalf("status = %v, want success", out.Status)
	}
	testutil.AssertClose(t, "vertex z", out.VertexZ, 0, 1e-3)
	if out.Probability < 0.999 {
		t.Errorf("probability = %g, want ~1", out.Probability)
	}
}

func TestVertexCorrectedTheta(t *testing.T) {
	for _, det := range []event.Detector{event.DetectorCB, event.DetectorTAPS} {
		testutil.AssertClose(t, det.String()+" at origin", VertexCorrectedTheta(0.3, 0, det), 0.3, 1e-12)
	}
	// A vertex downstream sees forward clusters at larger angles.
	if got := VertexCorrectedTheta(0.5, 2, event.DetectorCB); got <= 0.5 {
		t.Errorf("CB theta from z=+2 = %g, want > 0.5", got)
	}
	if got := VertexCorrectedTheta(0.2, -2, event.DetectorTAPS); got >= 0.2 {
		t.Errorf("TAPS theta from z=-2 = %g, want < 0.2", got)
	}
}

func TestSettings_Validate(t *testing.T) {
	mods := map[string]func(*Settings){
		"iterations":   func(s *Settings) { s.MaxIterations = 0 },
		"tolerance":    func(s *Settings) { s.ConstraintTolerance = 0 },
		"beam sigma":   func(s *Settings) { s.BeamEnergySigma = -1 },
		"target mass":  func(s *Settings) { s.TargetMass = 0 },
		"vertex sigma": func(s *Settings) { s.FitVertex = true },
		"step":         func(s *Settings) { s.JacobianStep = 0 },
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	for name, mod := range mods {
		s := DefaultSettings()
		mod(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPool(t *testing.T) {
	p, err := NewPool(2, 5, DefaultModel(), DefaultSettings())
	testutil.AssertNoError(t, err)

	if lo, hi := p.Range(); lo != 2 || hi != 5 {
		t.Errorf("range = [%d,%d], want [2,5]", lo, hi)
	}
	for n, want := range map[int]bool{1: false, 2: true, 5: true, 6: false} {
		if p.Supports(n) != want {
			t.Errorf("Supports(%d) = %v, want %v", n, !want, want)
		}
	}
	if f := p.Fitter(3); f == nil || f.Name() != "kinfit_3g" || f.Multiplicity() != 3 {
		t.Errorf("Fitter(3) = %+v", f)
	}
	if p.Fitter(6) != nil {
		t.Error("Fitter(6) should be nil")
	}

	out := p.Evaluate(omegaTrial(testutil.OmegaBeamEnergy, testutil.OmegaCandidates(), 3))
	if !out.Success() {
		t.Errorf("pool evaluate status = %v", out.Status)
	}
	one := Trial{BeamEnergy: 1400, Recoil: event.Recoil(kinematics.Proton, testutil.OmegaCandidates()[3])}
	if got := p.Evaluate(one).Status; got != StatusUnsupported {
		t.Errorf("zero quanta status = %v, want unsupported", got)
	}
}

func TestNewPool_Errors(t *testing.T) {
	bad := DefaultSettings()
	bad.MaxIterations = 0
	tests := []struct {
		name     string
		min, max int
		model    UncertaintyModel
		s        Settings
	}{
		{"zero min", 0, 3, DefaultModel(), DefaultSettings()},
		{"inverted", 4, 3, DefaultModel(), DefaultSettings()},
		{"nil model", 2, 3, nil, DefaultSettings()},
		{"bad settings", 2, 3, DefaultModel(), bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.min, tt.max, tt.model, tt.s)
			testutil.AssertError(t, err)
		})
	}
}

func TestStatus_String(t *testing.T) {
	if StatusNotConverged.String() != "not_converged" || Status(99).String() != "status(99)" {
		t.Error("unexpected status strings")
	}
}
