// Package testutil provides shared test utilities and fixtures.
//
// The event fixtures are exact kinematics (no smearing), so a constrained
// fit of the true assignment starts on the constraint surface.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/combfit/internal/physics/event"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertClose fails the test if got and want differ by more than tol.
func AssertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol || math.IsNaN(got) {
		t.Errorf("%s = %v, want %v ± %v", name, got, want, tol)
	}
}

// OmegaBeamEnergy is the beam energy at which OmegaCandidates balance.
const OmegaBeamEnergy = 1400.0

// OmegaCandidates returns γp → pω, ω → π0γ, π0 → γγ at a 1400 MeV beam
// energy: three photons followed by the proton. Only the rotation with the
// proton last passes the default pre-filter at OmegaBeamEnergy. At 1200 MeV
// no rotation passes; at 900 MeV rotations 1 and 3 pass.
//
// Photons 0 and 1 come from the π0; all three photons form the ω.
func OmegaCandidates() []*event.Candidate {
	return []*event.Candidate{
		{Ek: 728.3906524674935, Theta: 0.5236117158871769, Phi: -0.42375861139796417, Detector: event.DetectorCB, ClusterSize: 9},
		{Ek: 88.23641945790938, Theta: 0.8355544291665887, Phi: 0.3020830372678606, Detector: event.DetectorCB, ClusterSize: 4},
		{Ek: 529.8969758013685, Theta: 0.7097674387529627, Phi: 2.668935048222138, Detector: event.DetectorCB, ClusterSize: 8},
		{Ek: 53.47595227323461, Theta: 0.2874641594357846, Phi: -2.8415926535897933, Detector: event.DetectorTAPS, ClusterSize: 2, VetoEnergy: 1.8},
	}
}

// OmegaEvent wraps OmegaCandidates in an event with a single prompt tagger
// hit at the given beam energy.
func OmegaEvent(id int64, beamEnergy float64) *event.Event {
	return &event.Event{
		ID:          id,
		TriggerTime: 0,
		Candidates:  OmegaCandidates(),
		TaggerHits:  []event.TaggerHit{{Channel: 17, PhotonEnergy: beamEnergy, Time: 0.5}},
	}
}
