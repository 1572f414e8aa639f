package event

import (
	"fmt"
	"strings"

	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

// Detector identifies the calorimeter a candidate was reconstructed in.
type Detector uint8

const (
	DetectorNone Detector = iota
	DetectorCB            // Crystal Ball sphere
	DetectorTAPS          // forward wall
)

func (d Detector) String() string {
	switch d {
	case DetectorCB:
		return "CB"
	case DetectorTAPS:
		return "TAPS"
	default:
		return "none"
	}
}

// ParseDetector converts a detector name to a Detector.
func ParseDetector(s string) (Detector, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CB":
		return DetectorCB, nil
	case "TAPS":
		return DetectorTAPS, nil
	case "", "NONE":
		return DetectorNone, nil
	}
	return DetectorNone, fmt.Errorf("unknown detector %q", s)
}

// Candidate is one reconstructed cluster before particle assignment.
type Candidate struct {
	Ek          float64 // deposited (kinetic) energy, MeV
	Theta       float64 // rad
	Phi         float64 // rad
	Detector    Detector
	Time        float64 // ns
	VetoEnergy  float64 // MeV in the charged-particle veto
	ClusterSize int
}

// LorentzVec returns the candidate's four-vector under the given mass
// assumption.
func (c *Candidate) LorentzVec(mass float64) kinematics.LorentzVec {
	return kinematics.FromEkThetaPhi(c.Ek, c.Theta, c.Phi, mass)
}

func (c *Candidate) String() string {
	return fmt.Sprintf("Cand(Ek=%.1f θ=%.1f° φ=%.1f° %s)",
		c.Ek, kinematics.RadianToDegree(c.Theta), kinematics.RadianToDegree(c.Phi), c.Detector)
}

// TaggerHit is a tagged beam photon.
type TaggerHit struct {
	Channel      int
	PhotonEnergy float64 // MeV
	Time         float64 // ns, absolute
}

// PhotonBeam is the beam photon four-vector along +z.
func (h TaggerHit) PhotonBeam() kinematics.LorentzVec {
	return kinematics.FromEkThetaPhi(h.PhotonEnergy, 0, 0, 0)
}

// Event is one triggered readout.
type Event struct {
	ID          int64
	TriggerTime float64 // ns, reference time for tagger coincidences
	Candidates  []*Candidate
	TaggerHits  []TaggerHit
}

// RelativeTime is the tagger hit time relative to the trigger reference.
func (e *Event) RelativeTime(h TaggerHit) float64 {
	return h.Time - e.TriggerTime
}
