package event

import "github.com/banshee-data/combfit/internal/physics/kinematics"

// Role tags what a hypothesis stands for in a trial assignment.
type Role uint8

const (
	RoleRecoil Role = iota
	RoleQuantum
)

func (r Role) String() string {
	if r == RoleRecoil {
		return "recoil"
	}
	return "quantum"
}

// Hypothesis pairs a candidate with an assumed particle type.
type Hypothesis struct {
	Role      Role
	Type      *kinematics.ParticleType
	Candidate *Candidate
}

// Recoil builds a recoil hypothesis.
func Recoil(t *kinematics.ParticleType, c *Candidate) Hypothesis {
	return Hypothesis{Role: RoleRecoil, Type: t, Candidate: c}
}

// Quantum builds an emitted-quantum hypothesis.
func Quantum(t *kinematics.ParticleType, c *Candidate) Hypothesis {
	return Hypothesis{Role: RoleQuantum, Type: t, Candidate: c}
}

// LorentzVec is the raw (pre-fit) four-vector of the hypothesis.
func (h Hypothesis) LorentzVec() kinematics.LorentzVec {
	return h.Candidate.LorentzVec(h.Type.Mass)
}

// SumLorentzVec adds up the raw four-vectors of the hypotheses.
func SumLorentzVec(hs []Hypothesis) kinematics.LorentzVec {
	var s kinematics.LorentzVec
	for _, h := range hs {
		s = s.Add(h.LorentzVec())
	}
	return s
}
