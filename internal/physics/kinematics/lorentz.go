package kinematics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// LorentzVec is a four-momentum (E, p) in MeV.
type LorentzVec struct {
	P r3.Vec
	E float64
}

// NewLorentzVec builds an on-shell four-vector from a momentum and a mass.
func NewLorentzVec(p r3.Vec, mass float64) LorentzVec {
	return LorentzVec{P: p, E: math.Sqrt(r3.Norm2(p) + mass*mass)}
}

// FromEkThetaPhi builds an on-shell four-vector from kinetic energy and
// direction angles.
func FromEkThetaPhi(ek, theta, phi, mass float64) LorentzVec {
	e := ek + mass
	pmag := math.Sqrt(math.Max(e*e-mass*mass, 0))
	return LorentzVec{
		P: r3.Scale(pmag, Direction(theta, phi)),
		E: e,
	}
}

// Direction returns the unit vector for polar angle theta and azimuth phi.
func Direction(theta, phi float64) r3.Vec {
	st, ct := math.Sincos(theta)
	sp, cp := math.Sincos(phi)
	return r3.Vec{X: st * cp, Y: st * sp, Z: ct}
}

// Add returns v + o.
func (v LorentzVec) Add(o LorentzVec) LorentzVec {
	return LorentzVec{P: r3.Add(v.P, o.P), E: v.E + o.E}
}

// Sub returns v - o.
func (v LorentzVec) Sub(o LorentzVec) LorentzVec {
	return LorentzVec{P: r3.Sub(v.P, o.P), E: v.E - o.E}
}

// M2 is the invariant mass squared.
func (v LorentzVec) M2() float64 {
	return v.E*v.E - r3.Norm2(v.P)
}

// M is the invariant mass. Space-like vectors return -sqrt(-M2) so that
// mass windows reject them instead of producing NaN.
func (v LorentzVec) M() float64 {
	m2 := v.M2()
	// E² and |p|² nearly cancel for massless vectors.
	if math.Abs(m2) < 1e-12*v.E*v.E {
		return 0
	}
	if m2 < 0 {
		return -math.Sqrt(-m2)
	}
	return math.Sqrt(m2)
}

// Phi is the azimuthal angle in (-π, π]; zero for vectors along the z axis.
func (v LorentzVec) Phi() float64 {
	if v.P.X == 0 && v.P.Y == 0 {
		return 0
	}
	return math.Atan2(v.P.Y, v.P.X)
}

// Theta is the polar angle in [0, π].
func (v LorentzVec) Theta() float64 {
	return math.Atan2(math.Hypot(v.P.X, v.P.Y), v.P.Z)
}

// Pt is the transverse momentum.
func (v LorentzVec) Pt() float64 {
	return math.Hypot(v.P.X, v.P.Y)
}

// BoostVector is the velocity p/E of the frame in which v is at rest.
func (v LorentzVec) BoostVector() r3.Vec {
	if v.E == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/v.E, v.P)
}

// Boost applies the Lorentz boost with velocity b (|b| < 1) to v.
func (v LorentzVec) Boost(b r3.Vec) LorentzVec {
	b2 := r3.Norm2(b)
	if b2 == 0 {
		return v
	}
	gamma := 1 / math.Sqrt(1-b2)
	bp := r3.Dot(b, v.P)
	g2 := (gamma - 1) / b2
	return LorentzVec{
		P: r3.Add(v.P, r3.Scale(g2*bp+gamma*v.E, b)),
		E: gamma * (v.E + bp),
	}
}

// Sum adds up the given four-vectors.
func Sum(vs ...LorentzVec) LorentzVec {
	var s LorentzVec
	for _, v := range vs {
		s = s.Add(v)
	}
	return s
}

// RadianToDegree converts radians to degrees.
func RadianToDegree(rad float64) float64 { return rad * 180 / math.Pi }

// DegreeToRadian converts degrees to radians.
func DegreeToRadian(deg float64) float64 { return deg * math.Pi / 180 }

// PhiMPiPi wraps an angle into [-π, π).
func PhiMPiPi(phi float64) float64 {
	phi = math.Mod(phi+math.Pi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return phi - math.Pi
}
