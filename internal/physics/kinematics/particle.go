package kinematics

import (
	"fmt"
	"strings"
)

// ParticleType is an entry of the particle database.
type ParticleType struct {
	Name    string
	Mass    float64 // MeV
	Charged bool
}

// Window returns the mass interval of the given total width centred on the
// nominal mass.
func (p *ParticleType) Window(width float64) Interval {
	return CenterWidth(p.Mass, width)
}

func (p *ParticleType) String() string { return p.Name }

var (
	Photon   = &ParticleType{Name: "Photon", Mass: 0}
	Proton   = &ParticleType{Name: "Proton", Mass: 938.272, Charged: true}
	Neutron  = &ParticleType{Name: "Neutron", Mass: 939.565}
	Pi0      = &ParticleType{Name: "Pi0", Mass: 134.977}
	Eta      = &ParticleType{Name: "Eta", Mass: 547.862}
	Omega    = &ParticleType{Name: "Omega", Mass: 782.65}
	EtaPrime = &ParticleType{Name: "EtaPrime", Mass: 957.78}
)

var particlesByName = map[string]*ParticleType{}

func init() {
	for _, p := range []*ParticleType{Photon, Proton, Neutron, Pi0, Eta, Omega, EtaPrime} {
		particlesByName[strings.ToLower(p.Name)] = p
	}
}

// LookupParticle finds a particle type by case-insensitive name.
func LookupParticle(name string) (*ParticleType, error) {
	p, ok := particlesByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown particle type %q", name)
	}
	return p, nil
}
