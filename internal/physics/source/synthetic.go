package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
	"github.com/banshee-data/combfit/internal/physics/kinfit"
)

// Decay is a node of a decay tree. Leaves are stable particles that reach
// the detector.
type Decay struct {
	Particle *kinematics.ParticleType
	Products []*Decay
}

func stable(t *kinematics.ParticleType) *Decay { return &Decay{Particle: t} }

// Common decay trees.
var (
	Pi0ToGG     = &Decay{Particle: kinematics.Pi0, Products: []*Decay{stable(kinematics.Photon), stable(kinematics.Photon)}}
	EtaToGG     = &Decay{Particle: kinematics.Eta, Products: []*Decay{stable(kinematics.Photon), stable(kinematics.Photon)}}
	OmegaToPi0G = &Decay{Particle: kinematics.Omega, Products: []*Decay{Pi0ToGG, stable(kinematics.Photon)}}
	EtaTo3Pi0   = &Decay{Particle: kinematics.Eta, Products: []*Decay{Pi0ToGG, Pi0ToGG, Pi0ToGG}}
)

// Photons counts the stable photons at the leaves of d.
func (d *Decay) Photons() int {
	if len(d.Products) == 0 {
		if d.Particle == kinematics.Photon {
			return 1
		}
		return 0
	}
	n := 0
	for _, p := range d.Products {
		n += p.Photons()
	}
	return n
}

// Channel is one γp → pX final state with a relative weight.
type Channel struct {
	Name   string
	Decay  *Decay
	Weight float64
}

// DefaultChannels is a π0-dominated mixture. η → 3π0 gives six photons and
// falls outside the default multiplicity range.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: "pi0", Decay: Pi0ToGG, Weight: 3},
		{Name: "eta_2g", Decay: EtaToGG, Weight: 1},
		{Name: "omega", Decay: OmegaToPi0G, Weight: 1},
		{Name: "eta_3pi0", Decay: EtaTo3Pi0, Weight: 0.5},
	}
}

// SyntheticConfig configures the generator.
type SyntheticConfig struct {
	Events   int // <= 0 for unlimited
	Seed     uint64
	BeamMin  float64 // MeV
	BeamMax  float64 // MeV
	Channels []Channel

	// Model smears the generated candidates; nil leaves them exact.
	Model kinfit.UncertaintyModel

	PromptSigma    float64 // ns
	AccidentalRate float64 // mean number of extra tagger hits per event
	TaggerChannels int
}

// DefaultSyntheticConfig generates n smeared events between 1150 and
// 1450 MeV.
func DefaultSyntheticConfig(n int) SyntheticConfig {
	return SyntheticConfig{
		Events:         n,
		Seed:           1,
		BeamMin:        1150,
		BeamMax:        1450,
		Channels:       DefaultChannels(),
		Model:          kinfit.DefaultModel(),
		PromptSigma:    0.8,
		AccidentalRate: 0.3,
		TaggerChannels: 352,
	}
}

// Truth describes how the last generated event was made.
type Truth struct {
	Channel     string
	BeamEnergy  float64
	RecoilIndex int // index of the recoil in Event.Candidates
}

// TAPS covers polar angles below this, the CB the rest.
var tapsMaxTheta = kinematics.DegreeToRadian(20)

// Synthetic generates γp → pX events with X decaying to photons through a
// decay tree.
type Synthetic struct {
	cfg   SyntheticConfig
	src   rand.Source
	rng   *rand.Rand
	norm  distuv.Normal
	total float64
	n     int
	truth Truth
}

// NewSynthetic validates cfg and returns a generator.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if !(cfg.BeamMax > cfg.BeamMin) || cfg.BeamMin <= 0 {
		return nil, fmt.Errorf("beam range [%g, %g] is empty", cfg.BeamMin, cfg.BeamMax)
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	total := 0.0
	for _, c := range cfg.Channels {
		if c.Decay == nil || c.Weight < 0 {
			return nil, fmt.Errorf("channel %q: needs a decay and a non-negative weight", c.Name)
		}
		if threshold(c.Decay.Particle) >= cfg.BeamMax {
			return nil, fmt.Errorf("channel %q: threshold %.1f MeV above beam range", c.Name, threshold(c.Decay.Particle))
		}
		total += c.Weight
	}
	if total <= 0 {
		return nil, errors.New("channel weights sum to zero")
	}
	if cfg.TaggerChannels <= 0 {
		cfg.TaggerChannels = 1
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	return &Synthetic{
		cfg:   cfg,
		src:   src,
		rng:   rand.New(src),
		norm:  distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		total: total,
	}, nil
}

// threshold is the beam energy needed to produce p + m on a proton target.
func threshold(m *kinematics.ParticleType) float64 {
	mp := kinematics.Proton.Mass
	s := (mp + m.Mass) * (mp + m.Mass)
	return (s - mp*mp) / (2 * mp)
}

// Truth returns how the last event was generated.
func (s *Synthetic) Truth() Truth { return s.truth }

// Next implements Source.
func (s *Synthetic) Next(ctx context.Context) (*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.cfg.Events > 0 && s.n >= s.cfg.Events {
		return nil, io.EOF
	}
	s.n++
	return s.generate(int64(s.n)), nil
}

func (s *Synthetic) pickChannel() Channel {
	x := s.rng.Float64() * s.total
	for _, c := range s.cfg.Channels {
		if x < c.Weight {
			return c
		}
		x -= c.Weight
	}
	return s.cfg.Channels[len(s.cfg.Channels)-1]
}

func (s *Synthetic) generate(id int64) *event.Event {
	ch := s.pickChannel()
	lo := math.Max(s.cfg.BeamMin, threshold(ch.Decay.Particle)+1)
	beamE := distuv.Uniform{Min: lo, Max: s.cfg.BeamMax, Src: s.src}.Rand()

	initial := kinematics.LorentzVec{P: r3.Vec{Z: beamE}, E: beamE + kinematics.Proton.Mass}
	prod := s.phaseSpace(initial, []float64{kinematics.Proton.Mass, ch.Decay.Particle.Mass})

	type final struct {
		t *kinematics.ParticleType
		v kinematics.LorentzVec
	}
	finals := []final{{kinematics.Proton, prod[0]}}
	var walk func(d *Decay, v kinematics.LorentzVec)
	walk = func(d *Decay, v kinematics.LorentzVec) {
		if len(d.Products) == 0 {
			finals = append(finals, final{d.Particle, v})
			return
		}
		masses := make([]float64, len(d.Products))
		for i, p := range d.Products {
			masses[i] = p.Particle.Mass
		}
		for i, pv := range s.phaseSpace(v, masses) {
			walk(d.Products[i], pv)
		}
	}
	walk(ch.Decay, prod[1])

	ev := &event.Event{ID: id}
	for _, f := range finals {
		ev.Candidates = append(ev.Candidates, s.detect(f.t, f.v))
	}
	recoil := ev.Candidates[0]
	s.rng.Shuffle(len(ev.Candidates), func(i, j int) {
		ev.Candidates[i], ev.Candidates[j] = ev.Candidates[j], ev.Candidates[i]
	})
	s.truth = Truth{Channel: ch.Name, BeamEnergy: beamE}
	for i, c := range ev.Candidates {
		if c == recoil {
			s.truth.RecoilIndex = i
		}
	}

	ev.TaggerHits = append(ev.TaggerHits, event.TaggerHit{
		Channel:      s.taggerChannel(beamE),
		PhotonEnergy: beamE,
		Time:         s.cfg.PromptSigma * s.norm.Rand(),
	})
	if s.cfg.AccidentalRate > 0 {
		n := int(distuv.Poisson{Lambda: s.cfg.AccidentalRate, Src: s.src}.Rand())
		for range n {
			e := distuv.Uniform{Min: s.cfg.BeamMin, Max: s.cfg.BeamMax, Src: s.src}.Rand()
			ev.TaggerHits = append(ev.TaggerHits, event.TaggerHit{
				Channel:      s.taggerChannel(e),
				PhotonEnergy: e,
				Time:         distuv.Uniform{Min: -40, Max: 40, Src: s.src}.Rand(),
			})
		}
	}
	return ev
}

func (s *Synthetic) taggerChannel(e float64) int {
	f := (s.cfg.BeamMax - e) / (s.cfg.BeamMax - s.cfg.BeamMin)
	ch := int(f * float64(s.cfg.TaggerChannels))
	return min(max(ch, 0), s.cfg.TaggerChannels-1)
}

// detect turns a final-state particle into a (possibly smeared) candidate.
func (s *Synthetic) detect(t *kinematics.ParticleType, v kinematics.LorentzVec) *event.Candidate {
	c := &event.Candidate{
		Ek:    v.E - t.Mass,
		Theta: v.Theta(),
		Phi:   v.Phi(),
		Time:  s.norm.Rand(),
	}
	c.Detector = event.DetectorCB
	if c.Theta < tapsMaxTheta {
		c.Detector = event.DetectorTAPS
	}
	if t.Charged {
		c.VetoEnergy = 1.5 + 0.5*s.rng.Float64()
	}
	if s.cfg.Model != nil {
		u := s.cfg.Model.Uncertainties(t, c)
		c.Ek = math.Max(c.Ek+u.SigmaEk*s.norm.Rand(), 0.1)
		c.Theta = math.Min(math.Max(c.Theta+u.SigmaTheta*s.norm.Rand(), 0), math.Pi)
		c.Phi = kinematics.PhiMPiPi(c.Phi + u.SigmaPhi*s.norm.Rand())
	}
	c.ClusterSize = 1 + int(c.Ek/50)
	return c
}

// phaseSpace splits parent into len(masses) on-shell products distributed
// uniformly in phase space, by sequential two-body splits with
// accept/reject on the phase-space weight.
func (s *Synthetic) phaseSpace(parent kinematics.LorentzVec, masses []float64) []kinematics.LorentzVec {
	n := len(masses)
	mParent := parent.M()
	sumM := 0.0
	for _, m := range masses {
		sumM += m
	}
	tecm := mParent - sumM

	// Intermediate invariant masses M[i] of the subsystem 0..i.
	inter := make([]float64, n)
	r := make([]float64, n)
	wmax := 1.0
	emmin, emmax := 0.0, tecm+masses[0]
	for i := 1; i < n; i++ {
		emmin += masses[i-1]
		emmax += masses[i]
		wmax *= pdk(emmax, emmin, masses[i])
	}
	for {
		r[0] = 0
		for i := 1; i < n-1; i++ {
			r[i] = s.rng.Float64()
		}
		r[n-1] = 1
		slices.Sort(r[1 : n-1])
		acc := 0.0
		w := 1.0
		for i := 0; i < n; i++ {
			acc += masses[i]
			inter[i] = r[i]*tecm + acc
			if i > 0 {
				w *= pdk(inter[i], inter[i-1], masses[i])
			}
		}
		if n == 2 || w >= s.rng.Float64()*wmax {
			break
		}
	}

	out := make([]kinematics.LorentzVec, n)
	p := pdk(inter[1], inter[0], masses[1])
	d := s.isotropic()
	out[0] = kinematics.NewLorentzVec(r3.Scale(-p, d), masses[0])
	out[1] = kinematics.NewLorentzVec(r3.Scale(p, d), masses[1])
	for i := 2; i < n; i++ {
		p = pdk(inter[i], inter[i-1], masses[i])
		d = s.isotropic()
		sub := kinematics.NewLorentzVec(r3.Scale(-p, d), inter[i-1])
		b := sub.BoostVector()
		for j := 0; j < i; j++ {
			out[j] = out[j].Boost(b)
		}
		out[i] = kinematics.NewLorentzVec(r3.Scale(p, d), masses[i])
	}
	b := parent.BoostVector()
	for i := range out {
		out[i] = out[i].Boost(b)
	}
	return out
}

func (s *Synthetic) isotropic() r3.Vec {
	cosTheta := 2*s.rng.Float64() - 1
	return kinematics.Direction(math.Acos(cosTheta), 2*math.Pi*s.rng.Float64())
}

// pdk is the momentum of either daughter when a decays to b and c.
func pdk(a, b, c float64) float64 {
	x := (a*a - (b+c)*(b+c)) * (a*a - (b-c)*(b-c))
	if x <= 0 {
		return 0
	}
	return math.Sqrt(x) / (2 * a)
}
