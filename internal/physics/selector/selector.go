package selector

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/combfit/internal/config"
	"github.com/banshee-data/combfit/internal/physics/combinatorics"
	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
	"github.com/banshee-data/combfit/internal/physics/kinfit"
	"github.com/banshee-data/combfit/internal/physics/prefilter"
)

// ErrNoEngine is returned by New when the evaluator cannot fit one of the
// configured multiplicities.
var ErrNoEngine = errors.New("no fit engine for multiplicity")

// Config holds selector parameters.
type Config struct {
	MinQuanta int
	MaxQuanta int
	Recoil    *kinematics.ParticleType
	Quantum   *kinematics.ParticleType
	Prefilter prefilter.Config

	// The probability floor is off unless ProbabilityCutEnabled is set.
	ProbabilityCutEnabled bool
	ProbabilityCut        float64
}

// DefaultConfig selects p + 2..5 photons with the default pre-filter and no
// probability floor.
func DefaultConfig() Config {
	return Config{
		MinQuanta:      2,
		MaxQuanta:      5,
		Recoil:         kinematics.Proton,
		Quantum:        kinematics.Photon,
		Prefilter:      prefilter.DefaultConfig(),
		ProbabilityCut: 0.01,
	}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	recoil, err := kinematics.LookupParticle(cfg.GetRecoilParticle())
	if err != nil {
		return Config{}, fmt.Errorf("recoil particle: %w", err)
	}
	quantum, err := kinematics.LookupParticle(cfg.GetQuantumParticle())
	if err != nil {
		return Config{}, fmt.Errorf("quantum particle: %w", err)
	}
	return Config{
		MinQuanta: cfg.GetMinQuanta(),
		MaxQuanta: cfg.GetMaxQuanta(),
		Recoil:    recoil,
		Quantum:   quantum,
		Prefilter: prefilter.NewConfig(
			cfg.GetCoplanarityWindowDeg(),
			cfg.GetMissingMassWindowMeV(),
			recoil,
			kinematics.Proton.Mass,
		),
		ProbabilityCutEnabled: cfg.GetProbabilityCutEnabled(),
		ProbabilityCut:        cfg.GetProbabilityCut(),
	}, nil
}

// Validate checks the multiplicity range, particle types and windows.
func (c Config) Validate() error {
	if c.MinQuanta < 1 {
		return fmt.Errorf("min quanta must be at least 1, got %d", c.MinQuanta)
	}
	if c.MaxQuanta < c.MinQuanta {
		return fmt.Errorf("max quanta %d below min quanta %d", c.MaxQuanta, c.MinQuanta)
	}
	if c.Recoil == nil || c.Quantum == nil {
		return errors.New("recoil and quantum particle types are required")
	}
	if c.ProbabilityCut < 0 || c.ProbabilityCut > 1 {
		return fmt.Errorf("probability cut must be in [0,1], got %g", c.ProbabilityCut)
	}
	return c.Prefilter.Validate()
}

// Selection is the winning assignment for one (event, tagger hit).
type Selection struct {
	Rotation     int                // winning rotation index
	Order        []*event.Candidate // winning order, recoil last
	Recoil       *event.Candidate
	Quanta       []*event.Candidate
	FittedRecoil kinfit.Particle
	FittedQuanta []kinfit.Particle
	Probability  float64
	Outcome      kinfit.Outcome
	Prefilter    prefilter.Result
}

// Multiplicity is the number of selected quanta.
func (s *Selection) Multiplicity() int { return len(s.Quanta) }

// Selector runs the rotation search. It owns its enumerator and scratch
// buffers and, through the evaluator, stateful fit engines, so it is not
// safe for concurrent use. Parallel workers each need their own Selector.
type Selector struct {
	cfg    Config
	filter *prefilter.Filter
	fits   kinfit.Evaluator
	rot    *combinatorics.Rotation[*event.Candidate]
	quanta []event.Hypothesis
	stats  Stats
}

// New validates cfg and checks that fits supports every multiplicity in
// [MinQuanta, MaxQuanta].
func New(cfg Config, fits kinfit.Evaluator) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("selector config: %w", err)
	}
	if fits == nil {
		return nil, fmt.Errorf("%w: nil evaluator", ErrNoEngine)
	}
	for n := cfg.MinQuanta; n <= cfg.MaxQuanta; n++ {
		if !fits.Supports(n) {
			return nil, fmt.Errorf("%w: %d", ErrNoEngine, n)
		}
	}
	return &Selector{
		cfg:    cfg,
		filter: prefilter.New(cfg.Prefilter),
		fits:   fits,
		rot:    combinatorics.NewRotation[*event.Candidate](nil),
		quanta: make([]event.Hypothesis, 0, cfg.MaxQuanta),
	}, nil
}

// Config returns the selector's configuration.
func (s *Selector) Config() Config { return s.cfg }

// Accepts reports whether an event with n candidates can be searched:
// one recoil plus between MinQuanta and MaxQuanta quanta.
func (s *Selector) Accepts(n int) bool {
	return n >= s.cfg.MinQuanta+1 && n <= s.cfg.MaxQuanta+1
}

// CurrentOrder returns the enumerator's current candidate order. After a
// successful FindBest it is the winning order.
func (s *Selector) CurrentOrder() []*event.Candidate {
	return s.rot.AppendOrder(nil)
}

// FindBest tries every rotation of cands against hit and returns the one
// with the highest fit probability. ok is false when cands has the wrong
// size or no rotation both passes the pre-filter and fits.
func (s *Selector) FindBest(hit event.TaggerHit, cands []*event.Candidate) (sel *Selection, ok bool) {
	n := len(cands)
	if !s.Accepts(n) {
		s.stats.Skipped++
		return nil, false
	}

	s.rot.Load(cands)
	best := math.Inf(-1)
	bestIdx := -1
	var bestOut kinfit.Outcome
	var bestPre prefilter.Result

	for k := range s.rot.All() {
		s.stats.Trials++
		recoil := event.Recoil(s.cfg.Recoil, s.rot.Last())
		s.quanta = s.quanta[:0]
		for j := 0; j < n-1; j++ {
			s.quanta = append(s.quanta, event.Quantum(s.cfg.Quantum, s.rot.At(j)))
		}

		pre := s.filter.Check(hit, recoil, s.quanta)
		switch pre.Verdict {
		case prefilter.RejectCoplanarity:
			s.stats.RejectedCoplanarity++
			continue
		case prefilter.RejectMissingMass:
			s.stats.RejectedMissingMass++
			continue
		}

		out := s.fits.Evaluate(kinfit.Trial{BeamEnergy: hit.PhotonEnergy, Recoil: recoil, Quanta: s.quanta})
		if !out.Success() {
			s.stats.FitFailures++
			continue
		}
		s.stats.FitSuccesses++
		if s.cfg.ProbabilityCutEnabled && out.Probability < s.cfg.ProbabilityCut {
			s.stats.BelowCut++
			continue
		}
		if out.Probability > best {
			best = out.Probability
			bestIdx = k
			bestOut = out
			bestPre = pre
		}
	}

	if bestIdx < 0 {
		s.stats.NoSelections++
		return nil, false
	}

	s.rot.Restore(bestIdx)
	s.stats.Selections++
	return &Selection{
		Rotation:     bestIdx,
		Order:        s.rot.AppendOrder(make([]*event.Candidate, 0, n)),
		Recoil:       s.rot.Last(),
		Quanta:       s.rot.AppendLeading(make([]*event.Candidate, 0, n-1)),
		FittedRecoil: bestOut.Recoil,
		FittedQuanta: bestOut.Quanta,
		Probability:  best,
		Outcome:      bestOut,
		Prefilter:    bestPre,
	}, true
}

// Stats returns a copy of the selector's counters.
func (s *Selector) Stats() Stats { return s.stats }

// ResetStats zeroes the counters.
func (s *Selector) ResetStats() { s.stats = Stats{} }
