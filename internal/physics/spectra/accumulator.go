package spectra

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/banshee-data/combfit/internal/physics/combinatorics"
	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
	"github.com/banshee-data/combfit/internal/physics/kinfit"
	"github.com/banshee-data/combfit/internal/physics/promptrandom"
	"github.com/banshee-data/combfit/internal/physics/selector"
)

// Kind names one of the spectra kept per multiplicity.
type Kind uint8

const (
	RawIM   Kind = iota // invariant mass of all selected quanta, measured
	FitIM               // same, fitted
	RawPair             // every 2-quantum pair mass, measured
	FitPair             // same, fitted
	numKinds
)

func (k Kind) String() string {
	switch k {
	case RawIM:
		return "raw_n"
	case FitIM:
		return "fit_n"
	case RawPair:
		return "raw_2"
	case FitPair:
		return "fit_2"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type set struct {
	prompt [numKinds]*Histogram
	random [numKinds]*Histogram
}

// Accumulator fills spectra from selections. It implements the pipeline
// sink contract and is not safe for concurrent use.
type Accumulator struct {
	sw   *promptrandom.Switch
	bins int
	max  float64
	sets map[int]*set

	raw, fit []kinematics.LorentzVec
	prompt   int64
	random   int64
	outside  int64
}

// NewAccumulator returns spectra binned over [0, maxMeV).
func NewAccumulator(sw *promptrandom.Switch, bins int, maxMeV float64) (*Accumulator, error) {
	if sw == nil {
		return nil, fmt.Errorf("prompt/random switch is required")
	}
	if _, err := NewHistogram(bins, 0, maxMeV); err != nil {
		return nil, err
	}
	return &Accumulator{sw: sw, bins: bins, max: maxMeV, sets: make(map[int]*set)}, nil
}

func (a *Accumulator) set(n int) *set {
	s, ok := a.sets[n]
	if !ok {
		s = &set{}
		for k := range s.prompt {
			s.prompt[k], _ = NewHistogram(a.bins, 0, a.max)
			s.random[k], _ = NewHistogram(a.bins, 0, a.max)
		}
		a.sets[n] = s
	}
	return s
}

// Consume fills the spectra of sel's multiplicity. Hits outside both
// timing windows are counted and dropped.
func (a *Accumulator) Consume(ev *event.Event, hit event.TaggerHit, sel *selector.Selection) error {
	var hists *[numKinds]*Histogram
	switch a.sw.Classify(ev.RelativeTime(hit)) {
	case promptrandom.Prompt:
		a.prompt++
		hists = &a.set(sel.Multiplicity()).prompt
	case promptrandom.Random:
		a.random++
		hists = &a.set(sel.Multiplicity()).random
	default:
		a.outside++
		return nil
	}

	a.raw = a.raw[:0]
	a.fit = a.fit[:0]
	for i, c := range sel.Quanta {
		mass := 0.0
		if i < len(sel.FittedQuanta) && sel.FittedQuanta[i].Type != nil {
			mass = sel.FittedQuanta[i].Type.Mass
		}
		a.raw = append(a.raw, c.LorentzVec(mass))
	}
	for _, p := range sel.FittedQuanta {
		a.fit = append(a.fit, p.LorentzVec())
	}

	hists[RawIM].Fill(kinematics.Sum(a.raw...).M(), 1)
	hists[FitIM].Fill(kinfit.SumParticles(sel.FittedQuanta).M(), 1)
	for pair := range combinatorics.Subsets(a.raw, 2) {
		hists[RawPair].Fill(pair[0].Add(pair[1]).M(), 1)
	}
	for pair := range combinatorics.Subsets(a.fit, 2) {
		hists[FitPair].Fill(pair[0].Add(pair[1]).M(), 1)
	}
	return nil
}

// Multiplicities lists the multiplicities seen so far, ascending.
func (a *Accumulator) Multiplicities() []int {
	ns := make([]int, 0, len(a.sets))
	for n := range a.sets {
		ns = append(ns, n)
	}
	slices.Sort(ns)
	return ns
}

// Prompt returns the prompt-window spectrum, or nil if n was never filled.
func (a *Accumulator) Prompt(n int, k Kind) *Histogram {
	if s, ok := a.sets[n]; ok {
		return s.prompt[k]
	}
	return nil
}

// Random returns the random-window spectrum, or nil if n was never filled.
func (a *Accumulator) Random(n int, k Kind) *Histogram {
	if s, ok := a.sets[n]; ok {
		return s.random[k]
	}
	return nil
}

// Subtracted returns prompt - ratio * random as a new histogram, or nil if
// n was never filled. Its Entries is the prompt entry count.
func (a *Accumulator) Subtracted(n int, k Kind) (*Histogram, error) {
	s, ok := a.sets[n]
	if !ok {
		return nil, nil
	}
	out := s.prompt[k].Clone()
	if err := out.AddScaled(-a.sw.Ratio(), s.random[k]); err != nil {
		return nil, fmt.Errorf("subtract %s for n=%d: %w", k, n, err)
	}
	return out, nil
}

// Counts returns how many selections fell in the prompt, random and
// neither window.
func (a *Accumulator) Counts() (prompt, random, outside int64) {
	return a.prompt, a.random, a.outside
}

// Summary writes one line per multiplicity and kind.
func (a *Accumulator) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "n\tspectrum\tprompt\trandom\tsubtracted\tpeak_mev\tmean_mev\n")
	for _, n := range a.Multiplicities() {
		for k := Kind(0); k < numKinds; k++ {
			sub, err := a.Subtracted(n, k)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.1f\t%.1f\t%.1f\n", n, k,
				a.Prompt(n, k).Entries, a.Random(n, k).Entries, sub.Integral(), sub.Peak(), sub.Mean())
		}
	}
	return tw.Flush()
}
