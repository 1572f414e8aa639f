// Package promptrandom classifies tagger hits by their time relative to the
// trigger and weights them so that accidental coincidences cancel when
// prompt and random contributions are summed.
package promptrandom

import (
	"fmt"

	"github.com/banshee-data/combfit/internal/config"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

// Window says which timing window a hit fell into.
type Window uint8

const (
	Outside Window = iota
	Prompt
	Random
)

func (w Window) String() string {
	switch w {
	case Prompt:
		return "prompt"
	case Random:
		return "random"
	}
	return "outside"
}

// Switch holds one prompt window and any number of random windows, in ns.
type Switch struct {
	prompt  kinematics.Interval
	randoms []kinematics.Interval
	ratio   float64
}

// New validates the windows and precomputes the prompt/random ratio.
// Random windows must not overlap the prompt window or each other.
func New(prompt kinematics.Interval, randoms ...kinematics.Interval) (*Switch, error) {
	if !prompt.IsSane() || prompt.Width() <= 0 {
		return nil, fmt.Errorf("prompt window %v must have positive width", prompt)
	}
	if len(randoms) == 0 {
		return nil, fmt.Errorf("at least one random window is required")
	}
	total := 0.0
	for i, r := range randoms {
		if !r.IsSane() || r.Width() <= 0 {
			return nil, fmt.Errorf("random window %v must have positive width", r)
		}
		if !r.Disjoint(prompt) {
			return nil, fmt.Errorf("random window %v overlaps prompt window %v", r, prompt)
		}
		for _, o := range randoms[:i] {
			if !r.Disjoint(o) {
				return nil, fmt.Errorf("random windows %v and %v overlap", o, r)
			}
		}
		total += r.Width()
	}
	return &Switch{
		prompt:  prompt,
		randoms: append([]kinematics.Interval(nil), randoms...),
		ratio:   prompt.Width() / total,
	}, nil
}

// Default returns prompt [-3,2] ns with randoms [-35,-10] and [10,35] ns.
func Default() *Switch {
	s, err := New(kinematics.Interval{Start: -3, Stop: 2},
		kinematics.Interval{Start: -35, Stop: -10},
		kinematics.Interval{Start: 10, Stop: 35})
	if err != nil {
		panic(err)
	}
	return s
}

// FromTuning builds a Switch from the configured timing windows.
func FromTuning(cfg *config.TuningConfig) (*Switch, error) {
	p := cfg.GetPromptRange()
	var randoms []kinematics.Interval
	for _, r := range cfg.GetRandomRanges() {
		randoms = append(randoms, kinematics.Interval{Start: r[0], Stop: r[1]})
	}
	return New(kinematics.Interval{Start: p[0], Stop: p[1]}, randoms...)
}

// Ratio is the prompt width over the summed random width.
func (s *Switch) Ratio() float64 { return s.ratio }

// Prompt returns the prompt window.
func (s *Switch) Prompt() kinematics.Interval { return s.prompt }

// Randoms returns a copy of the random windows.
func (s *Switch) Randoms() []kinematics.Interval {
	return append([]kinematics.Interval(nil), s.randoms...)
}

// Classify returns the window containing t.
func (s *Switch) Classify(t float64) Window {
	if s.prompt.Contains(t) {
		return Prompt
	}
	for _, r := range s.randoms {
		if r.Contains(t) {
			return Random
		}
	}
	return Outside
}

// Weight is +1 for prompt hits, -Ratio for random hits and 0 otherwise.
func (s *Switch) Weight(t float64) float64 {
	switch s.Classify(t) {
	case Prompt:
		return 1
	case Random:
		return -s.ratio
	}
	return 0
}
