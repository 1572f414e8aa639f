package promptrandom

import (
	"math"
	"testing"

	"github.com/banshee-data/combfit/internal/config"
	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

func TestDefault(t *testing.T) {
	s := Default()
	if got := s.Ratio(); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("Ratio() = %v, want 0.1", got)
	}

	tests := []struct {
		time   float64
		window Window
		weight float64
	}{
		{0, Prompt, 1},
		{-3, Prompt, 1},
		{2, Prompt, 1},
		{2.5, Outside, 0},
		{-20, Random, -0.1},
		{35, Random, -0.1},
		{-50, Outside, 0},
		{math.NaN(), Outside, 0},
	}
	for _, tt := range tests {
		if got := s.Classify(tt.time); got != tt.window {
			t.Errorf("Classify(%v) = %v, want %v", tt.time, got, tt.window)
		}
		if got := s.Weight(tt.time); math.Abs(got-tt.weight) > 1e-12 {
			t.Errorf("Weight(%v) = %v, want %v", tt.time, got, tt.weight)
		}
	}
}

func TestUniformAccidentalsCancel(t *testing.T) {
	s := Default()
	// Hits spread uniformly in time sum to zero weight.
	sum := 0.0
	for i := 0; i < 80000; i++ {
		sum += s.Weight(-40 + (float64(i)+0.5)*0.001)
	}
	if math.Abs(sum) > 1 {
		t.Errorf("summed weight of uniform hits = %v, want ~0", sum)
	}
}

func TestNew_Errors(t *testing.T) {
	p := kinematics.Interval{Start: -3, Stop: 2}
	tests := []struct {
		name    string
		prompt  kinematics.Interval
		randoms []kinematics.Interval
	}{
		{"no randoms", p, nil},
		{"empty prompt", kinematics.Interval{Start: 1, Stop: 1}, []kinematics.Interval{{Start: 10, Stop: 20}}},
		{"overlap prompt", p, []kinematics.Interval{{Start: 0, Stop: 20}}},
		{"overlap each other", p, []kinematics.Interval{{Start: 10, Stop: 20}, {Start: 15, Stop: 30}}},
		{"inverted random", p, []kinematics.Interval{{Start: 20, Stop: 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.prompt, tt.randoms...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFromTuning(t *testing.T) {
	cfg := config.EmptyTuningConfig()
	cfg.PromptRange = []float64{-2, 2}
	cfg.RandomRanges = [][]float64{{10, 30}}

	s, err := FromTuning(cfg)
	if err != nil {
		t.Fatalf("FromTuning: %v", err)
	}
	if got := s.Ratio(); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("Ratio() = %v, want 0.2", got)
	}
	if len(s.Randoms()) != 1 {
		t.Errorf("got %d random windows, want 1", len(s.Randoms()))
	}
}
