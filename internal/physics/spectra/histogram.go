// Package spectra accumulates invariant-mass spectra of selected events,
// split into prompt and random timing windows so accidental background can
// be subtracted.
package spectra

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram is a fixed-width weighted 1D histogram over [Min, Max).
type Histogram struct {
	Min, Max  float64
	Weights   []float64
	Entries   int64
	Underflow float64
	Overflow  float64
}

// NewHistogram returns an empty histogram with bins equal-width bins.
func NewHistogram(bins int, min, max float64) (*Histogram, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("histogram needs at least one bin, got %d", bins)
	}
	if !(max > min) {
		return nil, fmt.Errorf("histogram range [%g, %g) is empty", min, max)
	}
	return &Histogram{Min: min, Max: max, Weights: make([]float64, bins)}, nil
}

// BinWidth is the width of one bin.
func (h *Histogram) BinWidth() float64 { return (h.Max - h.Min) / float64(len(h.Weights)) }

// Bin returns the bin index of x, -1 below range and len(Weights) above.
func (h *Histogram) Bin(x float64) int {
	if x < h.Min {
		return -1
	}
	if x >= h.Max {
		return len(h.Weights)
	}
	i := int((x - h.Min) / h.BinWidth())
	if i >= len(h.Weights) {
		i = len(h.Weights) - 1
	}
	return i
}

// Center returns the centre of bin i.
func (h *Histogram) Center(i int) float64 { return h.Min + (float64(i)+0.5)*h.BinWidth() }

// Fill adds weight w at x. NaN values are dropped.
func (h *Histogram) Fill(x, w float64) {
	if math.IsNaN(x) {
		return
	}
	h.Entries++
	switch i := h.Bin(x); {
	case i < 0:
		h.Underflow += w
	case i >= len(h.Weights):
		h.Overflow += w
	default:
		h.Weights[i] += w
	}
}

// Integral is the summed in-range weight.
func (h *Histogram) Integral() float64 { return floats.Sum(h.Weights) }

// Peak returns the centre of the highest bin.
func (h *Histogram) Peak() float64 { return h.Center(floats.MaxIdx(h.Weights)) }

// Mean is the weighted mean of the bin centres. Bins with negative weight,
// which subtraction can produce, are ignored.
func (h *Histogram) Mean() float64 {
	centers := make([]float64, len(h.Weights))
	w := make([]float64, len(h.Weights))
	for i, v := range h.Weights {
		centers[i] = h.Center(i)
		w[i] = math.Max(v, 0)
	}
	if floats.Sum(w) == 0 {
		return math.NaN()
	}
	return stat.Mean(centers, w)
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	c := *h
	c.Weights = append([]float64(nil), h.Weights...)
	return &c
}

// AddScaled adds alpha times o to h. Both must have the same binning.
// Entries counts Fill calls only and is left unchanged.
func (h *Histogram) AddScaled(alpha float64, o *Histogram) error {
	if len(h.Weights) != len(o.Weights) || h.Min != o.Min || h.Max != o.Max {
		return fmt.Errorf("binning mismatch: %d[%g,%g) vs %d[%g,%g)",
			len(h.Weights), h.Min, h.Max, len(o.Weights), o.Min, o.Max)
	}
	floats.AddScaled(h.Weights, alpha, o.Weights)
	h.Underflow += alpha * o.Underflow
	h.Overflow += alpha * o.Overflow
	return nil
}
