package kinematics

import "fmt"

// Interval is a closed range [Start, Stop].
type Interval struct {
	Start float64
	Stop  float64
}

// CenterWidth returns the interval of the given width centred on c.
func CenterWidth(c, width float64) Interval {
	return Interval{Start: c - width/2, Stop: c + width/2}
}

// Symmetric returns [-half, +half].
func Symmetric(half float64) Interval {
	return Interval{Start: -half, Stop: half}
}

// Contains reports whether x lies inside the interval. NaN is never contained.
func (i Interval) Contains(x float64) bool {
	return x >= i.Start && x <= i.Stop
}

// Width is Stop - Start.
func (i Interval) Width() float64 { return i.Stop - i.Start }

// Center is the midpoint.
func (i Interval) Center() float64 { return (i.Start + i.Stop) / 2 }

// IsSane reports whether Start <= Stop.
func (i Interval) IsSane() bool { return i.Start <= i.Stop }

// Disjoint reports whether the intervals do not overlap.
func (i Interval) Disjoint(o Interval) bool {
	return i.Stop < o.Start || o.Stop < i.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("[%g, %g]", i.Start, i.Stop)
}
