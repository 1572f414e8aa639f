package selector

import "fmt"

// Stats counts what happened to every rotation tried by a Selector.
type Stats struct {
	Skipped             int64 // FindBest calls with a candidate count out of range
	Trials              int64
	RejectedCoplanarity int64
	RejectedMissingMass int64
	FitFailures         int64
	FitSuccesses        int64
	BelowCut            int64
	Selections          int64
	NoSelections        int64
}

// Add returns the element-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Skipped:             s.Skipped + o.Skipped,
		Trials:              s.Trials + o.Trials,
		RejectedCoplanarity: s.RejectedCoplanarity + o.RejectedCoplanarity,
		RejectedMissingMass: s.RejectedMissingMass + o.RejectedMissingMass,
		FitFailures:         s.FitFailures + o.FitFailures,
		FitSuccesses:        s.FitSuccesses + o.FitSuccesses,
		BelowCut:            s.BelowCut + o.BelowCut,
		Selections:          s.Selections + o.Selections,
		NoSelections:        s.NoSelections + o.NoSelections,
	}
}

// Sub returns s minus o, for turning two snapshots into a delta.
func (s Stats) Sub(o Stats) Stats {
	return Stats{
		Skipped:             s.Skipped - o.Skipped,
		Trials:              s.Trials - o.Trials,
		RejectedCoplanarity: s.RejectedCoplanarity - o.RejectedCoplanarity,
		RejectedMissingMass: s.RejectedMissingMass - o.RejectedMissingMass,
		FitFailures:         s.FitFailures - o.FitFailures,
		FitSuccesses:        s.FitSuccesses - o.FitSuccesses,
		BelowCut:            s.BelowCut - o.BelowCut,
		Selections:          s.Selections - o.Selections,
		NoSelections:        s.NoSelections - o.NoSelections,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("trials=%d copl_rej=%d mm_rej=%d fit_fail=%d fit_ok=%d below_cut=%d selected=%d none=%d skipped=%d",
		s.Trials, s.RejectedCoplanarity, s.RejectedMissingMass, s.FitFailures, s.FitSuccesses,
		s.BelowCut, s.Selections, s.NoSelections, s.Skipped)
}
