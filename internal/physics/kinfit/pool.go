package kinfit

import "fmt"

// Pool holds one Fitter per supported multiplicity. Fitters are built once
// and reused for every trial; a Pool is not safe for concurrent use, so
// parallel workers each own a Pool.
type Pool struct {
	min, max int
	fitters  []*Fitter
}

// NewPool builds fitters for every multiplicity in [minQuanta, maxQuanta].
func NewPool(minQuanta, maxQuanta int, model UncertaintyModel, s Settings) (*Pool, error) {
	if minQuanta < 1 {
		return nil, fmt.Errorf("min quanta must be at least 1, got %d", minQuanta)
	}
	if maxQuanta < minQuanta {
		return nil, fmt.Errorf("max quanta %d below min quanta %d", maxQuanta, minQuanta)
	}
	p := &Pool{min: minQuanta, max: maxQuanta}
	for n := minQuanta; n <= maxQuanta; n++ {
		f, err := NewFitter(fmt.Sprintf("kinfit_%dg", n), n, model, s)
		if err != nil {
			return nil, err
		}
		p.fitters = append(p.fitters, f)
	}
	return p, nil
}

// Range returns the smallest and largest supported multiplicity.
func (p *Pool) Range() (lo, hi int) { return p.min, p.max }

// Supports reports whether a fitter exists for n quanta.
func (p *Pool) Supports(n int) bool { return n >= p.min && n <= p.max }

// Fitter returns the engine for n quanta, or nil.
func (p *Pool) Fitter(n int) *Fitter {
	if !p.Supports(n) {
		return nil
	}
	return p.fitters[n-p.min]
}

// Evaluate routes t to the fitter matching its quanta count. Unsupported
// counts come back as StatusUnsupported.
func (p *Pool) Evaluate(t Trial) Outcome {
	f := p.Fitter(len(t.Quanta))
	if f == nil {
		return failed(StatusUnsupported, 0)
	}
	return f.Evaluate(t)
}
