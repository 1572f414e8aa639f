package monitoring

import (
	"sync"
	"time"

	"github.com/banshee-data/combfit/internal/timeutil"
)

// Progress reports throughput at most once per interval. It is safe for
// concurrent use.
type Progress struct {
	mu       sync.Mutex
	interval time.Duration
	clock    timeutil.Clock
	start    time.Time
	last     time.Time
	lastN    int64
	total    int64 // expected events, 0 when unknown
}

// NewProgress returns a reporter. An interval of zero or less disables
// periodic reports; Done still logs the final line.
func NewProgress(interval time.Duration, total int64) *Progress {
	return NewProgressWithClock(interval, total, timeutil.RealClock{})
}

// NewProgressWithClock is NewProgress driven by clock.
func NewProgressWithClock(interval time.Duration, total int64, clock timeutil.Clock) *Progress {
	t := clock.Now()
	return &Progress{interval: interval, clock: clock, start: t, last: t, total: total}
}

// Update records that n events have been processed in total and logs a
// progress line if the interval has elapsed. It reports whether it logged.
func (p *Progress) Update(n int64, selections int64) bool {
	if p.interval <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.clock.Now()
	dt := t.Sub(p.last)
	if dt < p.interval {
		return false
	}
	rate := float64(n-p.lastN) / dt.Seconds()
	if p.total > 0 {
		Logf("progress: %d/%d events (%.1f%%) %d selections, %.0f events/s",
			n, p.total, 100*float64(n)/float64(p.total), selections, rate)
	} else {
		Logf("progress: %d events, %d selections, %.0f events/s", n, selections, rate)
	}
	p.last = t
	p.lastN = n
	return true
}

// Done logs the final totals and returns the elapsed time.
func (p *Progress) Done(n int64, selections int64) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.clock.Since(p.start)
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(n) / s
	}
	Logf("done: %d events, %d selections in %s (%.0f events/s)",
		n, selections, elapsed.Round(time.Millisecond), rate)
	return elapsed
}
