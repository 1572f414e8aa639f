package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/combfit/internal/config"
	"github.com/banshee-data/combfit/internal/monitoring"
	"github.com/banshee-data/combfit/internal/physics"
	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinfit"
	"github.com/banshee-data/combfit/internal/physics/selector"
	"github.com/banshee-data/combfit/internal/physics/source"
)

// Sink consumes accepted selections.
type Sink interface {
	Consume(ev *event.Event, hit event.TaggerHit, sel *selector.Selection) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev *event.Event, hit event.TaggerHit, sel *selector.Selection) error

// Consume implements Sink.
func (f SinkFunc) Consume(ev *event.Event, hit event.TaggerHit, sel *selector.Selection) error {
	return f(ev, hit, sel)
}

// SelectorFactory builds a fresh selector with its own fit pool. It is
// called once per worker.
type SelectorFactory func() (*selector.Selector, error)

// FactoryFromTuning returns a SelectorFactory for the given configuration.
func FactoryFromTuning(cfg *config.TuningConfig) (SelectorFactory, error) {
	scfg, err := selector.ConfigFromTuning(cfg)
	if err != nil {
		return nil, err
	}
	if err := scfg.Validate(); err != nil {
		return nil, err
	}
	return func() (*selector.Selector, error) {
		pool, err := kinfit.PoolFromTuning(cfg)
		if err != nil {
			return nil, err
		}
		return selector.New(scfg, pool)
	}, nil
}

// Options controls a run.
type Options struct {
	MaxEvents        int64         // 0 for no limit
	Workers          int           // values below 1 mean 1
	ProgressInterval time.Duration // 0 disables periodic progress lines
	Metrics          *monitoring.Metrics
}

// RunStats summarises a run.
type RunStats struct {
	Events      int64
	Skipped     int64 // events with an out-of-range candidate count
	Hits        int64 // tagger hits searched
	Selections  int64
	Selector    selector.Stats
	Elapsed     time.Duration
	Interrupted bool
}

func (s RunStats) String() string {
	return fmt.Sprintf("events=%d skipped=%d hits=%d selections=%d %s",
		s.Events, s.Skipped, s.Hits, s.Selections, s.Selector)
}

// Runner is the event loop.
type Runner struct {
	src     source.Source
	factory SelectorFactory
	sinks   []Sink
	opts    Options

	sinkMu     sync.Mutex
	events     atomic.Int64
	skipped    atomic.Int64
	hits       atomic.Int64
	selections atomic.Int64
}

// NewRunner returns a runner reading src. factory must be non-nil.
func NewRunner(src source.Source, factory SelectorFactory, opts Options, sinks ...Sink) (*Runner, error) {
	if src == nil {
		return nil, errors.New("pipeline: nil source")
	}
	if factory == nil {
		return nil, errors.New("pipeline: nil selector factory")
	}
	if opts.MaxEvents < 0 {
		return nil, fmt.Errorf("pipeline: negative max events %d", opts.MaxEvents)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{src: src, factory: factory, sinks: sinks, opts: opts}, nil
}

// Run processes events until the source is exhausted, MaxEvents is reached
// or ctx is cancelled. Cancellation is not an error: the returned stats have
// Interrupted set. Source and sink errors stop the run and are returned with
// the stats gathered so far.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	r.events.Store(0)
	r.skipped.Store(0)
	r.hits.Store(0)
	r.selections.Store(0)

	progress := monitoring.NewProgress(r.opts.ProgressInterval, r.opts.MaxEvents)
	var (
		sel  selector.Stats
		err  error
		intr bool
	)
	if r.opts.Workers == 1 {
		sel, intr, err = r.runSerial(ctx, progress)
	} else {
		sel, intr, err = r.runParallel(ctx, progress)
	}

	stats := RunStats{
		Events:      r.events.Load(),
		Skipped:     r.skipped.Load(),
		Hits:        r.hits.Load(),
		Selections:  r.selections.Load(),
		Selector:    sel,
		Interrupted: intr,
	}
	stats.Elapsed = progress.Done(stats.Events, stats.Selections)
	if intr {
		physics.Opsf("run interrupted after %d events", stats.Events)
	}
	return stats, err
}

func (r *Runner) limitReached() bool {
	return r.opts.MaxEvents > 0 && r.events.Load() >= r.opts.MaxEvents
}

// next reads one event. done is true at the end of input or on
// cancellation; intr reports the latter.
func (r *Runner) next(ctx context.Context) (ev *event.Event, done, intr bool, err error) {
	if ctx.Err() != nil {
		return nil, true, true, nil
	}
	if r.limitReached() {
		return nil, true, false, nil
	}
	ev, err = r.src.Next(ctx)
	switch {
	case errors.Is(err, io.EOF):
		return nil, true, false, nil
	case err != nil && ctx.Err() != nil:
		return nil, true, true, nil
	case err != nil:
		return nil, true, false, fmt.Errorf("read event %d: %w", r.events.Load()+1, err)
	}
	r.events.Add(1)
	if m := r.opts.Metrics; m != nil {
		m.Events.Inc()
	}
	return ev, false, false, nil
}

func (r *Runner) runSerial(ctx context.Context, progress *monitoring.Progress) (selector.Stats, bool, error) {
	s, err := r.factory()
	if err != nil {
		return selector.Stats{}, false, fmt.Errorf("build selector: %w", err)
	}
	for {
		ev, done, intr, err := r.next(ctx)
		if done || err != nil {
			return s.Stats(), intr, err
		}
		if err := r.process(s, ev); err != nil {
			return s.Stats(), false, err
		}
		progress.Update(r.events.Load(), r.selections.Load())
	}
}

func (r *Runner) runParallel(ctx context.Context, progress *monitoring.Progress) (selector.Stats, bool, error) {
	selectors := make([]*selector.Selector, r.opts.Workers)
	for i := range selectors {
		s, err := r.factory()
		if err != nil {
			return selector.Stats{}, false, fmt.Errorf("build selector for worker %d: %w", i, err)
		}
		selectors[i] = s
	}

	g, gctx := errgroup.WithContext(ctx)
	events := make(chan *event.Event, r.opts.Workers)
	var intr bool

	g.Go(func() error {
		defer close(events)
		for {
			// Worker failures cancel gctx; only the caller's ctx counts as
			// an interrupt.
			ev, done, in, err := r.next(gctx)
			if done || err != nil {
				intr = in && ctx.Err() != nil
				return err
			}
			select {
			case events <- ev:
			case <-gctx.Done():
				intr = ctx.Err() != nil
				return nil
			}
		}
	})

	for _, s := range selectors {
		g.Go(func() error {
			for ev := range events {
				if err := r.process(s, ev); err != nil {
					return err
				}
				progress.Update(r.events.Load(), r.selections.Load())
			}
			return nil
		})
	}

	err := g.Wait()
	var total selector.Stats
	for _, s := range selectors {
		total = total.Add(s.Stats())
	}
	return total, intr, err
}

// process searches every tagger hit of ev and feeds selections to the sinks.
func (r *Runner) process(s *selector.Selector, ev *event.Event) error {
	m := r.opts.Metrics
	if !s.Accepts(len(ev.Candidates)) {
		r.skipped.Add(1)
		if m != nil {
			m.Skipped.Inc()
		}
		physics.Tracef("event %d: skipped, %d candidates", ev.ID, len(ev.Candidates))
		return nil
	}
	for _, hit := range ev.TaggerHits {
		r.hits.Add(1)
		before := s.Stats()
		best, ok := s.FindBest(hit, ev.Candidates)
		if m != nil {
			m.Hits.Inc()
			m.ObserveStats(s.Stats().Sub(before))
		}
		if !ok {
			continue
		}
		r.selections.Add(1)
		m.ObserveSelection(best)
		physics.Tracef("event %d hit %d: rotation %d p=%.4f chi2=%.3f/%d",
			ev.ID, hit.Channel, best.Rotation, best.Probability, best.Outcome.ChiSquare, best.Outcome.NDF)
		if err := r.emit(ev, hit, best); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) emit(ev *event.Event, hit event.TaggerHit, sel *selector.Selection) error {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	for _, k := range r.sinks {
		if err := k.Consume(ev, hit, sel); err != nil {
			return fmt.Errorf("event %d: sink: %w", ev.ID, err)
		}
	}
	return nil
}
