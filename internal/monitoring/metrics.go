package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/banshee-data/combfit/internal/physics/selector"
)

// Rejection reasons used as the "reason" label.
const (
	ReasonCoplanarity = "coplanarity"
	ReasonMissingMass = "missing_mass"
	ReasonFitFailed   = "fit_failed"
	ReasonBelowCut    = "below_cut"
)

// Metrics holds the pipeline counters.
type Metrics struct {
	Events      prometheus.Counter
	Skipped     prometheus.Counter
	Hits        prometheus.Counter
	Trials      prometheus.Counter
	Rejections  *prometheus.CounterVec
	Fits        prometheus.Counter
	Selections  *prometheus.CounterVec
	Probability prometheus.Histogram
}

// NewMetrics registers the pipeline counters with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounter(prometheus.CounterOpts{
			Namespace: "combfit",
			Name:      "events_total",
			Help:      "Events read from the source",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "combfit",
			Name:      "events_skipped_total",
			Help:      "Events skipped for an out-of-range candidate count",
		}),
		Hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "combfit",
			Name:      "tagger_hits_total",
			Help:      "Tagger hits searched",
		}),
		Trials: f.NewCounter(prometheus.CounterOpts{
			Namespace: "combfit",
			Subsystem: "selector",
			Name:      "trials_total",
			Help:      "Rotations tried",
		}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "combfit",
			Subsystem: "selector",
			Name:      "rejections_total",
			Help:      "Rotations rejected, by reason",
		}, []string{"reason"}),
		Fits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "combfit",
			Subsystem: "kinfit",
			Name:      "converged_total",
			Help:      "Kinematic fits that converged",
		}),
		Selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "combfit",
			Subsystem: "selector",
			Name:      "selections_total",
			Help:      "Accepted selections, by multiplicity",
		}, []string{"multiplicity"}),
		Probability: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "combfit",
			Subsystem: "kinfit",
			Name:      "probability",
			Help:      "Fit probability of accepted selections",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// ObserveStats adds a selector stats delta to the counters.
func (m *Metrics) ObserveStats(d selector.Stats) {
	if m == nil {
		return
	}
	m.Trials.Add(float64(d.Trials))
	m.Rejections.WithLabelValues(ReasonCoplanarity).Add(float64(d.RejectedCoplanarity))
	m.Rejections.WithLabelValues(ReasonMissingMass).Add(float64(d.RejectedMissingMass))
	m.Rejections.WithLabelValues(ReasonFitFailed).Add(float64(d.FitFailures))
	m.Rejections.WithLabelValues(ReasonBelowCut).Add(float64(d.BelowCut))
	m.Fits.Add(float64(d.FitSuccesses))
}

// ObserveSelection counts one accepted selection.
func (m *Metrics) ObserveSelection(sel *selector.Selection) {
	if m == nil || sel == nil {
		return
	}
	m.Selections.WithLabelValues(strconv.Itoa(sel.Multiplicity())).Inc()
	m.Probability.Observe(sel.Probability)
}
