package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons recorded by the deduction engine.
const (
	reasonUndefined     = "undefined"
	reasonNotDerivable  = "not_derivable"
	reasonSelf          = "self"
	reasonDuplicate     = "duplicate"
	reasonAge           = "age_implausible"
	reasonUnjustified   = "unjustified_sibling"
	reasonContradiction = "contradiction"
	reasonMissingPerson = "missing_person"
)

// metrics contains statically-registered Prometheus metrics for the package.
var metrics = struct {
	derivedTotal        prometheus.Counter
	derivationsSkipped  *prometheus.CounterVec
	derivationsFailed   prometheus.Counter
	suggestionsTotal    *prometheus.CounterVec
	guesserCallsTotal   *prometheus.CounterVec
	repairsTotal        *prometheus.CounterVec
	requestTransitions  *prometheus.CounterVec
	propagationDuration prometheus.Histogram
}{
	derivedTotal: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "deduction",
		Name:      "edges_written_total",
		Help:      `The cumulative number of mirrored edge pairs written by the deduction engine.`,
	}),
	derivationsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "deduction",
		Name:      "skipped_total",
		Help: `The cumulative number of candidate derivations that were not written, by reason.

A high duplicate count is normal: re-derivation of existing facts is absorbed
silently. Rising contradiction or unjustified_sibling counts point at bad data.`,
	}, []string{"reason"}),
	derivationsFailed: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "deduction",
		Name:      "failed_total",
		Help:      `The cumulative number of derivations that failed with a storage error.`,
	}),
	suggestionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "suggestions",
		Name:      "generated_total",
		Help:      `The cumulative number of suggestions generated, by whether a code was attached.`,
	}, []string{"labeled"}),
	guesserCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "suggestions",
		Name:      "guesser_calls_total",
		Help:      `The cumulative number of relationship guesser consultations, by outcome.`,
	}, []string{"outcome"}),
	repairsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "repair",
		Name:      "fixes_total",
		Help:      `The cumulative number of consistency repairs applied, by issue kind.`,
	}, []string{"kind"}),
	requestTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kin",
		Subsystem: "requests",
		Name:      "transitions_total",
		Help:      `The cumulative number of relationship request transitions, by target status.`,
	}, []string{"status"}),
	propagationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kin",
		Subsystem: "deduction",
		Name:      "propagation_seconds",
		Help:      `Time spent in one bounded propagation pass.`,
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}),
}
