// Package metrics exposes Prometheus collectors for run outcomes
// (spec.md §4.5's per-run measurements) and a dependency-free Aggregator
// for the mean-of-runs summary spec.md §6 requires as machine-readable
// output. Grounded on the teacher's metrics package: a namespaced
// CounterVec/HistogramVec set registered against a caller-supplied
// prometheus.Registerer, never the package-global default, so tests and
// concurrent scenario runs never collide on registration.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "rdtsim"

// Sample is one run's outcome, independent of the driver package so
// this package never imports it (the driver imports metrics, not the
// other way around).
type Sample struct {
	Protocol        string
	Seconds         float64
	ThroughputBps   float64
	Retransmissions uint64
	Success         bool
}

// Collectors is the set of Prometheus collectors this package registers.
// The zero value is not usable; construct with NewCollectors.
type Collectors struct {
	runsTotal            *prometheus.CounterVec
	retransmissionsTotal *prometheus.CounterVec
	transferDuration     *prometheus.HistogramVec
	goodput              *prometheus.HistogramVec
}

// NewCollectors builds and registers the run-outcome collectors against
// registerer. Registering the same collector twice against the same
// registerer (e.g. two scenarios sharing a registry) is tolerated, as it
// is in the teacher's NewTracerWithRegisterer.
func NewCollectors(registerer prometheus.Registerer) *Collectors {
	c := &Collectors{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "runs_total",
				Help:      "Completed experiment runs",
			},
			[]string{"protocol", "outcome"},
		),
		retransmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "retransmissions_total",
				Help:      "Segments retransmitted across all runs",
			},
			[]string{"protocol"},
		),
		transferDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "transfer_duration_seconds",
				Help:      "Simulated wall-clock time to complete a transfer",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 20),
			},
			[]string{"protocol"},
		),
		goodput: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "goodput_bps",
				Help:      "Application-level throughput of a completed transfer",
				Buckets:   prometheus.ExponentialBuckets(1000, 4, 16),
			},
			[]string{"protocol"},
		),
	}
	for _, coll := range [...]prometheus.Collector{
		c.runsTotal,
		c.retransmissionsTotal,
		c.transferDuration,
		c.goodput,
	} {
		if err := registerer.Register(coll); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}
	return c
}

// Observe records one run's outcome.
func (c *Collectors) Observe(s Sample) {
	tags := getStringSlice()
	defer putStringSlice(tags)

	outcome := "ok"
	if !s.Success {
		outcome = "timeout"
	}
	*tags = append(*tags, s.Protocol, outcome)
	c.runsTotal.WithLabelValues(*tags...).Inc()

	if !s.Success {
		return
	}
	c.retransmissionsTotal.WithLabelValues(s.Protocol).Add(float64(s.Retransmissions))
	c.transferDuration.WithLabelValues(s.Protocol).Observe(s.Seconds)
	c.goodput.WithLabelValues(s.Protocol).Observe(s.ThroughputBps)
}
