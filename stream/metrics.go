package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors a Stream reports to. A single
// Metrics value may be shared by many streams, they are told apart by the
// stream label.
type Metrics struct {
	appended *prometheus.CounterVec
	waits    *prometheus.CounterVec
	waitTime *prometheus.HistogramVec
	retained *prometheus.GaugeVec
}

// NewMetrics registers the stream collectors on the given registerer. It
// panics if the collectors are already registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		appended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evstream_events_appended_total",
				Help: "Number of events appended to a stream",
			},
			[]string{"stream"},
		),
		waits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evstream_waits_total",
				Help: "Number of wait calls by outcome",
			},
			[]string{"stream", "outcome"},
		),
		waitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evstream_wait_duration_seconds",
				Help:    "Time spent blocked on wait calls",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"outcome"},
		),
		retained: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evstream_retained_events",
				Help: "Number of events currently retained by a stream",
			},
			[]string{"stream"},
		),
	}
}

func (m *Metrics) eventAppended(name string, retained int) {
	if m == nil {
		return
	}
	m.appended.WithLabelValues(name).Inc()
	m.retained.WithLabelValues(name).Set(float64(retained))
}

func (m *Metrics) eventsTrimmed(name string, retained int) {
	if m == nil {
		return
	}
	m.retained.WithLabelValues(name).Set(float64(retained))
}

func (m *Metrics) waitFinished(name string, state WaitState, seconds float64) {
	if m == nil {
		return
	}
	m.waits.WithLabelValues(name, state.String()).Inc()
	m.waitTime.WithLabelValues(state.String()).Observe(seconds)
}

// Appended returns the counter of appended events, labeled by stream
func (m *Metrics) Appended() *prometheus.CounterVec {
	return m.appended
}

// Waits returns the counter of finished wait calls, labeled by stream and
// outcome
func (m *Metrics) Waits() *prometheus.CounterVec {
	return m.waits
}
