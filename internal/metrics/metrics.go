// Package metrics exposes pipeline counters as Prometheus collectors on
// a private registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coffersTech/nanocat/internal/source"
)

const namespace = "nanocat"

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	registry *prometheus.Registry

	records     *prometheus.CounterVec // by outcome: ingested, kept, filtered, highlighted
	bytesRead   prometheus.Counter
	delivered   *prometheus.CounterVec // by sink
	dropped     *prometheus.CounterVec // by sink
	stalls      *prometheus.CounterVec // by sink
	queueDepth  *prometheus.GaugeVec   // by sink
	transitions *prometheus.CounterVec // by source and state
}

// New creates the collectors and registers them, together with the Go
// runtime collectors, on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Records seen by the dispatcher, by outcome",
		}, []string{"outcome"}),

		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "bytes_read_total",
			Help:      "Raw bytes read from the source",
		}),

		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "delivered_total",
			Help:      "Entries written to a sink",
		}, []string{"sink"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "dropped_total",
			Help:      "Entries evicted from a drop-oldest sink queue",
		}, []string{"sink"}),

		stalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "queue_stalls_total",
			Help:      "Times the dispatcher waited on a full blocking sink queue",
		}, []string{"sink"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "queue_depth",
			Help:      "Entries waiting in a sink queue",
		}, []string{"sink"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "transitions_total",
			Help:      "Source connection state transitions, by target state",
		}, []string{"source", "state"}),
	}

	for _, c := range []prometheus.Collector{
		m.records, m.bytesRead, m.delivered, m.dropped, m.stalls, m.queueDepth, m.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the private registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Ingested(n int) {
	if m != nil && n > 0 {
		m.records.WithLabelValues("ingested").Add(float64(n))
	}
}

func (m *Metrics) Kept(highlighted bool) {
	if m == nil {
		return
	}
	m.records.WithLabelValues("kept").Inc()
	if highlighted {
		m.records.WithLabelValues("highlighted").Inc()
	}
}

func (m *Metrics) Filtered() {
	if m != nil {
		m.records.WithLabelValues("filtered").Inc()
	}
}

func (m *Metrics) BytesRead(n int) {
	if m != nil {
		m.bytesRead.Add(float64(n))
	}
}

func (m *Metrics) Delivered(sink string) {
	if m != nil {
		m.delivered.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) Dropped(sink string) {
	if m != nil {
		m.dropped.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) Stalled(sink string) {
	if m != nil {
		m.stalls.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) QueueDepth(sink string, n int) {
	if m != nil {
		m.queueDepth.WithLabelValues(sink).Set(float64(n))
	}
}

// Observe counts a source transition. It satisfies source.Observer.
func (m *Metrics) Observe(tr source.Transition) {
	if m != nil {
		m.transitions.WithLabelValues(tr.Identity, tr.To.String()).Inc()
	}
}
