// Package metrics exposes raptd's Prometheus collectors. All methods are
// safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rapt"

// Sync results.
const (
	ResultOK       = "ok"
	ResultDegraded = "degraded"
)

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	syncs        *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	reconnects   prometheus.Counter
	events       *prometheus.CounterVec
	malformed    prometheus.Counter
	channels     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Sync passes by engine and result.",
		}, []string{"engine", "result"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync passes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Realtime connection attempts scheduled after a failure.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Inbound realtime events by type.",
		}, []string{"type"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "malformed_frames_total",
			Help:      "Inbound frames dropped because they did not decode.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "open_channels",
			Help:      "Rooms with an open realtime channel.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncs, m.syncDuration, m.reconnects, m.events, m.malformed, m.channels,
	)
	return m
}

// Registry returns the underlying registry.
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
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync records one sync pass.
func (m *Metrics) ObserveSync(engine string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultDegraded
	}
	m.syncs.WithLabelValues(engine, result).Inc()
	m.syncDuration.WithLabelValues(engine).Observe(took.Seconds())
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

// SetChannels sets the number of open realtime channels.
func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.channels.Set(float64(n))
}

// WatchBus exports the bus's dropped-delivery and subscriber counts.
func (m *Metrics) WatchBus(dropped func() uint64, subscribers func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dropped_events_total",
			Help:      "Event deliveries skipped because a subscriber was full.",
		}, func() float64 { return float64(dropped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "subscribers",
			Help:      "Registered event subscribers.",
		}, func() float64 { return float64(subscribers()) }),
	)
}
