// Package metrics exposes Prometheus metrics for a monitoring session.
//
// Each Metrics value owns its own registry so several sessions (and tests)
// never collide on the global default registry. All methods are safe on a nil
// receiver, which disables recording.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fwmon"

// Metrics holds all session metrics
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	LinesTotal         prometheus.Counter
	EventsParsed       *prometheus.CounterVec
	LinesRejected      prometheus.Counter
	EventsFiltered     *prometheus.CounterVec
	EventsStored       prometheus.Counter
	StoreSize          prometheus.Gauge
	Bursts             prometheus.Counter
	Warnings           prometheus.Counter
	Notifications      *prometheus.CounterVec
	GeoLookups         *prometheus.CounterVec
	GeoCacheSize       prometheus.Gauge
	NetworkChanges     prometheus.Counter
	SourceRestarts     prometheus.Counter
	LastEventTimestamp prometheus.Gauge
}

// New creates metrics registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg, started: time.Now()}

	m.LinesTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_lines_total",
		Help:      "Total log lines read from the source",
	})

	m.EventsParsed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_parsed_total",
		Help:      "Firewall events parsed from log lines",
	}, []string{"protocol"})

	m.LinesRejected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_lines_rejected_total",
		Help:      "Log lines that were not firewall events",
	})

	m.EventsFiltered = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_filtered_total",
		Help:      "Events dropped as noise, by reason",
	}, []string{"reason"})

	m.EventsStored = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_stored_total",
		Help:      "Events appended to the history",
	})

	m.StoreSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_events",
		Help:      "Events currently held in the history",
	})

	m.Bursts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bursts_total",
		Help:      "Burst threshold crossings",
	})

	m.Warnings = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "network_warnings_total",
		Help:      "Network probing warnings raised",
	})

	m.Notifications = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications sent, by kind and result",
	}, []string{"kind", "result"})

	m.GeoLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geo_lookups_total",
		Help:      "Geolocation lookups, by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	m.GeoCacheSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "geo_cache_entries",
		Help:      "Addresses held in the geolocation cache",
	})

	m.NetworkChanges = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "network_changes_total",
		Help:      "Network identity changes observed",
	})

	m.SourceRestarts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_restarts_total",
		Help:      "Times the log source was restarted after ending",
	})

	m.LastEventTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_event_timestamp_seconds",
		Help:      "Unix timestamp of the newest stored event",
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the session started",
	}, func() float64 {
		return time.Since(m.started).Seconds()
	})

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordLine counts one line read from the source
func (m *Metrics) RecordLine() {
	if m == nil {
		return
	}
	m.LinesTotal.Inc()
}

// RecordParsed counts a parsed event
func (m *Metrics) RecordParsed(protocol string) {
	if m == nil {
		return
	}
	m.EventsParsed.WithLabelValues(protocol).Inc()
}

// RecordRejected counts a line that did not parse
func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.LinesRejected.Inc()
}

// RecordFiltered counts an event dropped as noise
func (m *Metrics) RecordFiltered(reason string) {
	if m == nil {
		return
	}
	m.EventsFiltered.WithLabelValues(reason).Inc()
}

// RecordStored counts an appended event and updates the history size
func (m *Metrics) RecordStored(size int, ts time.Time) {
	if m == nil {
		return
	}
	m.EventsStored.Inc()
	m.StoreSize.Set(float64(size))
	m.LastEventTimestamp.Set(float64(ts.Unix()))
}

// SetStoreSize updates the history size, e.g. after a clear
func (m *Metrics) SetStoreSize(size int) {
	if m == nil {
		return
	}
	m.StoreSize.Set(float64(size))
}

// RecordBurst counts a burst crossing
func (m *Metrics) RecordBurst() {
	if m == nil {
		return
	}
	m.Bursts.Inc()
}

// RecordWarning counts a network warning
func (m *Metrics) RecordWarning() {
	if m == nil {
		return
	}
	m.Warnings.Inc()
}

// RecordNotification counts a notification attempt
func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}

// RecordGeoLookup counts one lookup attempt; signature matches geo.WithObserver
func (m *Metrics) RecordGeoLookup(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.GeoLookups.WithLabelValues(endpoint, outcome).Inc()
}

// SetGeoCacheSize updates the cache size gauge
func (m *Metrics) SetGeoCacheSize(n int) {
	if m == nil {
		return
	}
	m.GeoCacheSize.Set(float64(n))
}

// RecordNetworkChange counts a network identity change
func (m *Metrics) RecordNetworkChange() {
	if m == nil {
		return
	}
	m.NetworkChanges.Inc()
}

// RecordSourceRestart counts a log source restart
func (m *Metrics) RecordSourceRestart() {
	if m == nil {
		return
	}
	m.SourceRestarts.Inc()
}
