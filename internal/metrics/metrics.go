// Package metrics holds the Prometheus collectors of the bridge.
//
// All methods are safe on a nil *Metrics so components can run without a
// registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "asanagram"

type Metrics struct {
	reg *prometheus.Registry

	eventsReceived    *prometheus.CounterVec
	eventsIgnored     *prometheus.CounterVec
	dedupSuppressed   *prometheus.CounterVec
	aggregates        *prometheus.CounterVec
	pendingAggregates prometheus.Gauge
	renders           *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	fetches           *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	webhookRequests   *prometheus.CounterVec
	digestRuns        *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		eventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Webhook events received by resource type and action.",
		}, []string{"resource", "action"}),
		eventsIgnored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Events dropped before rendering, by reason.",
		}, []string{"reason"}),
		dedupSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_suppressed_total",
			Help:      "Duplicate keys suppressed by the dedup filter, by key class.",
		}, []string{"class"}),
		aggregates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregates_total",
			Help:      "Debounce aggregates by outcome (fired, discarded).",
		}, []string{"outcome"}),
		pendingAggregates: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregates_pending",
			Help:      "Debounce aggregates currently waiting for their quiet window.",
		}),
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Rendered notifications by template; template=none when nothing was rendered.",
		}, []string{"template"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification deliveries by status.",
		}, []string{"status"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Asana API fetches by resource and status.",
		}, []string{"resource", "status"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of Asana API fetches.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"resource"}),
		webhookRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook HTTP requests by outcome.",
		}, []string{"outcome"}),
		digestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_runs_total",
			Help:      "Scheduled report runs by report and status.",
		}, []string{"report", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) EventReceived(resource, action string) {
	if m != nil {
		m.eventsReceived.WithLabelValues(resource, action).Inc()
	}
}

func (m *Metrics) EventIgnored(reason string) {
	if m != nil {
		m.eventsIgnored.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) DedupSuppressed(class string) {
	if m != nil {
		m.dedupSuppressed.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) Aggregate(outcome string) {
	if m != nil {
		m.aggregates.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetPendingAggregates(n int) {
	if m != nil {
		m.pendingAggregates.Set(float64(n))
	}
}

func (m *Metrics) Rendered(template string) {
	if m != nil {
		m.renders.WithLabelValues(template).Inc()
	}
}

func (m *Metrics) Delivery(status string) {
	if m != nil {
		m.deliveries.WithLabelValues(status).Inc()
	}
}

// Fetch records one API fetch; err == nil counts as ok.
func (m *Metrics) Fetch(resource string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.fetches.WithLabelValues(resource, status).Inc()
	m.fetchDuration.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *Metrics) WebhookRequest(outcome string) {
	if m != nil {
		m.webhookRequests.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) DigestRun(report string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.digestRuns.WithLabelValues(report, status).Inc()
}
