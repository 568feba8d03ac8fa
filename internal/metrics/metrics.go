package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whatsnext"

// Outcome label values for CMS requests.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	cmsRequests   *prometheus.CounterVec
	cmsDuration   *prometheus.HistogramVec
	eventsDropped prometheus.Counter
	httpRequests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.cmsRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cms_requests_total",
		Help:      "Requests issued to the content API, by document type and outcome",
	}, []string{"doc_type", "outcome"})
	m.cmsDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cms_request_duration_seconds",
		Help:      "Time spent on content API queries, including pagination",
		Buckets:   prometheus.DefBuckets,
	}, []string{"doc_type"})
	m.eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Event documents excluded because no start value could be resolved",
	})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Served HTTP requests by route template and status code",
	}, []string{"route", "status"})

	m.registry.MustRegister(
		m.cmsRequests,
		m.cmsDuration,
		m.eventsDropped,
		m.httpRequests,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveCMS records one logical content API query.
func (m *Metrics) ObserveCMS(docType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cmsRequests.WithLabelValues(docType, outcome).Inc()
	m.cmsDuration.WithLabelValues(docType).Observe(d.Seconds())
}

// EventsDropped adds n dropped event documents.
func (m *Metrics) EventsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDropped.Add(float64(n))
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CMSRequests exposes one cms_requests_total series, mainly for tests.
func (m *Metrics) CMSRequests(docType, outcome string) prometheus.Counter {
	return m.cmsRequests.WithLabelValues(docType, outcome)
}

// EventsDroppedCounter exposes events_dropped_total, mainly for tests.
func (m *Metrics) EventsDroppedCounter() prometheus.Counter {
	return m.eventsDropped
}

// HTTPRequests exposes one http_requests_total series, mainly for tests.
func (m *Metrics) HTTPRequests(route string, status int) prometheus.Counter {
	return m.httpRequests.WithLabelValues(route, strconv.Itoa(status))
}
