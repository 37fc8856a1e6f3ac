package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the media gateway.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	chunksTotal       prometheus.Counter
	failoversTotal    prometheus.Counter
	originErrorsTotal prometheus.Counter
	errorsTotal       prometheus.Counter
	inFlightStreams   prometheus.Gauge
	poolConnections   prometheus.Gauge
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of HTTP requests received",
	})
	chunksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_origin_chunks_total",
		Help: "Total number of byte-range chunks fetched from origin",
	})
	failoversTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_host_failovers_total",
		Help: "Total number of CDN host failovers during probing",
	})
	originErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_origin_errors_total",
		Help: "Total number of error statuses (4xx or 5xx) returned by origin",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	inFlightStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_inflight_streams",
		Help: "Number of playback streams currently being proxied",
	})
	poolConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_pool_connections",
		Help: "Number of origin connections currently checked out of the pool",
	})

	registry.MustRegister(
		requestsTotal,
		chunksTotal,
		failoversTotal,
		originErrorsTotal,
		errorsTotal,
		inFlightStreams,
		poolConnections,
	)

	return &Metrics{
		registry:          registry,
		requestsTotal:     requestsTotal,
		chunksTotal:       chunksTotal,
		failoversTotal:    failoversTotal,
		originErrorsTotal: originErrorsTotal,
		errorsTotal:       errorsTotal,
		inFlightStreams:   inFlightStreams,
		poolConnections:   poolConnections,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncChunks increments the origin chunk counter.
func (m *Metrics) IncChunks() {
	m.chunksTotal.Inc()
}

// IncFailovers increments the host failover counter.
func (m *Metrics) IncFailovers() {
	m.failoversTotal.Inc()
}

// IncOriginErrors increments the origin error-status counter.
func (m *Metrics) IncOriginErrors() {
	m.originErrorsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// StreamStarted increments the in-flight stream gauge.
func (m *Metrics) StreamStarted() {
	m.inFlightStreams.Inc()
}

// StreamFinished decrements the in-flight stream gauge.
func (m *Metrics) StreamFinished() {
	m.inFlightStreams.Dec()
}

// SetPoolConnections sets the checked-out pool connection gauge.
func (m *Metrics) SetPoolConnections(n int) {
	m.poolConnections.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. pool usage).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
