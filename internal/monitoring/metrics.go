package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	InboxesCreated prometheus.Counter
	InboxesDeleted prometheus.Counter
	InboxesExpired prometheus.Counter

	MessagesIngested *prometheus.CounterVec
	IngestRejects    *prometheus.CounterVec

	RateLimitBlocks prometheus.Counter
}

// NewMetrics registers the service collectors against the default
// registry; construct this only once per process.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers against a caller-owned registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempx_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempx_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		InboxesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempx_inboxes_created_total",
			Help: "Total number of inboxes created",
		}),
		InboxesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempx_inboxes_deleted_total",
			Help: "Total number of inboxes explicitly deleted",
		}),
		InboxesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempx_inboxes_expired_total",
			Help: "Total number of inboxes reclaimed by the expiry sweep",
		}),
		MessagesIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempx_messages_ingested_total",
				Help: "Messages accepted through webhook ingestion",
			},
			[]string{"provider"},
		),
		IngestRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempx_ingest_rejects_total",
				Help: "Webhook notifications rejected, by reason",
			},
			[]string{"provider", "reason"},
		),
		RateLimitBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tempx_rate_limit_blocks_total",
			Help: "Requests blocked by rate limiting",
		}),
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// HTTPHandler exposes the default registry for the /metrics endpoint.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
