package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backendReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdf2md",
			Name:      "backend_requests_total",
			Help:      "Total inference requests by backend, model and result",
		},
		[]string{"backend", "model", "result"},
	)

	backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdf2md",
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of inference requests by backend and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "model"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdf2md",
			Name:      "throttle_retries_total",
			Help:      "Total number of retries triggered by 429 responses",
		},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdf2md",
			Name:      "pages_processed_total",
			Help:      "Total pages processed by result (success, failed, skipped)",
		},
		[]string{"result"},
	)
)

// Init registers collectors. Call once at startup.
func Init() {
	prometheus.MustRegister(backendReqs, backendLatency, retriesTotal, pagesProcessed)
}

// Handler returns the http.Handler for /metrics.
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRequest(backend, model, result string, dur time.Duration) {
	backendReqs.WithLabelValues(backend, model, result).Inc()
	backendLatency.WithLabelValues(backend, model).Observe(dur.Seconds())
}

func IncRetry() { retriesTotal.Inc() }

func IncPage(result string) { pagesProcessed.WithLabelValues(result).Inc() }
