// Package observability holds the metrics, health and logging plumbing shared by
// the client packages and the terminal front end.
package observability

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway metrics
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyassist_gateway_requests_total",
			Help: "Total number of API requests issued by the client",
		},
		[]string{"method", "route", "status"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policyassist_gateway_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Chat metrics
	chatSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyassist_chat_submissions_total",
			Help: "Chat submissions by target and outcome",
		},
		[]string{"target", "outcome"},
	)

	chatAnswerConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policyassist_chat_answer_confidence",
			Help:    "Confidence reported for answered questions",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"target"},
	)

	// Batch metrics
	batchUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyassist_batch_uploads_total",
			Help: "Batch submissions by document kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	batchFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyassist_batch_files_total",
			Help: "Files reported by batch uploads, by status",
		},
		[]string{"kind", "status"},
	)

	// Responses dropped because a newer request superseded them
	staleResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyassist_stale_responses_total",
			Help: "Responses discarded because a newer request was issued",
		},
		[]string{"component"},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			gatewayRequestsTotal,
			gatewayRequestDuration,
			chatSubmissionsTotal,
			chatAnswerConfidence,
			batchUploadsTotal,
			batchFilesTotal,
			staleResponsesTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordGatewayRequest records one API call. status is 0 for transport failures.
func RecordGatewayRequest(method, path string, status int, duration time.Duration) {
	route := RouteLabel(path)
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	gatewayRequestsTotal.WithLabelValues(method, route, code).Inc()
	gatewayRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordChatSubmission records a chat outcome: "answered", "failed" or "rejected".
func RecordChatSubmission(target, outcome string) {
	chatSubmissionsTotal.WithLabelValues(target, outcome).Inc()
}

// RecordAnswerConfidence records the confidence of an answer.
func RecordAnswerConfidence(target string, confidence float64) {
	chatAnswerConfidence.WithLabelValues(target).Observe(confidence)
}

// RecordBatchUpload records a batch outcome and its per-file tallies.
func RecordBatchUpload(kind, outcome string, succeeded, failed int) {
	batchUploadsTotal.WithLabelValues(kind, outcome).Inc()
	if succeeded > 0 {
		batchFilesTotal.WithLabelValues(kind, "indexed").Add(float64(succeeded))
	}
	if failed > 0 {
		batchFilesTotal.WithLabelValues(kind, "failed").Add(float64(failed))
	}
}

// RecordStaleResponse records a discarded out-of-date response.
func RecordStaleResponse(component string) {
	staleResponsesTotal.WithLabelValues(component).Inc()
}

// RouteLabel turns a request path into a low-cardinality label:
// the query string is dropped and identifier-like segments become "{id}".
func RouteLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.IndexFunc(seg, unicode.IsDigit) >= 0 {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}
