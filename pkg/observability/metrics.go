// Package observability exposes Prometheus metrics for the protocol
// engine and transport, plus a small debug HTTP server serving them.
package observability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/g-pavlov/nalai-sub000/pkg/api"
)

var (
	// Frame reader metrics
	framesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nalai_frames_total",
			Help: "Total number of SSE frames read",
		},
	)

	droppedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nalai_dropped_frames_total",
			Help: "Total number of frames dropped by the decoder",
		},
		[]string{"reason"},
	)

	// Engine metrics
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nalai_events_total",
			Help: "Total number of decoded stream events",
		},
		[]string{"event"},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nalai_tool_calls_total",
			Help: "Total number of reconciled tool call results",
		},
		[]string{"status"},
	)

	interruptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nalai_interrupts_total",
			Help: "Total number of human-review interrupts",
		},
	)

	// Transport metrics
	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nalai_streams_total",
			Help: "Total number of response streams by outcome",
		},
		[]string{"outcome"},
	)

	streamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nalai_stream_duration_seconds",
			Help:    "Response stream duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nalai_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	initOnce sync.Once
)

// InitMetrics registers the metrics with the default registry. Safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			framesTotal,
			droppedFramesTotal,
			eventsTotal,
			toolCallsTotal,
			interruptsTotal,
			streamsTotal,
			streamDuration,
			requestsTotal,
		)
	})
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordFrame counts one SSE frame read from a stream.
func RecordFrame() {
	framesTotal.Inc()
}

// dropReason buckets decoder failures for the dropped-frames counter.
func dropReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, api.ErrUnknownEvent):
		return "unknown_event"
	default:
		return "parse_error"
	}
}

// RecordDroppedFrame counts a frame the decoder rejected.
func RecordDroppedFrame(err error) {
	droppedFramesTotal.WithLabelValues(dropReason(err)).Inc()
}

// RecordEvent counts one decoded event by kind.
func RecordEvent(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// RecordToolCall counts one reconciled tool call result by status.
func RecordToolCall(status string) {
	toolCallsTotal.WithLabelValues(status).Inc()
}

// RecordInterrupt counts one human-review interrupt.
func RecordInterrupt() {
	interruptsTotal.Inc()
}

// RecordStream records a finished stream's outcome and duration.
func RecordStream(outcome string, duration time.Duration) {
	streamsTotal.WithLabelValues(outcome).Inc()
	streamDuration.Observe(duration.Seconds())
}

// RecordRequest counts one non-streaming HTTP request.
func RecordRequest(endpoint, status string) {
	requestsTotal.WithLabelValues(endpoint, status).Inc()
}
