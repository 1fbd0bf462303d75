// Package metrics provides Prometheus metrics for the analyzer
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages used as the "stage" label.
const (
	StageFetch     = "fetch"
	StageConvert   = "convert"
	StageRead      = "read"
	StageExtract   = "extract"
	StageRender    = "render"
	StageSummarize = "summarize"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cad_requests_total",
			Help: "Total number of drawing requests by outcome",
		},
		[]string{"operation", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cad_request_duration_seconds",
			Help:    "End-to-end request duration",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cad_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Extraction metrics
	EntitiesScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cad_entities_scanned_total",
			Help: "Total number of modelspace entities scanned",
		},
	)

	EntitiesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cad_entities_skipped_total",
			Help: "Total number of entities skipped as malformed",
		},
	)

	DevicesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cad_devices_extracted_total",
			Help: "Total number of security devices extracted",
		},
	)

	TruncatedScans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cad_truncated_scans_total",
			Help: "Scans that stopped at the entity cap",
		},
	)

	// Collaborator metrics
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cad_conversions_total",
			Help: "DWG to DXF conversions by status",
		},
		[]string{"status"},
	)

	SummarizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cad_summarizations_total",
			Help: "Summarization calls by status",
		},
		[]string{"status"},
	)

	// Worker pool metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cad_queue_depth",
			Help: "Requests waiting for a worker",
		},
	)
)

// RecordRequest records a finished request.
func RecordRequest(operation, outcome string, duration time.Duration) {
	RequestsTotal.WithLabelValues(operation, outcome).Inc()
	RequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveStage records time spent in one pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordExtraction records the counts from one extraction pass.
func RecordExtraction(scanned, skipped, devices int, truncated bool) {
	EntitiesScanned.Add(float64(scanned))
	EntitiesSkipped.Add(float64(skipped))
	DevicesExtracted.Add(float64(devices))
	if truncated {
		TruncatedScans.Inc()
	}
}

// RecordConversion records a converter run.
func RecordConversion(err error) {
	ConversionsTotal.WithLabelValues(status(err)).Inc()
}

// RecordSummarization records a summarization call.
func RecordSummarization(err error) {
	SummarizationsTotal.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
