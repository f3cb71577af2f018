// Package obsmetrics exposes Prometheus metrics for the grading core,
// mirroring pkg/observability's package-level vectors and sync.Once
// registration, renamed to the examwright_ prefix.
package obsmetrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwright_pipeline_invocations_total",
			Help: "Total number of pipeline invocations by outcome",
		},
		[]string{"outcome"},
	)

	pipelinePhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examwright_pipeline_phase_duration_seconds",
			Help:    "Pipeline phase duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	graderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwright_grader_calls_total",
			Help: "Total number of grader chat invocations by role and status",
		},
		[]string{"role", "status"},
	)

	graderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwright_grader_retries_total",
			Help: "Total number of grader retries by reason",
		},
		[]string{"reason"},
	)

	divergenceGapHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examwright_divergence_gap",
			Help:    "Observed gap between GRADER_A and GRADER_B totals",
			Buckets: []float64{0, 0.5, 1, 1.5, 2, 3, 5, 10},
		},
	)

	arbitrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examwright_arbitrations_total",
			Help: "Total number of pipeline invocations that required an arbiter",
		},
	)

	batchChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examwright_batch_chunks_total",
			Help: "Total number of batch chunks processed",
		},
	)

	batchInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "examwright_batch_in_flight",
			Help: "Number of pipelines currently in flight within the active batch chunk",
		},
	)

	initOnce sync.Once
)

// Init registers every metric with the default Prometheus registry.
// Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			pipelineInvocationsTotal,
			pipelinePhaseDuration,
			graderCallsTotal,
			graderRetriesTotal,
			divergenceGapHistogram,
			arbitrationsTotal,
			batchChunksTotal,
			batchInFlight,
		)
	})
}

// Handler returns the HTTP handler serving the Prometheus exposition
// format, to be mounted by cmd/examwright.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordPipelineInvocation(outcome string) {
	pipelineInvocationsTotal.WithLabelValues(outcome).Inc()
}

func RecordPhaseDuration(phase string, d time.Duration) {
	pipelinePhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func RecordGraderCall(role, status string) {
	graderCallsTotal.WithLabelValues(role, status).Inc()
}

func RecordGraderRetry(reason string) {
	graderRetriesTotal.WithLabelValues(reason).Inc()
}

func RecordDivergenceGap(gap float64) {
	divergenceGapHistogram.Observe(gap)
}

func RecordArbitration() {
	arbitrationsTotal.Inc()
}

func RecordBatchChunk() {
	batchChunksTotal.Inc()
}

func SetBatchInFlight(n int) {
	batchInFlight.Set(float64(n))
}
