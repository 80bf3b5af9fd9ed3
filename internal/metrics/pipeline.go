package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All labels are low-cardinality: no clip ids or recipients.

var (
	// MotionTriggersTotal counts motion triggers that started a new clip
	MotionTriggersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_motion_triggers_total",
			Help: "Motion triggers that opened a clip",
		},
	)

	// ClipsFinalizedTotal counts assembled clips by how they ended
	ClipsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_clips_finalized_total",
			Help: "Clips finalized by the assembler",
		},
		[]string{"reason"}, // deadline, flush
	)

	ClipDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_clip_duration_seconds",
			Help:    "Span of finalized clips",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// CaptureSinkErrorsTotal counts clips the capture loop could not hand off
	CaptureSinkErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_capture_sink_errors_total",
			Help: "Clips rejected by the ingestion sink",
		},
	)

	IngestResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_ingest_results_total",
			Help: "Ingestion attempts by result",
		},
		[]string{"result"}, // accepted, duplicate, queue_full, no_space, invalid, error
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_uploads_total",
			Help: "Capture-side clip uploads by result",
		},
		[]string{"result"}, // sent, spooled, dropped
	)

	AnalysisQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_analysis_queue_depth",
			Help: "Jobs waiting for an analysis worker",
		},
	)

	AnalysesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_analyses_in_flight",
			Help: "Analyses currently running",
		},
	)

	AnalysisOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_analysis_outcomes_total",
			Help: "Finished analyses by outcome",
		},
		[]string{"outcome"}, // alert, no_alert, failed
	)

	AnalysisLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_analysis_latency_seconds",
			Help:    "Wall time from job start to verdict or failure",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	ClassifierAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_classifier_attempts_total",
			Help: "Classifier calls by result kind",
		},
		[]string{"result"}, // ok, timeout, malformed, quota, transport
	)

	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_verdicts_total",
			Help: "Decision engine verdicts",
		},
		[]string{"verdict", "reason"}, // reason: threat, keyword, none
	)

	AlertDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alert_deliveries_total",
			Help: "Alert delivery attempts per channel",
		},
		[]string{"channel", "result"}, // result: sent, failed
	)

	HousekeepingRemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_housekeeping_removals_total",
			Help: "Artifacts and temp directories removed",
		},
		[]string{"kind"}, // cleanup, orphan
	)
)

// Helper functions for metrics recording

func RecordTrigger() {
	MotionTriggersTotal.Inc()
}

func RecordClipFinalized(reason string, seconds float64) {
	ClipsFinalizedTotal.WithLabelValues(reason).Inc()
	ClipDurationSeconds.Observe(seconds)
}

func RecordSinkError() {
	CaptureSinkErrorsTotal.Inc()
}

func RecordIngest(result string) {
	IngestResultsTotal.WithLabelValues(result).Inc()
}

func RecordUpload(result string) {
	UploadsTotal.WithLabelValues(result).Inc()
}

func SetQueueDepth(n int) {
	AnalysisQueueDepth.Set(float64(n))
}

func RecordAnalysis(outcome string, seconds float64) {
	AnalysisOutcomesTotal.WithLabelValues(outcome).Inc()
	AnalysisLatency.WithLabelValues(outcome).Observe(seconds)
}

func RecordClassifierAttempt(result string) {
	ClassifierAttemptsTotal.WithLabelValues(result).Inc()
}

func RecordVerdict(alert bool, reason string) {
	v := "no_alert"
	if alert {
		v = "alert"
	}
	VerdictsTotal.WithLabelValues(v, reason).Inc()
}

func RecordDelivery(channel, result string) {
	AlertDeliveriesTotal.WithLabelValues(channel, result).Inc()
}

func RecordRemoval(kind string, n int) {
	HousekeepingRemovalsTotal.WithLabelValues(kind).Add(float64(n))
}
