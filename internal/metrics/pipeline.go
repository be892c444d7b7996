package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "protomer",
			Name:      "step_duration_seconds",
			Help:      "Pipeline step duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"step"},
	)

	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protomer",
			Name:      "steps_total",
			Help:      "Total pipeline steps by terminal status",
		},
		[]string{"step", "status"}, // "succeeded" / "failed" / "skipped"
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protomer",
			Name:      "runs_total",
			Help:      "Total pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	ArtifactBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protomer",
			Name:      "artifact_bytes_total",
			Help:      "Total artifact bytes moved through storage",
		},
		[]string{"op"}, // "get" / "put"
	)

	SearchAlignments = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "protomer",
			Name:      "search_alignments",
			Help:      "Alignments returned per database search",
			Buckets:   []float64{1, 10, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"database"},
	)

	RankingConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "protomer",
			Name:      "ranking_confidence",
			Help:      "Ranking confidence reported per prediction",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"model_runner"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(StepDuration)
	prometheus.MustRegister(StepsTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(ArtifactBytes)
	prometheus.MustRegister(SearchAlignments)
	prometheus.MustRegister(RankingConfidence)
	pipelineMetricsRegistered = true
}
