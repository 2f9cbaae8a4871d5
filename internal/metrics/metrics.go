package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detector metrics for training, serving and operator feedback.
var (
	// Training metrics
	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_ml_training_runs_total",
			Help: "Total number of training runs",
		},
		[]string{"status"}, // success, insufficient_data, error
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_ml_training_duration_seconds",
			Help:    "End-to-end training run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
	)

	TuningTrialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_ml_tuning_trials_total",
			Help: "Total number of hyperparameter trials evaluated",
		},
	)

	SelectedModelMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "argus_ml_selected_model_metric",
			Help: "Metrics of the most recently selected model",
		},
		[]string{"split", "metric"}, // split: validation/test
	)

	// Preprocessing metrics
	OutlierRowsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_ml_outlier_rows_removed_total",
			Help: "Rows removed by IQR outlier filtering",
		},
	)

	ContaminationCandidatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_ml_contamination_candidates_skipped_total",
			Help: "Contamination candidates skipped because cross-validation scoring failed",
		},
	)

	// Inference metrics
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_ml_predictions_total",
			Help: "Total number of scored flow records",
		},
		[]string{"result"}, // anomaly, normal, suppressed
	)

	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_ml_inference_duration_seconds",
			Help:    "Batch inference duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
	)

	ExplanationsUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_ml_explanations_unavailable_total",
			Help: "Explanations requested without scaler statistics",
		},
	)

	ArtifactLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_ml_artifact_loads_total",
			Help: "Artifact load attempts",
		},
		[]string{"status"},
	)

	// Feedback metrics
	FeedbackReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_ml_feedback_reports_total",
			Help: "Operator trust-ledger updates",
		},
		[]string{"action", "status"}, // action: report/revoke
	)

	TrustedIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_ml_trusted_ips",
			Help: "Entries currently in the trust ledger",
		},
	)

	RetrainTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_ml_retrain_triggers_total",
			Help: "Retrain trigger requests",
		},
		[]string{"outcome"}, // created, already_set, error
	)
)
