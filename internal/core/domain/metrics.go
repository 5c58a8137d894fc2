package domain

import "time"

type BasicMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	F1        float64 `json:"f1"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

type ConfusionMatrix struct {
	Labels []string `json:"labels"`
	Matrix [][]int  `json:"matrix"`
}

type PRCurve struct {
	Precision  []float64 `json:"precision"`
	Recall     []float64 `json:"recall"`
	Thresholds []float64 `json:"thresholds"`
}

// ConfidenceDistribution is a 10-bin histogram of max class probability over [0,1].
type ConfidenceDistribution struct {
	Bins       []float64 `json:"bins"`
	Counts     []int     `json:"counts"`
	PctBelow05 float64   `json:"pct_below_0_5"`
}

// EvaluationMetrics is computed once per training run on the held-out fold.
type EvaluationMetrics struct {
	BasicMetrics
	Confusion      ConfusionMatrix        `json:"confusion"`
	PRCurves       map[string]PRCurve     `json:"pr_curve"`
	AUCPerClass    map[string]*float64    `json:"auc_per_class"`
	ConfidenceDist ConfidenceDistribution `json:"confidence_dist"`
}

// MetricsSnapshot is one entry of the append-only metrics history.
type MetricsSnapshot struct {
	Version    string            `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	Evaluation EvaluationMetrics `json:"evaluation"`
	Samples    int               `json:"n_samples"`
}

type VersionTrendPoint struct {
	Version   string       `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   BasicMetrics `json:"metrics"`
}

// LatestMetrics answers "how good is the newest model". Evaluation is nil when
// only the model registry has an entry.
type LatestMetrics struct {
	Version    string             `json:"version"`
	CreatedAt  time.Time          `json:"created_at"`
	Metrics    BasicMetrics       `json:"metrics"`
	Evaluation *EvaluationMetrics `json:"evaluation,omitempty"`
	Samples    int                `json:"n_samples,omitempty"`
}
