package ports

import (
	"context"
	"io"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// Predictor is the inbound contract for scoring text with the active backend.
type Predictor interface {
	Predict(ctx context.Context, text string) (*domain.Prediction, error)
}

// FeedbackRecorder stores user corrections.
type FeedbackRecorder interface {
	Record(ctx context.Context, input domain.FeedbackInput) (*domain.FeedbackRecord, error)
}

// DatasetUploader is the inbound contract for dataset upload.
type DatasetUploader interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Dataset, error)
}

// RetrainService submits retrain jobs and reports their state.
type RetrainService interface {
	Submit(ctx context.Context, cmd domain.RetrainCommand) (string, error)
	Status(ctx context.Context, jobID string) (*domain.RetrainJob, error)
}

// ModelAdmin lists versions and controls the serving backend.
type ModelAdmin interface {
	ListModels(ctx context.Context) ([]domain.ModelRecord, error)
	Reload(ctx context.Context, version string) (string, error)
	ActiveBackend() string
	SetActiveBackend(name string) error
}

// InsightsService is the read model over metrics history and the feedback ledger.
type InsightsService interface {
	LatestMetrics(ctx context.Context) (*domain.LatestMetrics, error)
	ConfusionMatrix(ctx context.Context) (*domain.ConfusionMatrix, error)
	ConfidenceDistribution(ctx context.Context) (*domain.ConfidenceDistribution, error)
	PRCurves(ctx context.Context) (map[string]domain.PRCurve, error)
	VersionTrend(ctx context.Context, limit int) ([]domain.VersionTrendPoint, error)
	UncertainSamples(ctx context.Context, limit int) ([]domain.FeedbackRecord, error)
	PredictionHistory(ctx context.Context, limit int) ([]domain.FeedbackRecord, error)
}
