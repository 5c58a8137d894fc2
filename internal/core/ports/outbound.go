package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/ml"
)

// ObjectStorage stores uploaded datasets.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// VersionStore persists immutable, monotonically numbered model versions.
type VersionStore interface {
	ListVersions(ctx context.Context) ([]string, error)
	SaveNewVersion(ctx context.Context, artifact ml.Classifier, vectorizer *ml.TFIDFVectorizer, meta domain.VersionMetadata) (string, error)
	Load(ctx context.Context, version string) (*domain.ModelVersion, error)
}

// FeedbackLedger is the append-only log of predictions and corrections.
type FeedbackLedger interface {
	Append(ctx context.Context, record *domain.FeedbackRecord) error
	ListCorrected(ctx context.Context) ([]domain.LabeledText, error)
	ListUncertain(ctx context.Context, threshold float64, limit int) ([]domain.FeedbackRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.FeedbackRecord, error)
}

// DatasetRepository keeps metadata of uploaded datasets.
type DatasetRepository interface {
	Create(ctx context.Context, ds *domain.Dataset) error
	GetByID(ctx context.Context, id string) (*domain.Dataset, error)
}

// JobLog is the durable copy of terminal retrain job states.
type JobLog interface {
	Record(ctx context.Context, job domain.RetrainJob) error
	GetByID(ctx context.Context, jobID string) (*domain.RetrainJob, error)
}

// MetricsHistory stores per-version evaluation snapshots and the model registry.
type MetricsHistory interface {
	AppendSnapshot(ctx context.Context, snapshot domain.MetricsSnapshot) error
	AppendModel(ctx context.Context, record domain.ModelRecord) error
	LatestSnapshot(ctx context.Context) (*domain.MetricsSnapshot, error)
	LatestModel(ctx context.Context) (*domain.ModelRecord, error)
	ListModels(ctx context.Context) ([]domain.ModelRecord, error)
	Trend(ctx context.Context, limit int) ([]domain.VersionTrendPoint, error)
}

// SequenceModel runs a remote sequence-classification forward pass.
// The label map is the model config's id2label and may be empty.
type SequenceModel interface {
	Logits(ctx context.Context, text string) ([]float64, map[int]string, error)
}

// ModelEvents broadcasts newly published model versions between processes.
type ModelEvents interface {
	PublishModelPublished(ctx context.Context, version string) error
	SubscribeModelPublished(ctx context.Context, handler func(context.Context, string) error) error
}

// RetrainRunner executes one training run for a job.
type RetrainRunner interface {
	Run(ctx context.Context, req domain.RetrainRequest, progress func(int)) (*domain.RetrainResult, error)
}

// RetrainObserver receives job lifecycle signals for telemetry.
type RetrainObserver interface {
	JobSubmitted()
	JobFinished(status domain.JobStatus, duration time.Duration)
	QueueDepth(n int)
}

// PredictionObserver receives per-request prediction telemetry.
type PredictionObserver interface {
	ObservePrediction(backend string, duration time.Duration, err error)
}

// RetrainQueue accepts retrain requests and tracks in-flight jobs.
type RetrainQueue interface {
	Submit(ctx context.Context, req domain.RetrainRequest) (string, error)
	Status(jobID string) (domain.RetrainJob, error)
}

// DatasetParser turns an uploaded file into labeled rows using the active label schema.
type DatasetParser interface {
	Parse(r io.Reader, name string) ([]domain.LabeledText, error)
}

// ServingControl switches the serving backend and the served model version.
type ServingControl interface {
	Active() string
	SetActive(name string) error
	Reload(ctx context.Context, version string) (string, error)
}
