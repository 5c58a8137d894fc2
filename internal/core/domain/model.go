package domain

import (
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/ml"
)

// ModelVersion is an immutable bundle loaded from the version store.
type ModelVersion struct {
	VersionID   string
	BaseVersion string
	Artifact    ml.Classifier
	Vectorizer  *ml.TFIDFVectorizer
	Metadata    VersionMetadata
}

// VersionMetadata is the metadata.json document stored next to every version.
type VersionMetadata struct {
	Version     string       `json:"version"`
	BaseVersion string       `json:"base_version,omitempty"`
	Metrics     BasicMetrics `json:"metrics"`
	CreatedAt   time.Time    `json:"created_at"`
	Samples     int          `json:"n_samples,omitempty"`
}

// ModelRecord is the registry entry appended after every successful retrain.
type ModelRecord struct {
	Version      string       `json:"version"`
	BaseVersion  string       `json:"base_version,omitempty"`
	Metrics      BasicMetrics `json:"metrics"`
	CreatedAt    time.Time    `json:"created_at"`
	ArtifactPath string       `json:"artifact_path,omitempty"`
}
