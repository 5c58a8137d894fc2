package prediction

import (
	"context"
	"strings"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/ml"
)

// PipelineBackend serves the vectorizer + classifier bundle from the registry.
type PipelineBackend struct {
	registry *Registry
}

func NewPipelineBackend(registry *Registry) *PipelineBackend {
	return &PipelineBackend{registry: registry}
}

func (b *PipelineBackend) Name() string { return BackendPipeline }

func (b *PipelineBackend) Predict(ctx context.Context, text string) (*domain.Prediction, error) {
	mv, err := b.registry.Current(ctx)
	if err != nil {
		return nil, err
	}
	x := mv.Vectorizer.TransformOne(strings.ToLower(text))
	classes := mv.Artifact.Classes()

	var probs []float64
	if pc, ok := mv.Artifact.(ml.ProbabilisticClassifier); ok {
		probs = pc.PredictProba(x)
	} else {
		// Hard-label models report the predicted class with probability 1.
		probs = make([]float64, len(classes))
		label := mv.Artifact.Predict(x)
		for i, c := range classes {
			if c == label {
				probs[i] = 1
			}
		}
	}
	return finalize(classes, probs, mv.VersionID), nil
}
