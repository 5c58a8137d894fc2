package prediction

import (
	"context"
	"math"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

const (
	BackendPipeline    = "pipeline"
	BackendTransformer = "transformer"
)

// Backend scores one text.
type Backend interface {
	Name() string
	Predict(ctx context.Context, text string) (*domain.Prediction, error)
}

// finalize rescales percentage-style outputs, picks the argmax label in class
// order (first wins on ties) and clamps the confidence to [0,1].
func finalize(classes []string, probs []float64, version string) *domain.Prediction {
	scaled := append([]float64(nil), probs...)
	for _, p := range probs {
		if p > 1 {
			for i := range scaled {
				scaled[i] /= 100
			}
			break
		}
	}

	out := &domain.Prediction{
		Probabilities: make(map[string]float64, len(classes)),
		ModelVersion:  version,
	}
	best := -1
	for i, label := range classes {
		out.Probabilities[label] = scaled[i]
		if best < 0 || scaled[i] > scaled[best] {
			best = i
		}
	}
	if best >= 0 {
		out.Label = classes[best]
		out.Confidence = clamp01(scaled[best])
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
