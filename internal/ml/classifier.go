package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Classifier predicts a hard label for one vectorized document.
type Classifier interface {
	Classes() []string
	Predict(x SparseVector) string
}

// ProbabilisticClassifier additionally exposes a per-class distribution in Classes() order.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(x SparseVector) []float64
}

// DecisionClassifier exposes raw per-class scores, used by calibration.
type DecisionClassifier interface {
	ProbabilisticClassifier
	Decision(x SparseVector) []float64
}

const (
	KindLogisticRegression = "logistic_regression"
	KindCalibrated         = "calibrated"
)

type classifierEnvelope struct {
	Kind  string          `json:"kind"`
	Model json.RawMessage `json:"model"`
}

// EncodeClassifier serializes a fitted classifier into a tagged JSON envelope.
func EncodeClassifier(c Classifier) ([]byte, error) {
	var kind string
	switch c.(type) {
	case *LogisticRegression:
		kind = KindLogisticRegression
	case *CalibratedClassifier:
		kind = KindCalibrated
	default:
		return nil, fmt.Errorf("encode classifier: unsupported type %T", c)
	}
	model, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode classifier: %w", err)
	}
	return json.Marshal(classifierEnvelope{Kind: kind, Model: model})
}

func DecodeClassifier(data []byte) (Classifier, error) {
	var env classifierEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode classifier envelope: %w", err)
	}
	if len(env.Model) == 0 {
		return nil, errors.New("decode classifier: empty model payload")
	}

	switch env.Kind {
	case KindLogisticRegression:
		var lr LogisticRegression
		if err := json.Unmarshal(env.Model, &lr); err != nil {
			return nil, fmt.Errorf("decode logistic regression: %w", err)
		}
		if err := lr.validate(); err != nil {
			return nil, err
		}
		return &lr, nil
	case KindCalibrated:
		var cc CalibratedClassifier
		if err := json.Unmarshal(env.Model, &cc); err != nil {
			return nil, fmt.Errorf("decode calibrated classifier: %w", err)
		}
		if err := cc.validate(); err != nil {
			return nil, err
		}
		return &cc, nil
	default:
		return nil, fmt.Errorf("decode classifier: unknown kind %q", env.Kind)
	}
}

// CheckCompatible reports whether c was trained on the feature space of v.
func CheckCompatible(c Classifier, v *TFIDFVectorizer) error {
	var base *LogisticRegression
	switch m := c.(type) {
	case *LogisticRegression:
		base = m
	case *CalibratedClassifier:
		base = m.Base
	default:
		return fmt.Errorf("check classifier: unsupported type %T", c)
	}
	if base == nil {
		return errors.New("check classifier: missing base model")
	}
	if got, want := base.NumFeatures(), v.NumFeatures(); got != want {
		return fmt.Errorf("classifier has %d features, vectorizer has %d", got, want)
	}
	return nil
}

// UniqueLabels returns the sorted distinct labels.
func UniqueLabels(y []string) []string {
	seen := make(map[string]struct{}, 8)
	out := make([]string, 0, 8)
	for _, label := range y {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// LabelCounts counts occurrences per label.
func LabelCounts(y []string) map[string]int {
	out := make(map[string]int, 8)
	for _, label := range y {
		out[label]++
	}
	return out
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
