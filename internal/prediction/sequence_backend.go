package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

// SequenceBackend scores text with a remote sequence-classification model.
type SequenceBackend struct {
	model  ports.SequenceModel
	labels map[int]string
}

// NewSequenceBackend reads an optional id2label.json ({"0": "negative", ...});
// a missing file falls back to the model's own label map.
func NewSequenceBackend(model ports.SequenceModel, labelsPath string) (*SequenceBackend, error) {
	b := &SequenceBackend{model: model}
	if labelsPath == "" {
		return b, nil
	}
	raw, err := os.ReadFile(labelsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read id2label: %w", err)
	}
	var byString map[string]string
	if err := json.Unmarshal(raw, &byString); err != nil {
		return nil, fmt.Errorf("parse id2label: %w", err)
	}
	b.labels = make(map[int]string, len(byString))
	for k, v := range byString {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("parse id2label key %q: %w", k, err)
		}
		b.labels[id] = v
	}
	return b, nil
}

func (b *SequenceBackend) Name() string { return BackendTransformer }

func (b *SequenceBackend) Predict(ctx context.Context, text string) (*domain.Prediction, error) {
	logits, configLabels, err := b.model.Logits(ctx, text)
	if err != nil {
		if domain.IsKind(err, domain.ErrBackendUnavailable) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "sequence model", err)
	}
	if len(logits) == 0 {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "sequence model", errors.New("empty logits"))
	}
	return finalize(b.labelNames(len(logits), configLabels), softmax(logits), BackendTransformer), nil
}

// labelNames prefers the explicit table, then the model config, then the index.
func (b *SequenceBackend) labelNames(n int, configLabels map[int]string) []string {
	table := b.labels
	if len(table) == 0 {
		table = configLabels
	}
	names := make([]string, n)
	for i := range names {
		if name, ok := table[i]; ok && name != "" {
			names[i] = name
		} else {
			names[i] = strconv.Itoa(i)
		}
	}
	return names
}

func softmax(logits []float64) []float64 {
	logZ := floats.LogSumExp(logits)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - logZ)
	}
	return out
}
