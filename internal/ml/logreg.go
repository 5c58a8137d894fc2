package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is a multinomial (softmax) linear classifier with L2 penalty.
type LogisticRegression struct {
	C         float64     `json:"c"`
	MaxIter   int         `json:"max_iter"`
	Labels    []string    `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

func NewLogisticRegression(c float64, maxIter int) *LogisticRegression {
	if c <= 0 {
		c = 1.0
	}
	if maxIter <= 0 {
		maxIter = 300
	}
	return &LogisticRegression{C: c, MaxIter: maxIter}
}

func (m *LogisticRegression) Classes() []string {
	return m.Labels
}

// Fit minimises mean cross-entropy + ||W||^2 / (2*C*n) with LBFGS.
func (m *LogisticRegression) Fit(X []SparseVector, y []string, nFeatures int) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("logistic regression: X/y mismatch: %d/%d", len(X), len(y))
	}
	if nFeatures <= 0 {
		return errors.New("logistic regression: no features")
	}
	classes := UniqueLabels(y)
	if len(classes) < 2 {
		return fmt.Errorf("logistic regression: needs at least 2 classes, got %d", len(classes))
	}

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	target := make([]int, len(y))
	for i, label := range y {
		target[i] = index[label]
	}

	k := len(classes)
	d := nFeatures
	n := float64(len(X))
	reg := 1.0 / (m.C * n)

	lossGrad := func(params, grad []float64) float64 {
		if grad != nil {
			for i := range grad {
				grad[i] = 0
			}
		}
		logits := make([]float64, k)
		loss := 0.0
		for i, x := range X {
			for c := 0; c < k; c++ {
				logits[c] = x.Dot(params[c*d:(c+1)*d]) + params[k*d+c]
			}
			logZ := floats.LogSumExp(logits)
			loss -= logits[target[i]] - logZ
			if grad == nil {
				continue
			}
			for c := 0; c < k; c++ {
				p := math.Exp(logits[c] - logZ)
				if c == target[i] {
					p -= 1
				}
				p /= n
				row := grad[c*d : (c+1)*d]
				for j, idx := range x.Indices {
					row[idx] += p * x.Values[j]
				}
				grad[k*d+c] += p
			}
		}
		loss /= n

		weights := params[:k*d]
		loss += 0.5 * reg * floats.Dot(weights, weights)
		if grad != nil {
			floats.AddScaled(grad[:k*d], reg, weights)
		}
		return loss
	}

	problem := optimize.Problem{
		Func: func(params []float64) float64 { return lossGrad(params, nil) },
		Grad: func(grad, params []float64) { lossGrad(params, grad) },
	}
	settings := &optimize.Settings{
		MajorIterations:   m.MaxIter,
		GradientThreshold: 1e-6,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 25,
		},
	}

	init := make([]float64, k*(d+1))
	result, err := optimize.Minimize(problem, init, settings, &optimize.LBFGS{})
	if result == nil || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		if err == nil {
			err = errors.New("non-finite objective")
		}
		return fmt.Errorf("logistic regression: optimize: %w", err)
	}
	// Line-search stalls still leave a usable iterate.

	m.Labels = classes
	m.Coef = make([][]float64, k)
	for c := 0; c < k; c++ {
		m.Coef[c] = append([]float64(nil), result.X[c*d:(c+1)*d]...)
	}
	m.Intercept = append([]float64(nil), result.X[k*d:]...)
	return nil
}

func (m *LogisticRegression) Decision(x SparseVector) []float64 {
	out := make([]float64, len(m.Labels))
	for c := range m.Labels {
		out[c] = x.Dot(m.Coef[c]) + m.Intercept[c]
	}
	return out
}

func (m *LogisticRegression) PredictProba(x SparseVector) []float64 {
	logits := m.Decision(x)
	logZ := floats.LogSumExp(logits)
	for i := range logits {
		logits[i] = math.Exp(logits[i] - logZ)
	}
	return logits
}

func (m *LogisticRegression) Predict(x SparseVector) string {
	return m.Labels[argmax(m.Decision(x))]
}

// Clone returns an independent copy of the fitted parameters.
func (m *LogisticRegression) Clone() *LogisticRegression {
	out := &LogisticRegression{
		C:         m.C,
		MaxIter:   m.MaxIter,
		Labels:    append([]string(nil), m.Labels...),
		Intercept: append([]float64(nil), m.Intercept...),
		Coef:      make([][]float64, len(m.Coef)),
	}
	for i, row := range m.Coef {
		out.Coef[i] = append([]float64(nil), row...)
	}
	return out
}

func (m *LogisticRegression) validate() error {
	if len(m.Labels) < 2 {
		return errors.New("logistic regression: fewer than 2 classes")
	}
	if len(m.Coef) != len(m.Labels) || len(m.Intercept) != len(m.Labels) {
		return fmt.Errorf("logistic regression: shape mismatch classes=%d coef=%d intercept=%d", len(m.Labels), len(m.Coef), len(m.Intercept))
	}
	for c, row := range m.Coef {
		if len(row) != len(m.Coef[0]) {
			return fmt.Errorf("logistic regression: coef row %d has %d features, want %d", c, len(row), len(m.Coef[0]))
		}
	}
	return nil
}

// NumFeatures is the coefficient width.
func (m *LogisticRegression) NumFeatures() int {
	if len(m.Coef) == 0 {
		return 0
	}
	return len(m.Coef[0])
}
