package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
)

type CalibrationMethod string

const (
	CalibrationSkip     CalibrationMethod = "skip"
	CalibrationSigmoid  CalibrationMethod = "sigmoid"
	CalibrationIsotonic CalibrationMethod = "isotonic"
)

const (
	MinCalibrationSamples      = 10
	IsotonicCalibrationSamples = 200
)

// ChooseCalibration decides the calibration strategy before any fitting happens.
func ChooseCalibration(holdoutSize, classCount int) CalibrationMethod {
	switch {
	case classCount < 2 || holdoutSize < MinCalibrationSamples:
		return CalibrationSkip
	case holdoutSize >= IsotonicCalibrationSamples:
		return CalibrationIsotonic
	default:
		return CalibrationSigmoid
	}
}

// ClassCalibrator maps one raw decision score to a probability.
// Sigmoid uses A/B, isotonic uses the X/Y step knots.
type ClassCalibrator struct {
	A float64   `json:"a,omitempty"`
	B float64   `json:"b,omitempty"`
	X []float64 `json:"x,omitempty"`
	Y []float64 `json:"y,omitempty"`
}

// CalibratedClassifier wraps a prefit base model with one-vs-rest calibrators.
// Binary problems calibrate only the positive (second) class.
type CalibratedClassifier struct {
	Method      CalibrationMethod   `json:"method"`
	Base        *LogisticRegression `json:"base"`
	Calibrators []ClassCalibrator   `json:"calibrators"`
}

func (c *CalibratedClassifier) Classes() []string {
	return c.Base.Classes()
}

func (c *CalibratedClassifier) Predict(x SparseVector) string {
	return c.Classes()[argmax(c.PredictProba(x))]
}

func (c *CalibratedClassifier) PredictProba(x SparseVector) []float64 {
	scores := c.Base.Decision(x)
	k := len(scores)
	out := make([]float64, k)

	if k == 2 {
		p := c.apply(0, scores[1]-scores[0])
		out[0], out[1] = 1-p, p
		return out
	}

	sum := 0.0
	for i := range scores {
		out[i] = c.apply(i, scores[i])
		sum += out[i]
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1 / float64(k)
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func (c *CalibratedClassifier) apply(i int, score float64) float64 {
	cal := c.Calibrators[i]
	if c.Method == CalibrationIsotonic {
		return interpolate(cal.X, cal.Y, score)
	}
	return sigmoid(cal.A, cal.B, score)
}

func (c *CalibratedClassifier) calibratorCount() int {
	if c.Base == nil {
		return 0
	}
	if len(c.Base.Classes()) == 2 {
		return 1
	}
	return len(c.Base.Classes())
}

func (c *CalibratedClassifier) validate() error {
	if c.Base == nil {
		return errors.New("calibrated classifier: missing base model")
	}
	if err := c.Base.validate(); err != nil {
		return err
	}
	if c.Method != CalibrationSigmoid && c.Method != CalibrationIsotonic {
		return fmt.Errorf("calibrated classifier: unsupported method %q", c.Method)
	}
	if len(c.Calibrators) != c.calibratorCount() {
		return fmt.Errorf("calibrated classifier: expected %d calibrators, got %d", c.calibratorCount(), len(c.Calibrators))
	}
	for i, cal := range c.Calibrators {
		if err := cal.validate(c.Method); err != nil {
			return fmt.Errorf("calibrated classifier: calibrator %d: %w", i, err)
		}
	}
	return nil
}

func (cal ClassCalibrator) validate(method CalibrationMethod) error {
	if method == CalibrationSigmoid {
		if !finite(cal.A) || !finite(cal.B) {
			return errors.New("non-finite sigmoid parameters")
		}
		return nil
	}
	if len(cal.X) == 0 || len(cal.X) != len(cal.Y) {
		return fmt.Errorf("isotonic knots mismatch x=%d y=%d", len(cal.X), len(cal.Y))
	}
	for i := range cal.X {
		if !finite(cal.X[i]) || math.IsNaN(cal.Y[i]) || cal.Y[i] < 0 || cal.Y[i] > 1 {
			return fmt.Errorf("isotonic knot %d out of range", i)
		}
		if i > 0 && cal.X[i] < cal.X[i-1] {
			return fmt.Errorf("isotonic knots not sorted at %d", i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FitCalibrated fits calibrators on a holdout around a copy of the fitted base model.
func FitCalibrated(base *LogisticRegression, method CalibrationMethod, X []SparseVector, y []string) (*CalibratedClassifier, error) {
	if base == nil || len(base.Classes()) < 2 {
		return nil, errors.New("calibration: base model is not fitted")
	}
	if method != CalibrationSigmoid && method != CalibrationIsotonic {
		return nil, fmt.Errorf("calibration: unsupported method %q", method)
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("calibration: X/y mismatch: %d/%d", len(X), len(y))
	}

	index := make(map[string]int, len(base.Classes()))
	for i, c := range base.Classes() {
		index[c] = i
	}
	for _, label := range y {
		if _, ok := index[label]; !ok {
			return nil, fmt.Errorf("calibration: label %q not seen by base model", label)
		}
	}

	cc := &CalibratedClassifier{Method: method, Base: base.Clone()}
	k := len(base.Classes())
	decisions := make([][]float64, len(X))
	for i, x := range X {
		decisions[i] = cc.Base.Decision(x)
	}

	targets := make([]int, 0, k)
	if k == 2 {
		targets = append(targets, 1)
	} else {
		for c := 0; c < k; c++ {
			targets = append(targets, c)
		}
	}

	for _, c := range targets {
		scores := make([]float64, len(X))
		positives := make([]bool, len(X))
		for i := range X {
			if k == 2 {
				scores[i] = decisions[i][1] - decisions[i][0]
			} else {
				scores[i] = decisions[i][c]
			}
			positives[i] = index[y[i]] == c
		}

		var cal ClassCalibrator
		var err error
		if method == CalibrationIsotonic {
			cal, err = fitIsotonic(scores, positives)
		} else {
			cal, err = fitSigmoid(scores, positives)
		}
		if err != nil {
			return nil, fmt.Errorf("calibration: class %q: %w", base.Classes()[c], err)
		}
		cc.Calibrators = append(cc.Calibrators, cal)
	}
	return cc, nil
}

// fitSigmoid is Platt scaling with prior-smoothed targets.
func fitSigmoid(scores []float64, positives []bool) (ClassCalibrator, error) {
	nPos, nNeg := 0.0, 0.0
	for _, p := range positives {
		if p {
			nPos++
		} else {
			nNeg++
		}
	}
	hi := (nPos + 1) / (nPos + 2)
	lo := 1 / (nNeg + 2)
	t := make([]float64, len(scores))
	for i, p := range positives {
		if p {
			t[i] = hi
		} else {
			t[i] = lo
		}
	}

	lossGrad := func(ab, grad []float64) float64 {
		a, b := ab[0], ab[1]
		loss, ga, gb := 0.0, 0.0, 0.0
		for i, f := range scores {
			// P = 1 / (1 + exp(a*f + b))
			z := a*f + b
			p := sigmoid(a, b, f)
			// log(1+exp(z)) computed stably.
			softplus := math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
			loss += t[i]*softplus + (1-t[i])*(softplus-z)
			d := t[i] - p
			ga += d * f
			gb += d
		}
		if grad != nil {
			grad[0], grad[1] = ga, gb
		}
		return loss
	}

	problem := optimize.Problem{
		Func: func(ab []float64) float64 { return lossGrad(ab, nil) },
		Grad: func(grad, ab []float64) { lossGrad(ab, grad) },
	}
	init := []float64{0, math.Log((nNeg + 1) / (nPos + 1))}
	result, err := optimize.Minimize(problem, init, &optimize.Settings{MajorIterations: 100}, &optimize.BFGS{})
	if result == nil || math.IsNaN(result.X[0]) || math.IsNaN(result.X[1]) {
		if err == nil {
			err = errors.New("non-finite parameters")
		}
		return ClassCalibrator{}, fmt.Errorf("sigmoid fit: %w", err)
	}
	return ClassCalibrator{A: result.X[0], B: result.X[1]}, nil
}

func sigmoid(a, b, f float64) float64 {
	z := a*f + b
	if z >= 0 {
		e := math.Exp(-z)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(z))
}

// fitIsotonic runs pool-adjacent-violators for a non-decreasing fit.
func fitIsotonic(scores []float64, positives []bool) (ClassCalibrator, error) {
	if len(scores) == 0 {
		return ClassCalibrator{}, errors.New("isotonic fit: no samples")
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] < scores[order[j]] })

	type block struct {
		x      []float64
		sum    float64
		weight float64
	}
	blocks := make([]block, 0, len(scores))
	for pos := 0; pos < len(order); {
		x := scores[order[pos]]
		b := block{x: []float64{x}}
		for pos < len(order) && scores[order[pos]] == x {
			if positives[order[pos]] {
				b.sum++
			}
			b.weight++
			pos++
		}
		blocks = append(blocks, b)
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.sum/prev.weight <= last.sum/last.weight {
				break
			}
			prev.x = append(prev.x, last.x...)
			prev.sum += last.sum
			prev.weight += last.weight
			blocks = blocks[:len(blocks)-1]
			blocks[len(blocks)-1] = prev
		}
	}

	cal := ClassCalibrator{}
	for _, b := range blocks {
		v := b.sum / b.weight
		for _, x := range b.x {
			cal.X = append(cal.X, x)
			cal.Y = append(cal.Y, v)
		}
	}
	return cal, nil
}

// interpolate evaluates the piecewise-linear isotonic fit, clipping out-of-range inputs.
func interpolate(xs, ys []float64, x float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if x <= xs[0] {
		return ys[0]
	}
	last := len(xs) - 1
	if x >= xs[last] {
		return ys[last]
	}
	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		return ys[i]
	}
	x0, x1 := xs[i-1], xs[i]
	y0, y1 := ys[i-1], ys[i]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
