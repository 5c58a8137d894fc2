package ml

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

func Accuracy(yTrue, yPred []string) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// WeightedScores returns support-weighted precision, recall and F1 over the
// labels present in yTrue or yPred. Undefined ratios count as 0.
func WeightedScores(yTrue, yPred []string) (precision, recall, f1 float64) {
	if len(yTrue) == 0 {
		return 0, 0, 0
	}
	labels := UniqueLabels(append(append([]string(nil), yTrue...), yPred...))
	tp := make(map[string]float64, len(labels))
	predicted := make(map[string]float64, len(labels))
	support := make(map[string]float64, len(labels))
	for i := range yTrue {
		support[yTrue[i]]++
		predicted[yPred[i]]++
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
		}
	}

	total := float64(len(yTrue))
	for _, l := range labels {
		w := support[l] / total
		if w == 0 {
			continue
		}
		p := safeDiv(tp[l], predicted[l])
		r := safeDiv(tp[l], support[l])
		precision += w * p
		recall += w * r
		f1 += w * safeDiv(2*p*r, p+r)
	}
	return precision, recall, f1
}

// ConfusionMatrix counts rows=true label, cols=predicted label in the given order.
func ConfusionMatrix(yTrue, yPred, labels []string) [][]int {
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	m := make([][]int, len(labels))
	for i := range m {
		m[i] = make([]int, len(labels))
	}
	for i := range yTrue {
		r, okR := index[yTrue[i]]
		c, okC := index[yPred[i]]
		if okR && okC {
			m[r][c]++
		}
	}
	return m
}

// PrecisionRecallCurve follows the usual convention: thresholds ascending,
// recall non-increasing, a final (precision=1, recall=0) point appended.
func PrecisionRecallCurve(positives []bool, scores []float64) (precision, recall, thresholds []float64, err error) {
	if len(positives) == 0 || len(positives) != len(scores) {
		return nil, nil, nil, fmt.Errorf("pr curve: labels/scores mismatch: %d/%d", len(positives), len(scores))
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	var tps, fps, thr []float64
	tp, fp := 0.0, 0.0
	for pos, idx := range order {
		if positives[idx] {
			tp++
		} else {
			fp++
		}
		if pos == len(order)-1 || scores[order[pos+1]] != scores[idx] {
			tps = append(tps, tp)
			fps = append(fps, fp)
			thr = append(thr, scores[idx])
		}
	}

	totalPos := tps[len(tps)-1]
	last := len(tps) - 1
	for i, v := range tps {
		if v == totalPos {
			last = i
			break
		}
	}

	for i := last; i >= 0; i-- {
		precision = append(precision, tps[i]/(tps[i]+fps[i]))
		if totalPos == 0 {
			recall = append(recall, 1)
		} else {
			recall = append(recall, tps[i]/totalPos)
		}
		thresholds = append(thresholds, thr[i])
	}
	precision = append(precision, 1)
	recall = append(recall, 0)
	return precision, recall, thresholds, nil
}

var ErrSingleClass = errors.New("only one label present")

// ROCAUC is the area under the ROC curve for one-vs-rest scores.
func ROCAUC(positives []bool, scores []float64) (float64, error) {
	if len(positives) == 0 || len(positives) != len(scores) {
		return 0, fmt.Errorf("roc auc: labels/scores mismatch: %d/%d", len(positives), len(scores))
	}
	nPos := 0
	for _, p := range positives {
		if p {
			nPos++
		}
	}
	if nPos == 0 || nPos == len(positives) {
		return 0, ErrSingleClass
	}

	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), positives...)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)

	type point struct{ fpr, tpr float64 }
	pts := make([]point, len(tpr))
	for i := range tpr {
		pts[i] = point{fpr: fpr[i], tpr: tpr[i]}
	}
	sort.SliceStable(pts, func(i, j int) bool {
		if pts[i].fpr != pts[j].fpr {
			return pts[i].fpr < pts[j].fpr
		}
		return pts[i].tpr < pts[j].tpr
	})
	xs := make([]float64, len(pts))
	fs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], fs[i] = p.fpr, p.tpr
	}
	if len(xs) < 2 {
		return 0, errors.New("roc auc: degenerate curve")
	}
	return integrate.Trapezoidal(xs, fs), nil
}

// ConfidenceHistogram bins max-class probabilities into `bins` equal-width
// buckets over [0,1] and reports the share below 0.5.
func ConfidenceHistogram(confidences []float64, bins int) (edges []float64, counts []int, pctBelowHalf float64) {
	if bins <= 0 {
		bins = 10
	}
	edges = make([]float64, bins+1)
	for i := range edges {
		edges[i] = float64(i) / float64(bins)
	}
	counts = make([]int, bins)
	below := 0
	for _, c := range confidences {
		if c < 0.5 {
			below++
		}
		if c < 0 || c > 1 {
			continue
		}
		idx := int(c * float64(bins))
		if idx == bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	if len(confidences) > 0 {
		pctBelowHalf = float64(below) / float64(len(confidences))
	}
	return edges, counts, pctBelowHalf
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
