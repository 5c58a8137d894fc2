package ml

import (
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"
)

// SparseVector is a row of the document-term matrix. Indices are sorted ascending.
type SparseVector struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

func (v SparseVector) Dot(dense []float64) float64 {
	sum := 0.0
	for i, idx := range v.Indices {
		if idx < len(dense) {
			sum += v.Values[i] * dense[idx]
		}
	}
	return sum
}

// TFIDFVectorizer mirrors the usual bag-of-n-grams term weighting:
// raw counts, smoothed idf, L2-normalised rows.
type TFIDFVectorizer struct {
	MaxFeatures int            `json:"max_features"`
	NGramMin    int            `json:"ngram_min"`
	NGramMax    int            `json:"ngram_max"`
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
}

func NewTFIDFVectorizer(maxFeatures, ngramMin, ngramMax int) *TFIDFVectorizer {
	if ngramMin <= 0 {
		ngramMin = 1
	}
	if ngramMax < ngramMin {
		ngramMax = ngramMin
	}
	return &TFIDFVectorizer{
		MaxFeatures: maxFeatures,
		NGramMin:    ngramMin,
		NGramMax:    ngramMax,
	}
}

func (v *TFIDFVectorizer) NumFeatures() int {
	return len(v.IDF)
}

func (v *TFIDFVectorizer) Fitted() bool {
	return len(v.Vocabulary) > 0 && len(v.Vocabulary) == len(v.IDF)
}

func (v *TFIDFVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.New("tfidf: empty corpus")
	}

	termFreq := make(map[string]int, 1024)
	docFreq := make(map[string]int, 1024)
	analyzed := make([][]string, len(docs))
	for i, doc := range docs {
		terms := v.analyze(doc)
		analyzed[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			termFreq[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				docFreq[term]++
			}
		}
	}
	if len(termFreq) == 0 {
		return errors.New("tfidf: empty vocabulary; documents contain no terms")
	}

	terms := make([]string, 0, len(termFreq))
	for term := range termFreq {
		terms = append(terms, term)
	}
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if termFreq[terms[i]] != termFreq[terms[j]] {
				return termFreq[terms[i]] > termFreq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.Vocabulary = make(map[string]int, len(terms))
	v.IDF = make([]float64, len(terms))
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return nil
}

func (v *TFIDFVectorizer) Transform(docs []string) []SparseVector {
	out := make([]SparseVector, len(docs))
	for i, doc := range docs {
		out[i] = v.TransformOne(doc)
	}
	return out
}

func (v *TFIDFVectorizer) TransformOne(doc string) SparseVector {
	counts := make(map[int]float64, 32)
	for _, term := range v.analyze(doc) {
		if idx, ok := v.Vocabulary[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	norm := 0.0
	for i, idx := range indices {
		w := counts[idx] * v.IDF[idx]
		values[i] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range values {
			values[i] /= norm
		}
	}
	return SparseVector{Indices: indices, Values: values}
}

func (v *TFIDFVectorizer) FitTransform(docs []string) ([]SparseVector, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs), nil
}

func (v *TFIDFVectorizer) analyze(doc string) []string {
	tokens := tokenize(doc)
	if len(tokens) == 0 {
		return nil
	}
	minN, maxN := v.NGramMin, v.NGramMax
	if minN <= 0 {
		minN = 1
	}
	if maxN < minN {
		maxN = minN
	}

	out := make([]string, 0, len(tokens)*(maxN-minN+1))
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			if n == 1 {
				out = append(out, tokens[i])
				continue
			}
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// tokenize lowercases and keeps word tokens of two or more characters.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	runes := 0
	flush := func() {
		if runes >= 2 {
			out = append(out, b.String())
		}
		b.Reset()
		runes = 0
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			runes++
			continue
		}
		flush()
	}
	flush()
	return out
}
