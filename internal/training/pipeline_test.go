package training

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/ml"
)

type fakeStorage struct {
	files map[string][]byte
}

func (f *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.files[key] = raw
	return nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.files[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fakeLedger struct {
	corrected []domain.LabeledText
	err       error
}

func (f *fakeLedger) Append(context.Context, *domain.FeedbackRecord) error { return nil }
func (f *fakeLedger) ListCorrected(context.Context) ([]domain.LabeledText, error) {
	return f.corrected, f.err
}
func (f *fakeLedger) ListUncertain(context.Context, float64, int) ([]domain.FeedbackRecord, error) {
	return nil, nil
}
func (f *fakeLedger) ListRecent(context.Context, int) ([]domain.FeedbackRecord, error) {
	return nil, nil
}

type savedVersion struct {
	artifact   ml.Classifier
	vectorizer *ml.TFIDFVectorizer
	meta       domain.VersionMetadata
}

type fakeVersionStore struct {
	mu    sync.Mutex
	saved []savedVersion
}

func (f *fakeVersionStore) ListVersions(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.saved))
	for _, s := range f.saved {
		out = append(out, s.meta.Version)
	}
	return out, nil
}

func (f *fakeVersionStore) SaveNewVersion(_ context.Context, artifact ml.Classifier, vec *ml.TFIDFVectorizer, meta domain.VersionMetadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta.Version = fmt.Sprintf("v%d", len(f.saved)+1)
	f.saved = append(f.saved, savedVersion{artifact: artifact, vectorizer: vec, meta: meta})
	return meta.Version, nil
}

func (f *fakeVersionStore) Load(context.Context, string) (*domain.ModelVersion, error) {
	return nil, domain.ErrModelNotFound
}

type fakeHistory struct {
	snapshots []domain.MetricsSnapshot
	models    []domain.ModelRecord
	err       error
}

func (f *fakeHistory) AppendSnapshot(_ context.Context, s domain.MetricsSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snapshots = append(f.snapshots, s)
	return nil
}
func (f *fakeHistory) AppendModel(_ context.Context, r domain.ModelRecord) error {
	f.models = append(f.models, r)
	return nil
}
func (f *fakeHistory) LatestSnapshot(context.Context) (*domain.MetricsSnapshot, error) {
	return nil, nil
}
func (f *fakeHistory) LatestModel(context.Context) (*domain.ModelRecord, error) { return nil, nil }
func (f *fakeHistory) ListModels(context.Context) ([]domain.ModelRecord, error) {
	return f.models, nil
}
func (f *fakeHistory) Trend(context.Context, int) ([]domain.VersionTrendPoint, error) {
	return nil, nil
}

func twoClassCSV(header string, n int) []byte {
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			fmt.Fprintf(&b, "\"I really love this product, number %d\",positive\n", i)
		} else {
			fmt.Fprintf(&b, "\"Awful experience and bad support, case %d\",negative\n", i)
		}
	}
	return []byte(b.String())
}

func newTestPipeline(files map[string][]byte, ledger *fakeLedger) (*Pipeline, *fakeVersionStore, *fakeHistory) {
	store := &fakeVersionStore{}
	history := &fakeHistory{}
	if ledger == nil {
		ledger = &fakeLedger{}
	}
	p := NewPipeline(&fakeStorage{files: files}, ledger, store, history, nil, nil, DefaultConfig(), nil)
	return p, store, history
}

func TestPipelineRunEndToEndTwoClasses(t *testing.T) {
	p, store, history := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV("text,sentiment", 100),
	}, nil)

	var progress []int
	res, err := p.Run(context.Background(), domain.RetrainRequest{JobID: "job_1", DatasetPath: "data.csv"}, func(v int) {
		progress = append(progress, v)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Version != "v1" {
		t.Fatalf("expected v1, got %s", res.Version)
	}
	for name, v := range map[string]float64{
		"accuracy":  res.Metrics.Accuracy,
		"f1":        res.Metrics.F1,
		"precision": res.Metrics.Precision,
		"recall":    res.Metrics.Recall,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("%s out of range: %f", name, v)
		}
	}

	want := []int{ProgressIngested, ProgressPrepared, ProgressFitted, ProgressEvaluated, ProgressPersisted}
	if fmt.Sprint(progress) != fmt.Sprint(want) {
		t.Fatalf("unexpected progress sequence %v", progress)
	}

	if len(store.saved) != 1 || store.saved[0].meta.Samples != 100 {
		t.Fatalf("expected one saved version with 100 samples, got %+v", store.saved)
	}
	if _, ok := store.saved[0].artifact.(*ml.CalibratedClassifier); !ok {
		t.Fatalf("expected calibrated artifact for 100 rows, got %T", store.saved[0].artifact)
	}
	if len(history.snapshots) != 1 || len(history.models) != 1 {
		t.Fatalf("expected one snapshot and one model record, got %d/%d", len(history.snapshots), len(history.models))
	}
	snap := history.snapshots[0]
	if snap.Version != "v1" || snap.Samples != 100 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Evaluation.Confusion.Labels) != 2 || len(snap.Evaluation.ConfidenceDist.Counts) != 10 {
		t.Fatalf("unexpected evaluation shape %+v", snap.Evaluation)
	}
	if len(snap.Evaluation.PRCurves) != 2 || len(snap.Evaluation.AUCPerClass) != 2 {
		t.Fatalf("expected per-class curves, got %+v", snap.Evaluation)
	}
}

func TestPipelineRunMissingLabelColumn(t *testing.T) {
	p, store, _ := newTestPipeline(map[string][]byte{
		"data.csv": []byte("text,score\nhello there,5\n"),
	}, nil)

	_, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv"}, nil)
	if !errors.Is(err, domain.ErrMissingLabelColumn) {
		t.Fatalf("expected missing label column error, got %v", err)
	}
	if !strings.Contains(err.Error(), "sentiment") || !strings.Contains(err.Error(), "score") {
		t.Fatalf("expected message to name the missing and found columns, got %q", err.Error())
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected no version to be saved")
	}
}

func TestPipelineRunAcceptsLabelSynonym(t *testing.T) {
	p, _, _ := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV(" Text , Label ", 20),
	}, nil)

	if _, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv"}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestPipelineRunSingleClassFails(t *testing.T) {
	p, store, _ := newTestPipeline(map[string][]byte{
		"data.csv": []byte("text,sentiment\ngood,positive\nfine,positive\nnice,positive\n"),
	}, nil)

	if _, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv"}, nil); err == nil {
		t.Fatalf("expected error for single-class dataset")
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected no version to be saved")
	}
}

func TestPipelineRunSkipsCalibrationOnTinyDataset(t *testing.T) {
	p, store, _ := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV("text,sentiment", 6),
	}, nil)

	if _, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv"}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := store.saved[0].artifact.(*ml.LogisticRegression); !ok {
		t.Fatalf("expected uncalibrated base model, got %T", store.saved[0].artifact)
	}
}

func TestPipelineRunMergesCorrectedFeedback(t *testing.T) {
	ledger := &fakeLedger{corrected: []domain.LabeledText{
		{Text: "it is okay I guess", Sentiment: "neutral"},
		{Text: "nothing special, okay", Sentiment: "neutral"},
		{Text: "ignored row", Sentiment: " "},
	}}
	p, store, _ := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV("text,sentiment", 20),
	}, ledger)

	if _, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv", IncludeFeedbacks: true}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	classes := store.saved[0].artifact.Classes()
	if strings.Join(classes, ",") != "negative,neutral,positive" {
		t.Fatalf("expected feedback label to be learned, got %v", classes)
	}
	if store.saved[0].meta.Samples != 22 {
		t.Fatalf("expected 22 samples, got %d", store.saved[0].meta.Samples)
	}
}

func TestPipelineRunIgnoresEmptyFeedback(t *testing.T) {
	p, store, _ := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV("text,sentiment", 20),
	}, &fakeLedger{})

	if _, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv", IncludeFeedbacks: true}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.saved[0].meta.Samples != 20 {
		t.Fatalf("expected 20 samples, got %d", store.saved[0].meta.Samples)
	}
}

func TestPipelineRunUnknownBaseVersion(t *testing.T) {
	p, _, _ := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV("text,sentiment", 20),
	}, nil)

	_, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv", BaseVersion: "v9"}, nil)
	if !errors.Is(err, domain.ErrModelNotFound) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestPipelineRunHistoryFailureIsFatal(t *testing.T) {
	p, store, history := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV("text,sentiment", 20),
	}, nil)
	history.err = errors.New("db down")

	if _, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "data.csv"}, nil); err == nil {
		t.Fatalf("expected error when metrics history is unavailable")
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected the saved version to stay in the store")
	}
}

func TestPipelineRunReadsXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"text", "sentiments"}); err != nil {
		t.Fatalf("SetSheetRow() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		row := []interface{}{fmt.Sprintf("lovely stuff %d", i), "positive"}
		if i%2 == 1 {
			row = []interface{}{fmt.Sprintf("broken junk %d", i), "negative"}
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	p, store, _ := newTestPipeline(map[string][]byte{"upload.xlsx": buf.Bytes()}, nil)
	if _, err := p.Run(context.Background(), domain.RetrainRequest{DatasetPath: "upload.xlsx"}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.saved[0].meta.Samples != 20 {
		t.Fatalf("expected 20 samples, got %d", store.saved[0].meta.Samples)
	}
}

func TestPipelineRunHonoursCancellation(t *testing.T) {
	p, store, _ := newTestPipeline(map[string][]byte{
		"data.csv": twoClassCSV("text,sentiment", 20),
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Run(ctx, domain.RetrainRequest{DatasetPath: "data.csv"}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected no version to be saved")
	}
}
