package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
	"github.com/kirillkom/sentiment-retrainer/internal/ml"
)

const (
	ProgressIngested   = 5
	ProgressPrepared   = 25
	ProgressFitted     = 70
	ProgressEvaluated  = 90
	ProgressPersisted  = 100
	confidenceHistBins = 10
)

type Config struct {
	MaxFeatures  int
	NGramMin     int
	NGramMax     int
	C            float64
	MaxIter      int
	HoldoutShare float64
	Seed         uint64
}

func DefaultConfig() Config {
	return Config{
		MaxFeatures:  3000,
		NGramMin:     1,
		NGramMax:     2,
		C:            1.0,
		MaxIter:      300,
		HoldoutShare: 0.2,
		Seed:         42,
	}
}

// Pipeline turns a dataset (plus optional corrected feedback) into a new model version.
type Pipeline struct {
	storage ports.ObjectStorage
	ledger  ports.FeedbackLedger
	store   ports.VersionStore
	history ports.MetricsHistory
	events  ports.ModelEvents
	schema  *SchemaSource
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewPipeline(
	storage ports.ObjectStorage,
	ledger ports.FeedbackLedger,
	store ports.VersionStore,
	history ports.MetricsHistory,
	events ports.ModelEvents,
	schema *SchemaSource,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if schema == nil {
		schema, _ = NewSchemaSource("", logger)
	}
	return &Pipeline{
		storage: storage,
		ledger:  ledger,
		store:   store,
		history: history,
		events:  events,
		schema:  schema,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// artifactLocator is implemented by stores that can report where a version lives.
type artifactLocator interface {
	Path(version string) string
}

func (p *Pipeline) Run(ctx context.Context, req domain.RetrainRequest, progress func(int)) (*domain.RetrainResult, error) {
	if progress == nil {
		progress = func(int) {}
	}
	log := p.logger.With("job_id", req.JobID)

	progress(ProgressIngested)
	if err := p.checkBaseVersion(ctx, req.BaseVersion); err != nil {
		return nil, err
	}
	rows, err := p.ingest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ingest dataset: %w", err)
	}
	if req.IncludeFeedbacks {
		rows, err = p.mergeFeedback(ctx, rows, log)
		if err != nil {
			return nil, fmt.Errorf("merge feedback: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest dataset", errors.New("no labeled rows"))
	}

	texts, labels := preprocess(rows)
	progress(ProgressPrepared)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectorizer := ml.NewTFIDFVectorizer(p.cfg.MaxFeatures, p.cfg.NGramMin, p.cfg.NGramMax)
	X, err := vectorizer.FitTransform(texts)
	if err != nil {
		return nil, fmt.Errorf("vectorize: %w", err)
	}
	base := ml.NewLogisticRegression(p.cfg.C, p.cfg.MaxIter)
	if err := base.Fit(X, labels, vectorizer.NumFeatures()); err != nil {
		return nil, fmt.Errorf("fit base model: %w", err)
	}
	model := p.calibrate(base, X, labels, log)
	progress(ProgressFitted)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	evaluation, err := p.evaluate(model, X, labels, log)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	progress(ProgressEvaluated)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	version, err := p.persist(ctx, req, model, vectorizer, evaluation, len(rows))
	if err != nil {
		return nil, err
	}
	progress(ProgressPersisted)

	log.Info("retrain_pipeline_completed",
		"version", version,
		"samples", len(rows),
		"accuracy", evaluation.Accuracy,
		"f1", evaluation.F1,
	)
	return &domain.RetrainResult{Metrics: evaluation.BasicMetrics, Version: version}, nil
}

func (p *Pipeline) checkBaseVersion(ctx context.Context, base string) error {
	if base == "" {
		return nil
	}
	versions, err := p.store.ListVersions(ctx)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	for _, v := range versions {
		if v == base {
			return nil
		}
	}
	return domain.WrapError(domain.ErrModelNotFound, "check base version", fmt.Errorf("version %q", base))
}

func (p *Pipeline) ingest(ctx context.Context, req domain.RetrainRequest) ([]domain.LabeledText, error) {
	if strings.TrimSpace(req.DatasetPath) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open dataset", errors.New("dataset path is empty"))
	}
	rc, err := p.storage.Open(ctx, req.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.DatasetPath, err)
	}
	defer rc.Close()
	return p.schema.Parse(rc, req.DatasetPath)
}

func (p *Pipeline) mergeFeedback(ctx context.Context, rows []domain.LabeledText, log *slog.Logger) ([]domain.LabeledText, error) {
	corrected, err := p.ledger.ListCorrected(ctx)
	if err != nil {
		return nil, err
	}
	added := 0
	for _, fb := range corrected {
		label := strings.TrimSpace(fb.Sentiment)
		if label == "" {
			continue
		}
		rows = append(rows, domain.LabeledText{Text: fb.Text, Sentiment: label})
		added++
	}
	if added > 0 {
		log.Info("feedback_merged", "rows", added)
	}
	return rows, nil
}

func preprocess(rows []domain.LabeledText) (texts, labels []string) {
	texts = make([]string, len(rows))
	labels = make([]string, len(rows))
	for i, r := range rows {
		texts[i] = strings.ToLower(r.Text)
		labels[i] = r.Sentiment
	}
	return texts, labels
}

// calibrate never fails the run; any problem falls back to the base model.
func (p *Pipeline) calibrate(base *ml.LogisticRegression, X []ml.SparseVector, y []string, log *slog.Logger) ml.Classifier {
	classes := ml.UniqueLabels(y)
	_, holdout, err := p.split(y, log)
	if err != nil {
		log.Warn("calibration_skipped", "reason", "split_failed", "error", err)
		return base
	}

	method := ml.ChooseCalibration(len(holdout), len(classes))
	if method == ml.CalibrationSkip {
		log.Info("calibration_skipped", "holdout", len(holdout), "classes", len(classes))
		return base
	}

	Xh := make([]ml.SparseVector, len(holdout))
	yh := make([]string, len(holdout))
	for i, idx := range holdout {
		Xh[i], yh[i] = X[idx], y[idx]
	}
	calibrated, err := ml.FitCalibrated(base, method, Xh, yh)
	if err != nil {
		log.Warn("calibration_failed", "method", string(method), "error", err)
		return base
	}
	log.Info("calibration_fitted", "method", string(method), "holdout", len(holdout))
	return calibrated
}

// split is stratified when every label has at least two rows, with an
// unstratified fallback.
func (p *Pipeline) split(y []string, log *slog.Logger) (train, test []int, err error) {
	stratify := true
	for _, n := range ml.LabelCounts(y) {
		if n < 2 {
			stratify = false
			break
		}
	}
	if stratify {
		train, test, err = ml.TrainTestSplit(y, p.cfg.HoldoutShare, p.cfg.Seed, true)
		if err == nil {
			return train, test, nil
		}
		log.Warn("stratified_split_failed", "error", err)
	}
	return ml.TrainTestSplit(y, p.cfg.HoldoutShare, p.cfg.Seed, false)
}

func (p *Pipeline) evaluate(model ml.Classifier, X []ml.SparseVector, y []string, log *slog.Logger) (domain.EvaluationMetrics, error) {
	_, test, err := p.split(y, log)
	if err != nil {
		return domain.EvaluationMetrics{}, err
	}

	classes := model.Classes()
	yTrue := make([]string, len(test))
	yPred := make([]string, len(test))
	proba := make([][]float64, len(test))
	confidences := make([]float64, len(test))
	for i, idx := range test {
		yTrue[i] = y[idx]
		proba[i] = probabilities(model, X[idx])
		yPred[i] = classes[argmaxIndex(proba[i])]
		confidences[i] = maxValue(proba[i])
	}

	out := domain.EvaluationMetrics{
		Confusion: domain.ConfusionMatrix{
			Labels: append([]string(nil), classes...),
			Matrix: ml.ConfusionMatrix(yTrue, yPred, classes),
		},
		PRCurves:    make(map[string]domain.PRCurve, len(classes)),
		AUCPerClass: make(map[string]*float64, len(classes)),
	}
	out.Accuracy = ml.Accuracy(yTrue, yPred)
	out.Precision, out.Recall, out.F1 = ml.WeightedScores(yTrue, yPred)

	for c, label := range classes {
		positives := make([]bool, len(test))
		scores := make([]float64, len(test))
		for i := range test {
			positives[i] = yTrue[i] == label
			scores[i] = proba[i][c]
		}

		precision, recall, thresholds, err := ml.PrecisionRecallCurve(positives, scores)
		if err != nil {
			log.Warn("pr_curve_failed", "class", label, "error", err)
		} else {
			out.PRCurves[label] = domain.PRCurve{Precision: precision, Recall: recall, Thresholds: thresholds}
		}

		auc, err := ml.ROCAUC(positives, scores)
		switch {
		case err == nil:
			out.AUCPerClass[label] = &auc
		case errors.Is(err, ml.ErrSingleClass):
			out.AUCPerClass[label] = nil
		default:
			log.Warn("auc_failed", "class", label, "error", err)
			out.AUCPerClass[label] = nil
		}
	}

	bins, counts, below := ml.ConfidenceHistogram(confidences, confidenceHistBins)
	out.ConfidenceDist = domain.ConfidenceDistribution{Bins: bins, Counts: counts, PctBelow05: below}
	return out, nil
}

func (p *Pipeline) persist(
	ctx context.Context,
	req domain.RetrainRequest,
	model ml.Classifier,
	vectorizer *ml.TFIDFVectorizer,
	evaluation domain.EvaluationMetrics,
	samples int,
) (string, error) {
	createdAt := p.now()
	version, err := p.store.SaveNewVersion(ctx, model, vectorizer, domain.VersionMetadata{
		BaseVersion: req.BaseVersion,
		Metrics:     evaluation.BasicMetrics,
		CreatedAt:   createdAt,
		Samples:     samples,
	})
	if err != nil {
		return "", fmt.Errorf("save model version: %w", err)
	}

	if err := p.history.AppendSnapshot(ctx, domain.MetricsSnapshot{
		Version:    version,
		CreatedAt:  createdAt,
		Evaluation: evaluation,
		Samples:    samples,
	}); err != nil {
		return "", fmt.Errorf("append metrics snapshot for %s: %w", version, err)
	}

	record := domain.ModelRecord{
		Version:     version,
		BaseVersion: req.BaseVersion,
		Metrics:     evaluation.BasicMetrics,
		CreatedAt:   createdAt,
	}
	if loc, ok := p.store.(artifactLocator); ok {
		record.ArtifactPath = loc.Path(version)
	}
	if err := p.history.AppendModel(ctx, record); err != nil {
		return "", fmt.Errorf("append model record for %s: %w", version, err)
	}

	if p.events != nil {
		if err := p.events.PublishModelPublished(ctx, version); err != nil {
			p.logger.Warn("model_published_event_failed", "version", version, "error", err)
		}
	}
	return version, nil
}

func probabilities(model ml.Classifier, x ml.SparseVector) []float64 {
	if pc, ok := model.(ml.ProbabilisticClassifier); ok {
		return pc.PredictProba(x)
	}
	out := make([]float64, len(model.Classes()))
	label := model.Predict(x)
	for i, c := range model.Classes() {
		if c == label {
			out[i] = 1
		}
	}
	return out
}

func argmaxIndex(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func maxValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[argmaxIndex(values)]
}
