package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func TestFeedbackAppendStoresNullableCorrection(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewFeedbackRepository(db)
	savedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO feedbacks").
		WithArgs("fb1", "nice", "positive", sqlmock.AnyArg(), 0.8, "v1", nil, "", savedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), &domain.FeedbackRecord{
		ID: "fb1", Text: "nice", Predicted: "positive", Confidence: 0.8, ModelVersion: "v1", SavedAt: savedAt,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFeedbackListCorrected(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewFeedbackRepository(db)

	mock.ExpectQuery("SELECT text, corrected FROM feedbacks").
		WillReturnRows(sqlmock.NewRows([]string{"text", "corrected"}).
			AddRow("meh", "neutral").
			AddRow("great", "positive"))

	items, err := repo.ListCorrected(context.Background())
	if err != nil {
		t.Fatalf("ListCorrected() error = %v", err)
	}
	if len(items) != 2 || items[0].Sentiment != "neutral" || items[1].Text != "great" {
		t.Fatalf("unexpected corrected items %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFeedbackListUncertainScansRecords(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewFeedbackRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM feedbacks\\s+WHERE confidence < \\$1").
		WithArgs(0.5, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "text", "predicted", "probabilities", "confidence", "model_version", "corrected", "user_id", "saved_at",
		}).
			AddRow("fb1", "hmm", "positive", []byte(`{"positive":0.45,"negative":0.4}`), 0.45, "v2", nil, "", now).
			AddRow("fb2", "ok", "negative", []byte(`{}`), 0.3, "v2", "neutral", "u7", now))

	records, err := repo.ListUncertain(context.Background(), 0.5, 20)
	if err != nil {
		t.Fatalf("ListUncertain() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Corrected != nil || records[0].Probabilities["positive"] != 0.45 {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[1].Corrected == nil || *records[1].Corrected != "neutral" || records[1].UserID != "u7" {
		t.Fatalf("unexpected second record %+v", records[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDatasetGetByIDReturnsDomainNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDatasetRepository(db)

	mock.ExpectQuery("SELECT id, filename, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !domain.IsKind(err, domain.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobRecordAndGet(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db)
	submitted := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	finished := submitted.Add(time.Minute)

	mock.ExpectExec("INSERT INTO retrain_jobs").
		WithArgs("job_1", "done", 100, "", sqlmock.AnyArg(), "v3", true, "", submitted, nil, finished).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), domain.RetrainJob{
		JobID:            "job_1",
		Status:           domain.JobDone,
		Progress:         100,
		Result:           &domain.RetrainResult{Version: "v3", Metrics: domain.BasicMetrics{Accuracy: 0.9}},
		IncludeFeedbacks: true,
		SubmittedAt:      submitted,
		FinishedAt:       &finished,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	mock.ExpectQuery("FROM retrain_jobs").
		WithArgs("job_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_id", "status", "progress", "message", "result_metrics", "model_version",
			"include_feedbacks", "base_version", "submitted_at", "started_at", "finished_at",
		}).AddRow("job_1", "done", 100, "", []byte(`{"accuracy":0.9,"f1":0.8,"precision":0.8,"recall":0.8}`), "v3",
			true, "", submitted, nil, finished))

	job, err := repo.GetByID(context.Background(), "job_1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.JobDone || job.Result == nil || job.Result.Version != "v3" || job.Result.Metrics.Accuracy != 0.9 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.StartedAt != nil || job.FinishedAt == nil {
		t.Fatalf("unexpected timestamps %+v", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobGetFailedJobHasNoResult(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewJobRepository(db)

	mock.ExpectQuery("FROM retrain_jobs").
		WithArgs("job_2").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_id", "status", "progress", "message", "result_metrics", "model_version",
			"include_feedbacks", "base_version", "submitted_at", "started_at", "finished_at",
		}).AddRow("job_2", "failed", 5, "missing 'sentiment' column", nil, "", false, "", time.Now(), nil, nil))

	job, err := repo.GetByID(context.Background(), "job_2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.JobFailed || job.Result != nil || job.Message == "" {
		t.Fatalf("unexpected failed job %+v", job)
	}

	mock.ExpectQuery("FROM retrain_jobs").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMetricsLatestSnapshotEmpty(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewMetricsRepository(db)

	mock.ExpectQuery("FROM metrics_history").WillReturnError(sql.ErrNoRows)
	snap, err := repo.LatestSnapshot(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("expected (nil, nil), got %v, %v", snap, err)
	}

	mock.ExpectQuery("FROM models").WillReturnError(sql.ErrNoRows)
	model, err := repo.LatestModel(context.Background())
	if err != nil || model != nil {
		t.Fatalf("expected (nil, nil), got %v, %v", model, err)
	}
}

func TestMetricsAppendAndLatestSnapshot(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewMetricsRepository(db)
	created := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO metrics_history").
		WithArgs("v2", created, sqlmock.AnyArg(), sqlmock.AnyArg(), 120).
		WillReturnResult(sqlmock.NewResult(1, 1))
	snap := domain.MetricsSnapshot{Version: "v2", CreatedAt: created, Samples: 120}
	snap.Evaluation.Accuracy = 0.85
	if err := repo.AppendSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("AppendSnapshot() error = %v", err)
	}

	mock.ExpectQuery("FROM metrics_history").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "evaluation", "n_samples"}).
			AddRow("v2", created, []byte(`{"accuracy":0.85,"confusion":{"labels":["neg","pos"],"matrix":[[5,1],[0,6]]}}`), 120))

	latest, err := repo.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if latest.Version != "v2" || latest.Evaluation.Accuracy != 0.85 || latest.Evaluation.Confusion.Matrix[1][1] != 6 {
		t.Fatalf("unexpected snapshot %+v", latest)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMetricsTrendAndModels(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewMetricsRepository(db)
	t1 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	mock.ExpectQuery("FROM metrics_history").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "metrics"}).
			AddRow("v1", t1, []byte(`{"accuracy":0.7}`)).
			AddRow("v2", t2, []byte(`{"accuracy":0.8}`)))

	points, err := repo.Trend(context.Background(), 50)
	if err != nil {
		t.Fatalf("Trend() error = %v", err)
	}
	if len(points) != 2 || points[0].Version != "v1" || points[1].Metrics.Accuracy != 0.8 {
		t.Fatalf("unexpected trend %+v", points)
	}

	mock.ExpectQuery("FROM models").
		WillReturnRows(sqlmock.NewRows([]string{"version", "base_version", "metrics", "created_at", "artifact_path"}).
			AddRow("v2", "v1", []byte(`{"accuracy":0.8}`), t2, "/models/v2"))

	models, err := repo.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 1 || models[0].BaseVersion != "v1" || models[0].ArtifactPath != "/models/v2" {
		t.Fatalf("unexpected models %+v", models)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
