package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// JobRepository is the durable retrain job log. Records are upserted by job id.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Record(ctx context.Context, job domain.RetrainJob) error {
	var (
		metricsJSON []byte
		version     string
	)
	if job.Result != nil {
		raw, err := json.Marshal(job.Result.Metrics)
		if err != nil {
			return fmt.Errorf("marshal result metrics: %w", err)
		}
		metricsJSON = raw
		version = job.Result.Version
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO retrain_jobs (
	job_id, status, progress, message, result_metrics, model_version, include_feedbacks, base_version, submitted_at, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (job_id) DO UPDATE SET
	status = EXCLUDED.status,
	progress = EXCLUDED.progress,
	message = EXCLUDED.message,
	result_metrics = EXCLUDED.result_metrics,
	model_version = EXCLUDED.model_version,
	started_at = EXCLUDED.started_at,
	finished_at = EXCLUDED.finished_at
`,
		job.JobID, string(job.Status), job.Progress, job.Message, metricsJSON, version,
		job.IncludeFeedbacks, job.BaseVersion, job.SubmittedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert retrain job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*domain.RetrainJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT job_id, status, progress, message, result_metrics, model_version, include_feedbacks, base_version, submitted_at, started_at, finished_at
FROM retrain_jobs
WHERE job_id = $1
`, jobID)

	var (
		job        domain.RetrainJob
		status     string
		metricsRaw []byte
		version    string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&job.JobID, &status, &job.Progress, &job.Message, &metricsRaw, &version,
		&job.IncludeFeedbacks, &job.BaseVersion, &job.SubmittedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get retrain job", fmt.Errorf("id=%s", jobID))
		}
		return nil, fmt.Errorf("scan retrain job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	if len(metricsRaw) > 0 {
		var metrics domain.BasicMetrics
		if err := json.Unmarshal(metricsRaw, &metrics); err != nil {
			return nil, fmt.Errorf("unmarshal result metrics: %w", err)
		}
		job.Result = &domain.RetrainResult{Metrics: metrics, Version: version}
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
