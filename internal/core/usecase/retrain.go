package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

type RetrainUseCase struct {
	queue    ports.RetrainQueue
	datasets ports.DatasetRepository
	jobLog   ports.JobLog
}

func NewRetrainUseCase(queue ports.RetrainQueue, datasets ports.DatasetRepository, jobLog ports.JobLog) *RetrainUseCase {
	return &RetrainUseCase{queue: queue, datasets: datasets, jobLog: jobLog}
}

// Submit resolves the dataset and enqueues a job; it returns as soon as the job is queued.
func (uc *RetrainUseCase) Submit(ctx context.Context, cmd domain.RetrainCommand) (string, error) {
	datasetID := strings.TrimSpace(cmd.DatasetID)
	if datasetID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "submit retrain", errors.New("dataset_id is required"))
	}
	ds, err := uc.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return "", fmt.Errorf("resolve dataset: %w", err)
	}

	return uc.queue.Submit(ctx, domain.RetrainRequest{
		JobID:            strings.TrimSpace(cmd.JobID),
		DatasetPath:      ds.StoragePath,
		IncludeFeedbacks: cmd.IncludeFeedbacks,
		BaseVersion:      strings.TrimSpace(cmd.BaseVersion),
	})
}

// Status reads the in-memory registry first and falls back to the durable job log.
func (uc *RetrainUseCase) Status(ctx context.Context, jobID string) (*domain.RetrainJob, error) {
	job, err := uc.queue.Status(jobID)
	if err == nil {
		return &job, nil
	}
	if !domain.IsKind(err, domain.ErrJobNotFound) || uc.jobLog == nil {
		return nil, err
	}
	logged, logErr := uc.jobLog.GetByID(ctx, jobID)
	if logErr != nil {
		return nil, logErr
	}
	return logged, nil
}
