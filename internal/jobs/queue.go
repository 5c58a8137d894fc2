package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

const DefaultCapacity = 64

// Queue is the bounded FIFO of retrain requests plus the in-memory job registry.
type Queue struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.RetrainJob
	pending  chan domain.RetrainRequest
	observer ports.RetrainObserver
	now      func() time.Time
}

func NewQueue(capacity int, observer ports.RetrainObserver) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		jobs:     make(map[string]*domain.RetrainJob),
		pending:  make(chan domain.RetrainRequest, capacity),
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewJobID returns an id of the form job_<8 hex>.
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Submit registers the job as queued and enqueues it without blocking.
func (q *Queue) Submit(ctx context.Context, req domain.RetrainRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.JobID == "" {
		req.JobID = NewJobID()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[req.JobID]; exists {
		return "", domain.WrapError(domain.ErrInvalidInput, "submit retrain job", fmt.Errorf("job %s already exists", req.JobID))
	}

	select {
	case q.pending <- req:
	default:
		return "", domain.WrapError(domain.ErrTemporary, "submit retrain job", errors.New("retrain queue is full"))
	}
	q.jobs[req.JobID] = &domain.RetrainJob{
		JobID:            req.JobID,
		Status:           domain.JobQueued,
		DatasetPath:      req.DatasetPath,
		IncludeFeedbacks: req.IncludeFeedbacks,
		BaseVersion:      req.BaseVersion,
		SubmittedAt:      q.now(),
	}
	if q.observer != nil {
		q.observer.JobSubmitted()
		q.observer.QueueDepth(len(q.pending))
	}
	return req.JobID, nil
}

// Status returns a snapshot of the job record.
func (q *Queue) Status(jobID string) (domain.RetrainJob, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return domain.RetrainJob{}, domain.WrapError(domain.ErrJobNotFound, "retrain job status", fmt.Errorf("job %s", jobID))
	}
	return job.Clone(), nil
}

// Depth is the number of jobs waiting to be picked up.
func (q *Queue) Depth() int {
	return len(q.pending)
}

func (q *Queue) markRunning(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != domain.JobQueued {
		return
	}
	now := q.now()
	job.Status = domain.JobRunning
	job.StartedAt = &now
}

// setProgress ignores decreasing values and updates after a terminal state.
func (q *Queue) setProgress(jobID string, progress int) {
	if progress > 100 {
		progress = 100
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status.Terminal() || progress <= job.Progress {
		return
	}
	job.Progress = progress
}

// finish moves the job to a terminal state once and returns the final snapshot.
func (q *Queue) finish(jobID string, result *domain.RetrainResult, runErr error) (domain.RetrainJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return domain.RetrainJob{}, false
	}
	now := q.now()
	job.FinishedAt = &now
	if runErr != nil {
		job.Status = domain.JobFailed
		job.Message = runErr.Error()
		job.Result = nil
	} else {
		job.Status = domain.JobDone
		job.Progress = 100
		job.Message = ""
		res := *result
		job.Result = &res
	}
	return job.Clone(), true
}
