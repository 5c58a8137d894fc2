package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

const jobLogTimeout = 5 * time.Second

// Worker is the single consumer of the retrain queue.
type Worker struct {
	queue    *Queue
	runner   ports.RetrainRunner
	jobLog   ports.JobLog
	observer ports.RetrainObserver
	timeout  time.Duration
	logger   *slog.Logger
}

func NewWorker(
	queue *Queue,
	runner ports.RetrainRunner,
	jobLog ports.JobLog,
	observer ports.RetrainObserver,
	timeout time.Duration,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:    queue,
		runner:   runner,
		jobLog:   jobLog,
		observer: observer,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run processes jobs in submission order until ctx is done.
// A running job is finished before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("retrain_worker_started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retrain_worker_stopped")
			return ctx.Err()
		case req := <-w.queue.pending:
			if w.observer != nil {
				w.observer.QueueDepth(w.queue.Depth())
			}
			w.process(ctx, req)
		}
	}
}

func (w *Worker) process(ctx context.Context, req domain.RetrainRequest) {
	log := w.logger.With("job_id", req.JobID)
	w.queue.markRunning(req.JobID)
	log.Info("retrain_job_started", "dataset", req.DatasetPath, "include_feedbacks", req.IncludeFeedbacks)

	runCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := w.execute(runCtx, req)
	if err == nil && result == nil {
		err = errors.New("training finished without a result")
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("retrain job timed out after %s: %w", w.timeout, err)
	}

	final, ok := w.queue.finish(req.JobID, result, err)
	if !ok {
		return
	}
	duration := time.Since(started)
	if err != nil {
		log.Error("retrain_job_failed", "error", err, "duration_ms", duration.Milliseconds())
	} else {
		log.Info("retrain_job_done", "version", result.Version, "accuracy", result.Metrics.Accuracy, "duration_ms", duration.Milliseconds())
	}
	if w.observer != nil {
		w.observer.JobFinished(final.Status, duration)
	}
	w.record(ctx, final, log)
}

// execute turns a panic inside the runner into a job failure.
func (w *Worker) execute(ctx context.Context, req domain.RetrainRequest) (result *domain.RetrainResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("retrain_job_panic", "job_id", req.JobID, "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("retrain job panicked: %v", r)
		}
	}()
	return w.runner.Run(ctx, req, func(progress int) {
		w.queue.setProgress(req.JobID, progress)
	})
}

func (w *Worker) record(ctx context.Context, job domain.RetrainJob, log *slog.Logger) {
	if w.jobLog == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobLogTimeout)
	defer cancel()
	if err := w.jobLog.Record(recordCtx, job); err != nil {
		log.Warn("retrain_job_log_failed", "error", err)
	}
}
