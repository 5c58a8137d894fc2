package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// Submitter accepts retrain requests.
type Submitter interface {
	Submit(ctx context.Context, req domain.RetrainRequest) (string, error)
}

// Scheduler submits a retrain of a fixed dataset on a 5-field cron schedule.
type Scheduler struct {
	spec        string
	schedule    cron.Schedule
	datasetPath string
	submitter   Submitter
	logger      *slog.Logger
	now         func() time.Time
}

// NewScheduler parses spec. An empty spec yields a disabled scheduler.
func NewScheduler(spec, datasetPath string, submitter Submitter, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		spec:        strings.TrimSpace(spec),
		datasetPath: datasetPath,
		submitter:   submitter,
		logger:      logger,
		now:         time.Now,
	}
	if s.spec == "" {
		return s, nil
	}
	if strings.TrimSpace(datasetPath) == "" {
		return nil, fmt.Errorf("retrain schedule %q: dataset path is required", s.spec)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(s.spec)
	if err != nil {
		return nil, fmt.Errorf("parse retrain schedule %q: %w", s.spec, err)
	}
	s.schedule = sched
	return s, nil
}

func (s *Scheduler) Enabled() bool {
	return s.schedule != nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(t)
}

// Run blocks until ctx is done, submitting one job per activation.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info("retrain_schedule_disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	s.logger.Info("retrain_schedule_started", "cron", s.spec, "dataset", s.datasetPath)

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		s.Tick(ctx)
	}
}

// Tick submits a single scheduled retrain.
func (s *Scheduler) Tick(ctx context.Context) {
	jobID, err := s.submitter.Submit(ctx, domain.RetrainRequest{
		DatasetPath:      s.datasetPath,
		IncludeFeedbacks: true,
	})
	if err != nil {
		s.logger.Warn("scheduled_retrain_submit_failed", "error", err)
		return
	}
	s.logger.Info("scheduled_retrain_submitted", "job_id", jobID)
}
