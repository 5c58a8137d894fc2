package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

const (
	DefaultTrendLimit    = 50
	MaxTrendLimit        = 500
	DefaultFeedbackLimit = 50
	MaxFeedbackLimit     = 500
	UncertainThreshold   = 0.5
)

// InsightsUseCase is the read side over metrics history and the feedback ledger.
type InsightsUseCase struct {
	history ports.MetricsHistory
	ledger  ports.FeedbackLedger
}

func NewInsightsUseCase(history ports.MetricsHistory, ledger ports.FeedbackLedger) *InsightsUseCase {
	return &InsightsUseCase{history: history, ledger: ledger}
}

// LatestMetrics falls back to the newest model record when no snapshot exists.
func (uc *InsightsUseCase) LatestMetrics(ctx context.Context) (*domain.LatestMetrics, error) {
	snap, err := uc.history.LatestSnapshot(ctx)
	if err != nil && !domain.IsKind(err, domain.ErrModelNotFound) {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap != nil {
		eval := snap.Evaluation
		return &domain.LatestMetrics{
			Version:    snap.Version,
			CreatedAt:  snap.CreatedAt,
			Metrics:    eval.BasicMetrics,
			Evaluation: &eval,
			Samples:    snap.Samples,
		}, nil
	}

	model, err := uc.history.LatestModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest model: %w", err)
	}
	if model == nil {
		return nil, domain.WrapError(domain.ErrModelNotFound, "latest metrics", errors.New("no metrics recorded"))
	}
	return &domain.LatestMetrics{
		Version:   model.Version,
		CreatedAt: model.CreatedAt,
		Metrics:   model.Metrics,
	}, nil
}

func (uc *InsightsUseCase) ConfusionMatrix(ctx context.Context) (*domain.ConfusionMatrix, error) {
	snap, err := uc.latestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	cm := snap.Evaluation.Confusion
	return &cm, nil
}

func (uc *InsightsUseCase) ConfidenceDistribution(ctx context.Context) (*domain.ConfidenceDistribution, error) {
	snap, err := uc.latestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	dist := snap.Evaluation.ConfidenceDist
	return &dist, nil
}

func (uc *InsightsUseCase) PRCurves(ctx context.Context) (map[string]domain.PRCurve, error) {
	snap, err := uc.latestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Evaluation.PRCurves, nil
}

func (uc *InsightsUseCase) VersionTrend(ctx context.Context, limit int) ([]domain.VersionTrendPoint, error) {
	points, err := uc.history.Trend(ctx, clampLimit(limit, DefaultTrendLimit, MaxTrendLimit))
	if err != nil {
		return nil, fmt.Errorf("version trend: %w", err)
	}
	return points, nil
}

func (uc *InsightsUseCase) UncertainSamples(ctx context.Context, limit int) ([]domain.FeedbackRecord, error) {
	records, err := uc.ledger.ListUncertain(ctx, UncertainThreshold, clampLimit(limit, DefaultFeedbackLimit, MaxFeedbackLimit))
	if err != nil {
		return nil, fmt.Errorf("uncertain samples: %w", err)
	}
	return records, nil
}

func (uc *InsightsUseCase) PredictionHistory(ctx context.Context, limit int) ([]domain.FeedbackRecord, error) {
	records, err := uc.ledger.ListRecent(ctx, clampLimit(limit, DefaultFeedbackLimit, MaxFeedbackLimit))
	if err != nil {
		return nil, fmt.Errorf("prediction history: %w", err)
	}
	return records, nil
}

func (uc *InsightsUseCase) latestSnapshot(ctx context.Context) (*domain.MetricsSnapshot, error) {
	snap, err := uc.history.LatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap == nil {
		return nil, domain.WrapError(domain.ErrModelNotFound, "latest snapshot", errors.New("no metrics recorded"))
	}
	return snap, nil
}

func clampLimit(limit, fallback, upper int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > upper {
		return upper
	}
	return limit
}
