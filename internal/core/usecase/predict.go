package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

// PredictUseCase scores text and records every prediction in the feedback ledger.
type PredictUseCase struct {
	predictor ports.Predictor
	ledger    ports.FeedbackLedger
}

func NewPredictUseCase(predictor ports.Predictor, ledger ports.FeedbackLedger) *PredictUseCase {
	return &PredictUseCase{predictor: predictor, ledger: ledger}
}

func (uc *PredictUseCase) Predict(ctx context.Context, text string) (*domain.Prediction, error) {
	pred, err := uc.predictor.Predict(ctx, text)
	if err != nil {
		return nil, err
	}

	record := &domain.FeedbackRecord{
		ID:            uuid.NewString(),
		Text:          text,
		Predicted:     pred.Label,
		Probabilities: pred.Probabilities,
		Confidence:    pred.Confidence,
		ModelVersion:  pred.ModelVersion,
		SavedAt:       time.Now().UTC(),
	}
	if err := uc.ledger.Append(ctx, record); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "record prediction", fmt.Errorf("append to ledger: %w", err))
	}
	return pred, nil
}
