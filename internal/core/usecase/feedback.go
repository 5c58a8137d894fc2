package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

type FeedbackUseCase struct {
	ledger ports.FeedbackLedger
}

func NewFeedbackUseCase(ledger ports.FeedbackLedger) *FeedbackUseCase {
	return &FeedbackUseCase{ledger: ledger}
}

func (uc *FeedbackUseCase) Record(ctx context.Context, input domain.FeedbackInput) (*domain.FeedbackRecord, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record feedback", errors.New("text is required"))
	}
	predicted := strings.TrimSpace(input.Predicted)
	corrected := strings.TrimSpace(input.Corrected)
	if predicted == "" && corrected == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record feedback", errors.New("predicted or corrected label is required"))
	}
	if input.Confidence < 0 || input.Confidence > 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record feedback", fmt.Errorf("confidence %.3f out of [0,1]", input.Confidence))
	}

	record := &domain.FeedbackRecord{
		ID:            uuid.NewString(),
		Text:          input.Text,
		Predicted:     predicted,
		Probabilities: input.Probabilities,
		Confidence:    input.Confidence,
		ModelVersion:  input.ModelVersion,
		UserID:        input.UserID,
		SavedAt:       time.Now().UTC(),
	}
	if corrected != "" {
		record.Corrected = &corrected
	}
	if err := uc.ledger.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("append feedback: %w", err)
	}
	return record, nil
}
