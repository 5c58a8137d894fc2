package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

type ModelAdminUseCase struct {
	history ports.MetricsHistory
	serving ports.ServingControl
}

func NewModelAdminUseCase(history ports.MetricsHistory, serving ports.ServingControl) *ModelAdminUseCase {
	return &ModelAdminUseCase{history: history, serving: serving}
}

func (uc *ModelAdminUseCase) ListModels(ctx context.Context) ([]domain.ModelRecord, error) {
	models, err := uc.history.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

func (uc *ModelAdminUseCase) Reload(ctx context.Context, version string) (string, error) {
	return uc.serving.Reload(ctx, version)
}

func (uc *ModelAdminUseCase) ActiveBackend() string {
	return uc.serving.Active()
}

func (uc *ModelAdminUseCase) SetActiveBackend(name string) error {
	return uc.serving.SetActive(name)
}
