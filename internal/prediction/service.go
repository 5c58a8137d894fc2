package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

// Service routes predictions to the active backend. The active backend can be
// switched at runtime.
type Service struct {
	registry *Registry
	backends map[string]Backend
	observer ports.PredictionObserver
	logger   *slog.Logger

	mu     sync.RWMutex
	active string
}

func NewService(registry *Registry, active string, observer ports.PredictionObserver, logger *slog.Logger, backends ...Backend) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		registry: registry,
		backends: make(map[string]Backend, len(backends)),
		observer: observer,
		logger:   logger,
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		s.backends[b.Name()] = b
	}
	if active == "" {
		active = BackendPipeline
	}
	if err := s.SetActive(active); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Predict(ctx context.Context, text string) (*domain.Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "predict", errors.New("text is empty"))
	}
	s.mu.RLock()
	name := s.active
	backend := s.backends[name]
	s.mu.RUnlock()

	started := time.Now()
	pred, err := backend.Predict(ctx, text)
	if s.observer != nil {
		s.observer.ObservePrediction(name, time.Since(started), err)
	}
	if err != nil {
		return nil, fmt.Errorf("predict with %s backend: %w", name, err)
	}
	return pred, nil
}

func (s *Service) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Service) SetActive(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := s.backends[name]; !ok {
		return domain.WrapError(domain.ErrInvalidInput, "set active backend", fmt.Errorf("unknown backend %q", name))
	}
	s.mu.Lock()
	previous := s.active
	s.active = name
	s.mu.Unlock()
	if previous != name {
		s.logger.Info("prediction_backend_switched", "backend", name, "previous", previous)
	}
	return nil
}

// Reload swaps the pipeline model version; empty version means newest.
func (s *Service) Reload(ctx context.Context, version string) (string, error) {
	mv, err := s.registry.Reload(ctx, version)
	if err != nil {
		return "", err
	}
	return mv.VersionID, nil
}
