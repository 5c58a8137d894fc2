package prediction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

// Registry holds the model version currently used for serving.
// It loads the newest version on first use and changes only on Reload.
type Registry struct {
	store  ports.VersionStore
	logger *slog.Logger

	mu      sync.RWMutex
	current *domain.ModelVersion
}

func NewRegistry(store ports.VersionStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger}
}

func (r *Registry) Current(ctx context.Context) (*domain.ModelVersion, error) {
	r.mu.RLock()
	current := r.current
	r.mu.RUnlock()
	if current != nil {
		return current, nil
	}

	loaded, err := r.store.Load(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load latest model: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		r.current = loaded
		r.logger.Info("model_loaded", "version", loaded.VersionID)
	}
	return r.current, nil
}

// Reload swaps in the given version, or the newest when version is empty.
// The previous bundle stays active when loading fails.
func (r *Registry) Reload(ctx context.Context, version string) (*domain.ModelVersion, error) {
	loaded, err := r.store.Load(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("reload model %q: %w", version, err)
	}
	r.mu.Lock()
	previous := ""
	if r.current != nil {
		previous = r.current.VersionID
	}
	r.current = loaded
	r.mu.Unlock()

	r.logger.Info("model_reloaded", "version", loaded.VersionID, "previous", previous)
	return loaded, nil
}
