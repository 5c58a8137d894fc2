package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

type DatasetUseCase struct {
	repo    ports.DatasetRepository
	storage ports.ObjectStorage
	parser  ports.DatasetParser
}

func NewDatasetUseCase(
	repo ports.DatasetRepository,
	storage ports.ObjectStorage,
	parser ports.DatasetParser,
) *DatasetUseCase {
	return &DatasetUseCase{
		repo:    repo,
		storage: storage,
		parser:  parser,
	}
}

// Upload validates the file against the label schema before storing it.
func (uc *DatasetUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.Dataset, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" && ext != ".xlsx" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload dataset", fmt.Errorf("unsupported file type %q", ext))
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	rows, err := uc.parser.Parse(bytes.NewReader(raw), filename)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse dataset", err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse dataset", errors.New("no labeled rows"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	ds := &domain.Dataset{
		ID:          id,
		Filename:    filename,
		StoragePath: storageKey,
		Rows:        len(rows),
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.repo.Create(ctx, ds); err != nil {
		return nil, fmt.Errorf("create dataset metadata: %w", err)
	}
	return ds, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "dataset.csv"
	}
	return base
}
