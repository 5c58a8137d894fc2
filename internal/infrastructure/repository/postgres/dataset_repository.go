package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

type DatasetRepository struct {
	db *sql.DB
}

func NewDatasetRepository(db *sql.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

func (r *DatasetRepository) Create(ctx context.Context, ds *domain.Dataset) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO datasets (id, filename, storage_path, row_count, created_at)
VALUES ($1,$2,$3,$4,$5)
`, ds.ID, ds.Filename, ds.StoragePath, ds.Rows, ds.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id string) (*domain.Dataset, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, row_count, created_at
FROM datasets
WHERE id = $1
`, id)

	var ds domain.Dataset
	if err := row.Scan(&ds.ID, &ds.Filename, &ds.StoragePath, &ds.Rows, &ds.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDatasetNotFound, "get dataset", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	return &ds, nil
}
