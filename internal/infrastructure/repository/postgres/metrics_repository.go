package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// MetricsRepository stores evaluation snapshots and the model registry.
// Latest* return (nil, nil) when nothing has been recorded yet.
type MetricsRepository struct {
	db *sql.DB
}

func NewMetricsRepository(db *sql.DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

func (r *MetricsRepository) AppendSnapshot(ctx context.Context, snap domain.MetricsSnapshot) error {
	metricsJSON, err := json.Marshal(snap.Evaluation.BasicMetrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	evalJSON, err := json.Marshal(snap.Evaluation)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO metrics_history (version, created_at, metrics, evaluation, n_samples)
VALUES ($1,$2,$3,$4,$5)
`, snap.Version, snap.CreatedAt, metricsJSON, evalJSON, snap.Samples)
	if err != nil {
		return fmt.Errorf("insert metrics snapshot: %w", err)
	}
	return nil
}

func (r *MetricsRepository) AppendModel(ctx context.Context, rec domain.ModelRecord) error {
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO models (version, base_version, metrics, created_at, artifact_path)
VALUES ($1,$2,$3,$4,$5)
`, rec.Version, rec.BaseVersion, metricsJSON, rec.CreatedAt, rec.ArtifactPath)
	if err != nil {
		return fmt.Errorf("insert model record: %w", err)
	}
	return nil
}

func (r *MetricsRepository) LatestSnapshot(ctx context.Context) (*domain.MetricsSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT version, created_at, evaluation, n_samples
FROM metrics_history
ORDER BY created_at DESC, id DESC
LIMIT 1
`)
	var (
		snap    domain.MetricsSnapshot
		evalRaw []byte
	)
	if err := row.Scan(&snap.Version, &snap.CreatedAt, &evalRaw, &snap.Samples); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan metrics snapshot: %w", err)
	}
	if err := json.Unmarshal(evalRaw, &snap.Evaluation); err != nil {
		return nil, fmt.Errorf("unmarshal evaluation: %w", err)
	}
	return &snap, nil
}

func (r *MetricsRepository) LatestModel(ctx context.Context) (*domain.ModelRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT version, base_version, metrics, created_at, artifact_path
FROM models
ORDER BY created_at DESC
LIMIT 1
`)
	rec, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *MetricsRepository) ListModels(ctx context.Context) ([]domain.ModelRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT version, base_version, metrics, created_at, artifact_path
FROM models
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ModelRecord, 0)
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return out, nil
}

// Trend returns the newest limit snapshots in ascending creation order.
func (r *MetricsRepository) Trend(ctx context.Context, limit int) ([]domain.VersionTrendPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT version, created_at, metrics
FROM (
	SELECT id, version, created_at, metrics
	FROM metrics_history
	ORDER BY created_at DESC, id DESC
	LIMIT $1
) recent
ORDER BY created_at ASC, id ASC
`, limit)
	if err != nil {
		return nil, fmt.Errorf("version trend: %w", err)
	}
	defer rows.Close()

	out := make([]domain.VersionTrendPoint, 0)
	for rows.Next() {
		var (
			point      domain.VersionTrendPoint
			metricsRaw []byte
		)
		if err := rows.Scan(&point.Version, &point.CreatedAt, &metricsRaw); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		if err := json.Unmarshal(metricsRaw, &point.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal trend metrics: %w", err)
		}
		out = append(out, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*domain.ModelRecord, error) {
	var (
		rec        domain.ModelRecord
		metricsRaw []byte
	)
	if err := row.Scan(&rec.Version, &rec.BaseVersion, &metricsRaw, &rec.CreatedAt, &rec.ArtifactPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan model record: %w", err)
	}
	if err := json.Unmarshal(metricsRaw, &rec.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal model metrics: %w", err)
	}
	return &rec, nil
}
