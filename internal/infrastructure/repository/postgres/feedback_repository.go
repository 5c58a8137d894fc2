package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// FeedbackRepository is the Postgres-backed feedback ledger.
type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Append(ctx context.Context, rec *domain.FeedbackRecord) error {
	probs := rec.Probabilities
	if probs == nil {
		probs = map[string]float64{}
	}
	probsJSON, err := json.Marshal(probs)
	if err != nil {
		return fmt.Errorf("marshal probabilities: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO feedbacks (id, text, predicted, probabilities, confidence, model_version, corrected, user_id, saved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, rec.ID, rec.Text, rec.Predicted, probsJSON, rec.Confidence, rec.ModelVersion, nullableString(rec.Corrected), rec.UserID, rec.SavedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) ListCorrected(ctx context.Context) ([]domain.LabeledText, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT text, corrected
FROM feedbacks
WHERE corrected IS NOT NULL AND corrected <> ''
ORDER BY saved_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list corrected feedback: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LabeledText, 0)
	for rows.Next() {
		var item domain.LabeledText
		if err := rows.Scan(&item.Text, &item.Sentiment); err != nil {
			return nil, fmt.Errorf("scan corrected feedback: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corrected feedback: %w", err)
	}
	return out, nil
}

func (r *FeedbackRepository) ListUncertain(ctx context.Context, threshold float64, limit int) ([]domain.FeedbackRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, text, predicted, probabilities, confidence, model_version, corrected, user_id, saved_at
FROM feedbacks
WHERE confidence < $1
ORDER BY saved_at DESC
LIMIT $2
`, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("list uncertain feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedbacks(rows)
}

func (r *FeedbackRepository) ListRecent(ctx context.Context, limit int) ([]domain.FeedbackRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, text, predicted, probabilities, confidence, model_version, corrected, user_id, saved_at
FROM feedbacks
ORDER BY saved_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedbacks(rows)
}

func scanFeedbacks(rows *sql.Rows) ([]domain.FeedbackRecord, error) {
	out := make([]domain.FeedbackRecord, 0)
	for rows.Next() {
		var (
			rec       domain.FeedbackRecord
			probsRaw  []byte
			corrected sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.Text, &rec.Predicted, &probsRaw, &rec.Confidence,
			&rec.ModelVersion, &corrected, &rec.UserID, &rec.SavedAt,
		); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		if len(probsRaw) > 0 {
			if err := json.Unmarshal(probsRaw, &rec.Probabilities); err != nil {
				return nil, fmt.Errorf("unmarshal probabilities: %w", err)
			}
		}
		if corrected.Valid {
			v := corrected.String
			rec.Corrected = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
