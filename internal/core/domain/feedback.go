package domain

import "time"

// FeedbackRecord is one append-only ledger entry. Corrected is nil for plain predictions.
type FeedbackRecord struct {
	ID            string             `json:"id"`
	Text          string             `json:"text"`
	Predicted     string             `json:"predicted"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Confidence    float64            `json:"confidence"`
	ModelVersion  string             `json:"model_version"`
	Corrected     *string            `json:"corrected,omitempty"`
	UserID        string             `json:"user_id,omitempty"`
	SavedAt       time.Time          `json:"saved_at"`
}

// LabeledText is a (text, sentiment) training pair.
type LabeledText struct {
	Text      string `json:"text"`
	Sentiment string `json:"sentiment"`
}

// FeedbackInput is a user correction submitted for a previously scored text.
type FeedbackInput struct {
	Text          string             `json:"text"`
	Predicted     string             `json:"predicted"`
	Corrected     string             `json:"corrected,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Confidence    float64            `json:"confidence"`
	ModelVersion  string             `json:"model_version,omitempty"`
	UserID        string             `json:"user_id,omitempty"`
}
