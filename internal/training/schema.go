package training

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// DefaultLabelSynonyms are the header names accepted as the sentiment column.
var DefaultLabelSynonyms = []string{
	"sentiment",
	"corrected",
	"label",
	"labels",
	"sentiments",
	"sentiment_label",
	"sentimentvalue",
}

// LabelSchema maps dataset headers onto the canonical text/sentiment columns.
type LabelSchema struct {
	TextColumn    string   `yaml:"text_column"`
	LabelSynonyms []string `yaml:"label_synonyms"`
}

func DefaultLabelSchema() LabelSchema {
	return LabelSchema{
		TextColumn:    "text",
		LabelSynonyms: append([]string(nil), DefaultLabelSynonyms...),
	}
}

// LoadLabelSchema reads a YAML schema; omitted fields keep their defaults.
func LoadLabelSchema(path string) (LabelSchema, error) {
	schema := DefaultLabelSchema()
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("read label schema: %w", err)
	}

	var fromFile LabelSchema
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return schema, fmt.Errorf("parse label schema: %w", err)
	}
	if v := normalizeHeader(fromFile.TextColumn); v != "" {
		schema.TextColumn = v
	}
	if len(fromFile.LabelSynonyms) > 0 {
		synonyms := make([]string, 0, len(fromFile.LabelSynonyms))
		for _, s := range fromFile.LabelSynonyms {
			if v := normalizeHeader(s); v != "" {
				synonyms = append(synonyms, v)
			}
		}
		if len(synonyms) == 0 {
			return schema, fmt.Errorf("label schema %s: label_synonyms has no usable entries", path)
		}
		schema.LabelSynonyms = synonyms
	}
	return schema, nil
}

// resolve returns the text and label column indexes in headers.
func (s LabelSchema) resolve(headers []string) (textIdx, labelIdx int, err error) {
	textIdx, labelIdx = -1, -1
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	for _, synonym := range s.LabelSynonyms {
		for i, h := range normalized {
			if h == synonym {
				labelIdx = i
				break
			}
		}
		if labelIdx >= 0 {
			break
		}
	}
	if labelIdx < 0 {
		return -1, -1, fmt.Errorf("%w; columns found: [%s]", domain.ErrMissingLabelColumn, strings.Join(normalized, ", "))
	}

	for i, h := range normalized {
		if h == s.TextColumn {
			textIdx = i
			break
		}
	}
	if textIdx < 0 {
		return -1, -1, fmt.Errorf("%w; columns found: [%s]", domain.ErrMissingTextColumn, strings.Join(normalized, ", "))
	}
	return textIdx, labelIdx, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// SchemaSource serves the current label schema and reloads it when the file changes.
type SchemaSource struct {
	path    string
	current atomic.Pointer[LabelSchema]
	logger  *slog.Logger
}

// NewSchemaSource loads path, or the built-in defaults when path is empty.
func NewSchemaSource(path string, logger *slog.Logger) (*SchemaSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	src := &SchemaSource{path: path, logger: logger}
	schema := DefaultLabelSchema()
	if path != "" {
		loaded, err := LoadLabelSchema(path)
		if err != nil {
			return nil, err
		}
		schema = loaded
	}
	src.current.Store(&schema)
	return src, nil
}

func (s *SchemaSource) Current() LabelSchema {
	return *s.current.Load()
}

// Watch reloads the schema on every write, create or rename of the file until
// ctx is done. An invalid file keeps the previous schema.
func (s *SchemaSource) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create schema watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch schema dir: %w", err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				s.reload()
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("label_schema_watch_error", "error", werr)
			}
		}
	}()
	return nil
}

func (s *SchemaSource) reload() {
	schema, err := LoadLabelSchema(s.path)
	if err != nil {
		s.logger.Warn("label_schema_reload_failed", "path", s.path, "error", err)
		return
	}
	s.current.Store(&schema)
	s.logger.Info("label_schema_reloaded", "path", s.path, "synonyms", len(schema.LabelSynonyms))
}

// Parse reads a dataset with the current schema.
func (s *SchemaSource) Parse(r io.Reader, name string) ([]domain.LabeledText, error) {
	return ReadDataset(r, name, s.Current())
}
