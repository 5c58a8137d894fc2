package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

// ReadDataset parses a CSV or XLSX dataset into (text, sentiment) pairs.
// The format is picked from the file extension; anything but .xlsx is read as CSV.
func ReadDataset(r io.Reader, name string, schema LabelSchema) ([]domain.LabeledText, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(r)
	default:
		records, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", name, domain.WrapError(domain.ErrInvalidInput, "read dataset", errors.New("empty file")))
	}

	textIdx, labelIdx, err := schema.resolve(records[0])
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}

	out := make([]domain.LabeledText, 0, len(records)-1)
	for _, row := range records[1:] {
		label := cell(row, labelIdx)
		if label == "" {
			continue
		}
		out = append(out, domain.LabeledText{Text: cell(row, textIdx), Sentiment: label})
	}
	return out, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("open xlsx: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
