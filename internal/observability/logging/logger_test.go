package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestJSONLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLoggerTo(&buf, "api", "warn")

	logger.Info("retrain_job_started", "job_id", "job_1")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %s", buf.String())
	}

	logger.Warn("calibration_skipped", "job_id", "job_1", "elapsed", 1500*time.Millisecond)
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "api" || entry["msg"] != "calibration_skipped" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["elapsed_ms"] != 1500.0 {
		t.Fatalf("expected elapsed_ms=1500, got %v", entry["elapsed_ms"])
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel(" DEBUG ") != slog.LevelDebug || ParseLevel("warning") != slog.LevelWarn || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}
