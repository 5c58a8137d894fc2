package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLogitsSendsTruncationAndParsesLabels(t *testing.T) {
	var captured logitsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != logitsPath {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"logits":[-1.2,0.3,2.5],"id2label":{"0":"negative","1":"neutral","2":"positive"}}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", "rubert-sentiment", Options{})
	logits, labels, err := client.Logits(context.Background(), "отличный сервис")
	if err != nil {
		t.Fatalf("Logits() error = %v", err)
	}
	if captured.MaxLength != DefaultMaxLength || captured.Model != "rubert-sentiment" || captured.Text != "отличный сервис" {
		t.Fatalf("unexpected request %+v", captured)
	}
	if len(logits) != 3 || logits[2] != 2.5 {
		t.Fatalf("unexpected logits %v", logits)
	}
	if labels[0] != "negative" || labels[2] != "positive" {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func TestLogitsRetriesServerErrorsAndReportsTemporary(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "", Options{Executor: testExecutor()})
	_, _, err := client.Logits(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestLogitsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "text too long", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := New(server.URL, "", Options{Executor: testExecutor()})
	_, _, err := client.Logits(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("client error must not be temporary: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestLogitsRejectsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"logits":[]}`))
	}))
	defer server.Close()

	if _, _, err := New(server.URL, "", Options{}).Logits(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for empty logits")
	}
}
