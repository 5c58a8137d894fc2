package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestRetrainMetricsSharedRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	retrain := NewRetrainMetrics("api", httpMetrics.Registry())

	retrain.JobSubmitted()
	retrain.QueueDepth(3)
	retrain.JobFinished(domain.JobDone, 2*time.Second)

	out := scrape(t, httpMetrics.Handler())
	for _, want := range []string{
		`sentiment_retrain_jobs_total{service="api",status="done"} 1`,
		`sentiment_retrain_queue_depth{service="api"} 3`,
		`sentiment_retrain_jobs_in_flight{service="api"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in scrape output:\n%s", want, out)
		}
	}
}

func TestHTTPMiddlewareAndPredictions(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/retrain/job_1234abcd", nil))

	m.ObservePrediction("pipeline", 5*time.Millisecond, nil)
	m.ObservePrediction("transformer", time.Millisecond, errors.New("down"))

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`path="/v1/retrain/{job_id}"`,
		`status="404"`,
		`sentiment_prediction_requests_total{backend="pipeline",service="api",status="success"} 1`,
		`sentiment_prediction_requests_total{backend="transformer",service="api",status="error"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in scrape output:\n%s", want, out)
		}
	}
}
