package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/sentiment-retrainer/internal/config"
	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
)

const (
	maxUploadBytes   = 32 << 20
	maxJSONBodyBytes = 1 << 20

	defaultMaxInFlight = 64
	backpressureWait   = 100 * time.Millisecond
)

// Services are the inbound ports the adapter exposes.
type Services struct {
	Predict  ports.Predictor
	Feedback ports.FeedbackRecorder
	Datasets ports.DatasetUploader
	Retrain  ports.RetrainService
	Models   ports.ModelAdmin
	Insights ports.InsightsService
}

// MetricsProvider instruments requests and serves the Prometheus endpoint.
type MetricsProvider interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  MetricsProvider
}

func NewRouter(cfg config.Config, services Services, metrics MetricsProvider) *Router {
	return &Router{
		cfg:      cfg,
		services: services,
		metrics:  metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/predict", rt.predict)
	mux.HandleFunc("POST /v1/feedback", rt.submitFeedback)
	mux.HandleFunc("GET /v1/feedback/uncertain", rt.uncertainSamples)
	mux.HandleFunc("GET /v1/feedback/history", rt.predictionHistory)

	mux.HandleFunc("POST /v1/datasets", rt.uploadDataset)
	mux.HandleFunc("POST /v1/retrain", rt.submitRetrain)
	mux.HandleFunc("GET /v1/retrain/{job_id}", rt.retrainStatus)

	mux.HandleFunc("GET /v1/models", rt.listModels)
	mux.HandleFunc("POST /v1/models/reload", rt.reloadModel)
	mux.HandleFunc("GET /v1/models/backend", rt.getBackend)
	mux.HandleFunc("PUT /v1/models/backend", rt.setBackend)

	mux.HandleFunc("GET /v1/metrics/latest", rt.latestMetrics)
	mux.HandleFunc("GET /v1/metrics/confusion", rt.confusionMatrix)
	mux.HandleFunc("GET /v1/metrics/confidence", rt.confidenceDistribution)
	mux.HandleFunc("GET /v1/metrics/pr-curve", rt.prCurves)
	mux.HandleFunc("GET /v1/metrics/trend", rt.versionTrend)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = backpressureMiddleware(handler, defaultMaxInFlight, backpressureWait)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)

	if rt.metrics == nil {
		return handler
	}
	// Scrapes bypass rate limiting and the access log.
	root := http.NewServeMux()
	root.Handle("GET /metrics", rt.metrics.Handler())
	root.Handle("/", handler)
	return root
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) predict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	prediction, err := rt.services.Predict.Predict(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (rt *Router) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var input domain.FeedbackInput
	if !decodeJSONBody(w, r, &input) {
		return
	}
	record, err := rt.services.Feedback.Record(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (rt *Router) uncertainSamples(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	items, err := rt.services.Insights.UncertainSamples(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) predictionHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	items, err := rt.services.Insights.PredictionHistory(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) uploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	dataset, err := rt.services.Datasets.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataset)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		msg := "invalid json"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return false
	}
	return true
}

// queryLimit reads ?limit=; absent means 0 so the use case applies its default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid limit %q", raw)})
		return 0, false
	}
	return limit, true
}
