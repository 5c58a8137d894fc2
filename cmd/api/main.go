package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/sentiment-retrainer/internal/adapters/http"
	"github.com/kirillkom/sentiment-retrainer/internal/bootstrap"
	"github.com/kirillkom/sentiment-retrainer/internal/config"
	"github.com/kirillkom/sentiment-retrainer/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api", logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Schema.Watch(ctx); err != nil {
		logger.Warn("label_schema_watch_disabled", "error", err)
	}

	// This process is the only retrain consumer: API submissions and
	// scheduled runs share one queue and one worker.
	var background sync.WaitGroup
	background.Add(3)
	go func() {
		defer background.Done()
		_ = app.Worker.Run(ctx)
	}()
	go func() {
		defer background.Done()
		_ = app.Scheduler.Run(ctx)
	}()
	go func() {
		defer background.Done()
		if err := app.FollowModelEvents(ctx); err != nil {
			logger.Error("model_events_subscribe_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Predict:  app.PredictUC,
		Feedback: app.FeedbackUC,
		Datasets: app.DatasetUC,
		Retrain:  app.RetrainUC,
		Models:   app.ModelsUC,
		Insights: app.InsightsUC,
	}, app.HTTPMetrics).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
	background.Wait()
}
