package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/sentiment-retrainer/internal/config"
	"github.com/kirillkom/sentiment-retrainer/internal/core/ports"
	"github.com/kirillkom/sentiment-retrainer/internal/core/usecase"
	natsevents "github.com/kirillkom/sentiment-retrainer/internal/infrastructure/events/nats"
	"github.com/kirillkom/sentiment-retrainer/internal/infrastructure/inference/remote"
	"github.com/kirillkom/sentiment-retrainer/internal/infrastructure/modelstore/localfs"
	"github.com/kirillkom/sentiment-retrainer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/sentiment-retrainer/internal/infrastructure/resilience"
	blobstore "github.com/kirillkom/sentiment-retrainer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/sentiment-retrainer/internal/jobs"
	"github.com/kirillkom/sentiment-retrainer/internal/observability/metrics"
	"github.com/kirillkom/sentiment-retrainer/internal/prediction"
	"github.com/kirillkom/sentiment-retrainer/internal/training"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	PredictUC  ports.Predictor
	FeedbackUC ports.FeedbackRecorder
	DatasetUC  ports.DatasetUploader
	RetrainUC  ports.RetrainService
	ModelsUC   ports.ModelAdmin
	InsightsUC ports.InsightsService

	Queue     *jobs.Queue
	Worker    *jobs.Worker
	Scheduler *jobs.Scheduler
	Schema    *training.SchemaSource
	Registry  *prediction.Registry
	// Events is nil when NATS_URL is empty.
	Events ports.ModelEvents

	HTTPMetrics    *metrics.HTTPServerMetrics
	RetrainMetrics *metrics.RetrainMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	feedbacks := postgres.NewFeedbackRepository(db)
	datasets := postgres.NewDatasetRepository(db)
	jobLog := postgres.NewJobRepository(db)
	history := postgres.NewMetricsRepository(db)

	storage, err := blobstore.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init dataset storage: %w", err)
	}
	store, err := localfs.New(cfg.ModelsPath, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init model store: %w", err)
	}
	schema, err := training.NewSchemaSource(cfg.LabelSchemaPath, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load label schema: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	retrainMetrics := metrics.NewRetrainMetrics(service, httpMetrics.Registry())

	var (
		events    ports.ModelEvents
		closeNATS = func() {}
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsevents.New(cfg.NATSURL, cfg.NATSSubject, natsevents.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.PublishPolicy(), logger),
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init model events: %w", err)
		}
		events = natsClient
		closeNATS = natsClient.Close
	}

	registry := prediction.NewRegistry(store, logger)
	backends := []prediction.Backend{prediction.NewPipelineBackend(registry)}
	if cfg.InferenceURL != "" {
		client := remote.New(cfg.InferenceURL, cfg.InferenceModel, remote.Options{
			Timeout:  cfg.InferenceTimeout,
			Executor: resilience.NewExecutor(resilience.InferencePolicy(), logger),
		})
		sequence, err := prediction.NewSequenceBackend(client, cfg.InferenceLabelsPath)
		if err != nil {
			closeNATS()
			_ = db.Close()
			return nil, fmt.Errorf("init transformer backend: %w", err)
		}
		backends = append(backends, sequence)
	}
	serving, err := prediction.NewService(registry, cfg.PredictionBackend, httpMetrics, logger, backends...)
	if err != nil {
		closeNATS()
		_ = db.Close()
		return nil, fmt.Errorf("init prediction service: %w", err)
	}

	trainCfg := training.DefaultConfig()
	if cfg.TrainMaxFeatures > 0 {
		trainCfg.MaxFeatures = cfg.TrainMaxFeatures
	}
	if cfg.TrainMaxIter > 0 {
		trainCfg.MaxIter = cfg.TrainMaxIter
	}
	if cfg.TrainSeed >= 0 {
		trainCfg.Seed = uint64(cfg.TrainSeed)
	}
	pipeline := training.NewPipeline(storage, feedbacks, store, history, events, schema, trainCfg, logger)

	queue := jobs.NewQueue(cfg.RetrainQueueSize, retrainMetrics)
	worker := jobs.NewWorker(queue, pipeline, jobLog, retrainMetrics, cfg.RetrainJobTimeout, logger)
	scheduler, err := jobs.NewScheduler(cfg.RetrainSchedule, cfg.RetrainScheduleDataset, queue, logger)
	if err != nil {
		closeNATS()
		_ = db.Close()
		return nil, fmt.Errorf("init retrain schedule: %w", err)
	}

	return &App{
		Config: cfg,
		Logger: logger,

		PredictUC:  usecase.NewPredictUseCase(serving, feedbacks),
		FeedbackUC: usecase.NewFeedbackUseCase(feedbacks),
		DatasetUC:  usecase.NewDatasetUseCase(datasets, storage, schema),
		RetrainUC:  usecase.NewRetrainUseCase(queue, datasets, jobLog),
		ModelsUC:   usecase.NewModelAdminUseCase(history, serving),
		InsightsUC: usecase.NewInsightsUseCase(history, feedbacks),

		Queue:     queue,
		Worker:    worker,
		Scheduler: scheduler,
		Schema:    schema,
		Registry:  registry,
		Events:    events,

		HTTPMetrics:    httpMetrics,
		RetrainMetrics: retrainMetrics,

		closeFn: func() {
			closeNATS()
			_ = db.Close()
		},
	}, nil
}

// FollowModelEvents blocks until ctx is done, reloading the newest version on
// every model-published event. It returns at once unless ModelEventsAutoReload
// is set and events are configured.
func (a *App) FollowModelEvents(ctx context.Context) error {
	if a.Events == nil || !a.Config.ModelEventsAutoReload {
		return nil
	}
	return a.Events.SubscribeModelPublished(ctx, func(handlerCtx context.Context, published string) error {
		// The newest version wins, so late events never roll serving back.
		loaded, err := a.ModelsUC.Reload(handlerCtx, "")
		if err != nil {
			return err
		}
		a.Logger.Info("model_reloaded_from_event", "published", published, "version", loaded)
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
