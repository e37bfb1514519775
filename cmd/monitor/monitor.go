package main

import (
	"context"

	"github.com/lismorewater/flowmon/internal/api"
	"github.com/lismorewater/flowmon/internal/config"
	"github.com/lismorewater/flowmon/internal/db"
	"github.com/lismorewater/flowmon/internal/extract"
	"github.com/lismorewater/flowmon/internal/fetch"
	"github.com/lismorewater/flowmon/internal/health"
	"github.com/lismorewater/flowmon/internal/mq"
	"github.com/lismorewater/flowmon/internal/repository"
	"github.com/lismorewater/flowmon/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startMonitor(lc fx.Lifecycle, sched *scheduler.Scheduler, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting polling scheduler")
			return sched.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if err := sched.Stop(ctx); err != nil {
				logger.Error("failed to stop scheduler", zap.Error(err))
				return err
			}
			logger.Info("monitor stopped gracefully")
			return nil
		},
	})
}

func startAPI(lc fx.Lifecycle, handlers *api.Handlers, cfg *config.Config, logger *zap.Logger) {
	api.NewServer(lc, handlers, cfg.ServicePort, logger)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideDevices loads the device list from the devices file
func ProvideDevices(cfg *config.Config) ([]scheduler.Device, error) {
	return config.LoadDevices(cfg.DevicesFile)
}

// ProvideHealthTracker creates the shared health tracker
func ProvideHealthTracker(cfg *config.Config) *health.Tracker {
	return health.NewTracker(cfg.Polling.UnhealthyThreshold, cfg.Polling.DataMaxAge)
}

// ProvideFetchClient wires the browser and plain HTTP fetchers into the
// fetch orchestrator
func ProvideFetchClient(cfg *config.Config, logger *zap.Logger) *fetch.Client {
	browser := fetch.NewBrowserFetcher(cfg.Fetch.BrowserSettle, logger)
	plain := fetch.NewHTTPFetcher(cfg.Fetch.Timeout)
	return fetch.NewClient(browser, plain, cfg.Fetch.Timeout, cfg.Fetch.Dynamic, logger)
}

// ProvideExtractor creates the value extractor
func ProvideExtractor(logger *zap.Logger) *extract.Extractor {
	return extract.NewExtractor(logger)
}

// ProvideEventPublisher creates the event publisher. Without a RabbitMQ URL
// events are silently discarded.
func ProvideEventPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (mq.EventPublisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RABBITMQ_URL not set, event publishing disabled")
		return mq.NopPublisher{}, nil
	}

	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})

	return publisher, nil
}

// ProvideScheduler assembles the polling scheduler
func ProvideScheduler(
	devices []scheduler.Device,
	repo *repository.Repository,
	client *fetch.Client,
	extractor *extract.Extractor,
	events mq.EventPublisher,
	tracker *health.Tracker,
	cfg *config.Config,
	logger *zap.Logger,
) *scheduler.Scheduler {
	opts := scheduler.Options{
		Interval:       cfg.Polling.Interval,
		FetchRetries:   cfg.Polling.FetchRetries,
		RetryDelay:     cfg.Polling.RetryDelay,
		ReportInterval: cfg.Polling.ReportInterval,
		Timezone:       cfg.Location(),
		StoreAll:       cfg.Storage.StoreAll,
		SkipEmpty:      cfg.Storage.SkipEmpty,
	}
	return scheduler.NewScheduler(devices, repo, client, extractor, events, tracker, opts, logger)
}

// ProvideAPIHandlers creates the read API handlers
func ProvideAPIHandlers(
	repo *repository.Repository,
	tracker *health.Tracker,
	cfg *config.Config,
	logger *zap.Logger,
) *api.Handlers {
	return api.NewHandlers(repo, tracker, cfg.Location(), logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}
