package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"demandForecastApp/config"
	"demandForecastApp/internal/app/dto"
	"demandForecastApp/internal/domain/forecasting"
	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
	"demandForecastApp/internal/domain/service"
	"demandForecastApp/internal/domain/useCases"
	ws "demandForecastApp/internal/handlers/websocket"
	redisrepo "demandForecastApp/internal/infrastructure/cache"
	"demandForecastApp/internal/infrastructure/notify"
	"demandForecastApp/internal/infrastructure/queue"
	"demandForecastApp/internal/infrastructure/storage"
	"demandForecastApp/internal/observability/tracing"
)

// ServiceName identifies the process in traces and logs.
const ServiceName = "demand-forecast"

// Processor defines the common interface for both standard and Kafka event processors
type Processor interface {
	Run(ctx context.Context) error
}

// AppContext holds all app dependencies
type AppContext struct {
	Config *config.Config
	Log    *zap.Logger

	Repo    *storage.PostgresRepository
	Cache   *redisrepo.RedisRepository   // nil without REDIS_ADDR
	Archive *storage.ClickHouseRepository // nil without CLICKHOUSE_ADDR

	Notices     *service.NotificationService
	Rollup      *service.DailyRollupService
	Forecasts   *service.PairForecastService
	Dashboard   *service.DashboardService
	Orders      *service.OrderService
	Pipeline    *Pipeline
	Scheduler   *Scheduler
	Broadcaster *ws.WebSocketBroadcaster
	Dedup       Deduplicator

	Regions []model.Region
	Metrics []model.Metric

	kafkaConfig   queue.KafkaConfig
	kafkaProducer *queue.KafkaProducer
	kafkaConsumer *queue.KafkaConsumer
	orderCh       chan *dto.OrderDTO
	shutdownTrace tracing.Shutdown
}

// NewApp initializes the app context with all dependencies. The relational store
// is required; Redis, ClickHouse and SMTP are used when configured.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*AppContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &AppContext{Config: cfg, Log: log}

	regions, metrics, err := parsePairs(cfg.Regions, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	a.Regions, a.Metrics = regions, metrics

	a.shutdownTrace, err = tracing.Init(ctx, tracing.Config{
		Enabled:       cfg.TracingEnabled,
		ServiceName:   ServiceName,
		Environment:   cfg.Env,
		Endpoint:      cfg.TracingEndpoint,
		Insecure:      cfg.TracingInsecure,
		SamplingRatio: cfg.TracingRatio,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := storage.OpenDatabase(storage.DatabaseConfig{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Path:     cfg.DBPath,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.Repo = storage.NewPostgresRepository(db)
	if err := a.Repo.Migrate(ctx); err != nil {
		a.Repo.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Info("relational store ready", zap.String("driver", cfg.DBDriver))

	// Interfaces stay nil unless the backend is configured, so services never see
	// a typed nil.
	var cache repository.ForecastCache
	if cfg.RedisAddr != "" {
		a.Cache = redisrepo.NewRedisRepository(redisrepo.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			ForecastTTL: cfg.ForecastTTL,
			DedupTTL:    cfg.DedupTTL,
		})
		cache = a.Cache
		a.Dedup = a.Cache
		log.Info("redis cache initialized", zap.String("addr", cfg.RedisAddr))
	} else {
		a.Dedup = NewMemoryDeduplicator(cfg.DedupTTL)
	}

	var archive repository.MetricsArchive
	if cfg.ClickhouseAddr != "" {
		ch, err := storage.NewClickHouseRepository(storage.ClickHouseConfig{
			Addr:     cfg.ClickhouseAddr,
			Database: cfg.ClickhouseDatabase,
			Username: cfg.ClickhouseUsername,
			Password: cfg.ClickhousePassword,
			Timeout:  cfg.ClickhouseTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to ClickHouse, continuing without archive", zap.Error(err))
		} else {
			a.Archive = ch
			archive = ch
			log.Info("clickhouse archive initialized")
		}
	}

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return nil, err
	}
	a.Notices = service.NewNotificationService(notifier, model.PlausibilityBand{Min: cfg.AnomalyMin, Max: cfg.AnomalyMax}, log)

	forecaster := forecasting.NewAdditiveForecaster()
	if cfg.DisableSeasonality {
		forecaster = forecaster.WithoutSeasonality()
	}

	a.Rollup = service.NewDailyRollupService(a.Repo, a.Repo, archive, log)
	a.Forecasts = service.NewPairForecastService(service.ForecastDeps{
		Series:     a.Repo,
		Store:      a.Repo,
		Cache:      cache,
		Archive:    archive,
		Forecaster: forecaster,
		Notices:    a.Notices,
	}, service.ForecastSettings{
		MinHistory: cfg.MinHistory,
		Horizon:    cfg.Horizon,
		FitTimeout: cfg.FitTimeout,
	}, log)
	a.Dashboard = service.NewDashboardService(a.Repo, a.Repo, cache, log)
	a.Orders = service.NewOrderService(a.Repo, log)

	a.Broadcaster = ws.NewWebSocketBroadcaster(log)
	a.Pipeline = NewPipeline(a.Rollup, a.Forecasts, a.Notices, a.Regions, a.Metrics, log)
	a.Scheduler = NewScheduler(a.Pipeline, cfg.RefreshInterval, a.Broadcaster, log)

	a.kafkaConfig = queue.KafkaConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
		BatchSize:     cfg.KafkaBatchSize,
		BatchTimeout:  cfg.KafkaBatchTimeout,
	}
	return a, nil
}

func newNotifier(cfg *config.Config, log *zap.Logger) (useCases.Notifier, error) {
	if !cfg.EmailEnabled() {
		log.Info("email not configured, notifications go to the log")
		return notify.NewLogNotifier(log), nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.EmailHost,
		Port:     cfg.EmailPort,
		Username: cfg.EmailUser,
		Password: cfg.EmailPass,
		From:     cfg.EmailFrom,
		To:       cfg.EmailReceiver,
	})
	if err != nil {
		return nil, fmt.Errorf("configure email: %w", err)
	}
	return n, nil
}

// parsePairs resolves configured names, keeping their order. Derived metrics are
// refused because they are never fit.
func parsePairs(regionNames, metricNames []string) ([]model.Region, []model.Metric, error) {
	regions := make([]model.Region, 0, len(regionNames))
	for _, name := range regionNames {
		r, err := model.ParseRegion(name)
		if err != nil {
			return nil, nil, err
		}
		regions = append(regions, r)
	}
	metrics := make([]model.Metric, 0, len(metricNames))
	for _, name := range metricNames {
		m, err := model.ParseMetric(name)
		if err != nil {
			return nil, nil, err
		}
		if !m.Forecastable() {
			return nil, nil, fmt.Errorf("metric %s is derived and cannot be forecast directly", m)
		}
		metrics = append(metrics, m)
	}
	return regions, metrics, nil
}

// Producer returns the Kafka producer, creating it on first use.
func (a *AppContext) Producer() *queue.KafkaProducer {
	if a.kafkaProducer == nil {
		a.kafkaProducer = queue.NewKafkaProducer(a.kafkaConfig)
	}
	return a.kafkaProducer
}

// KafkaProcessor returns a processor storing orders consumed from Kafka.
func (a *AppContext) KafkaProcessor() Processor {
	if a.kafkaConsumer == nil {
		a.kafkaConsumer = queue.NewKafkaConsumer(a.kafkaConfig, a.Log)
	}
	return NewKafkaEventProcessor(a.kafkaConsumer, a.Orders, a.Dedup, a.Log)
}

// DirectProcessor returns a processor fed through an in-process channel, and the
// channel itself. The channel is closed by Cleanup.
func (a *AppContext) DirectProcessor() (Processor, chan<- *dto.OrderDTO) {
	if a.orderCh == nil {
		a.orderCh = make(chan *dto.OrderDTO, a.Config.EventBufferSize)
	}
	return NewEventProcessor(a.orderCh, a.Orders, a.Dedup, a.Log), a.orderCh
}

// Checks returns health probes for every configured backend.
func (a *AppContext) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{"database": a.Repo.Ping}
	if a.Cache != nil {
		checks["redis"] = a.Cache.Ping
	}
	if a.Archive != nil {
		checks["clickhouse"] = a.Archive.Ping
	}
	return checks
}

// Cleanup performs graceful shutdown of all components
func (a *AppContext) Cleanup(ctx context.Context) {
	var errs []error
	if a.kafkaConsumer != nil {
		errs = append(errs, a.kafkaConsumer.Close())
	}
	if a.kafkaProducer != nil {
		errs = append(errs, a.kafkaProducer.Close())
	}
	if a.orderCh != nil {
		close(a.orderCh)
		a.orderCh = nil
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Archive != nil {
		errs = append(errs, a.Archive.Close())
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	if a.shutdownTrace != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, a.shutdownTrace(flushCtx))
		cancel()
	}

	if err := errors.Join(errs...); err != nil {
		a.Log.Warn("errors during cleanup", zap.Error(err))
		return
	}
	a.Log.Info("all resources cleaned up")
}
