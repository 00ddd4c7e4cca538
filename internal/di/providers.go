package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/handler/api"
	internalrepo "FinFeat/internal/repository"
	"FinFeat/internal/service/binance"
	"FinFeat/internal/services/features"
	"FinFeat/internal/usecase"
	"FinFeat/pkg/cache"
	pkgch "FinFeat/pkg/clickhouse"
	"FinFeat/pkg/config"
	pkgkafka "FinFeat/pkg/kafka"
	applogger "FinFeat/pkg/logger"
	"FinFeat/pkg/metrics"
	"FinFeat/pkg/server"
)

// ProvideLogger creates the root structured logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when neither
// the candle source nor sync needs one.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.UseClickHouse() {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCache creates the Redis cache used for build locks and candle
// caching. Without Redis an in-process cache is used, which only
// serialises builds inside this process.
func ProvideCache(cfg *config.Config, log *applogger.Logger) cache.Service {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache()
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("finfeat"),
	)
	if err != nil {
		log.Warn("redis unavailable, using memory cache", applogger.Error(err))
		return cache.NewMemoryCache()
	}
	return rc
}

// ProvideEventPublisher creates the Kafka publisher, or a no-op one when
// Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config) (domrepo.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideBinanceClient creates the exchange klines client.
func ProvideBinanceClient(cfg *config.Config, log *applogger.Logger) *binance.Client {
	b := cfg.Fetch.Binance
	return binance.New(binance.Config{
		BaseURL:    b.BaseURL,
		Limit:      b.Limit,
		Batches:    b.Batches,
		Pause:      b.Pause,
		Timeout:    b.Timeout,
		MaxRetries: b.MaxRetries,
		RateLimit:  b.RateLimit,
		Burst:      b.Burst,
	}, binance.WithLogger(log))
}

// ProvideCandleSource selects where builds read candles from.
func ProvideCandleSource(
	cfg *config.Config,
	ch *pkgch.Client,
	bn *binance.Client,
	c cache.Service,
	log *applogger.Logger,
) (domrepo.CandleSource, error) {
	var src domrepo.CandleSource
	switch cfg.Fetch.Source {
	case "binance":
		src = bn
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("candle source clickhouse: no client")
		}
		store := internalrepo.NewCHCandleStore(ch)
		store.SetLogger(log)
		src = store
	case "file":
		src = internalrepo.NewFileCandleStore(cfg.Fetch.File.Dir)
	default:
		return nil, fmt.Errorf("unknown candle source %q", cfg.Fetch.Source)
	}
	if cfg.Fetch.Cache {
		src = internalrepo.NewCachedCandleSource(src, c, cfg.Redis.TTL, log)
	}
	return src, nil
}

// ProvideCandleSink picks where sync stores downloaded candles:
// ClickHouse when a client is open, otherwise the file store.
func ProvideCandleSink(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) domrepo.CandleSink {
	if ch != nil {
		store := internalrepo.NewCHCandleStore(ch)
		store.SetLogger(log)
		return store
	}
	return internalrepo.NewFileCandleStore(cfg.Fetch.File.Dir)
}

// ProvideFeatureRegistry registers the built-in feature schemes.
func ProvideFeatureRegistry() (*features.Registry, error) {
	return features.DefaultRegistry()
}

// ProvideArtifactStore creates the on-disk artifact layout under the output dir.
func ProvideArtifactStore(cfg *config.Config) *internalrepo.FSArtifactStore {
	return internalrepo.NewFSArtifactStore(cfg.Pipeline.OutputDir, cfg.Pipeline.NumFeatures)
}

// ProvideDatasetBuilder creates the dataset build use case.
func ProvideDatasetBuilder(
	cfg *config.Config,
	src domrepo.CandleSource,
	reg *features.Registry,
	store *internalrepo.FSArtifactStore,
	pub domrepo.EventPublisher,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.DatasetBuilder {
	return usecase.NewDatasetBuilder(src, reg, store, pub, m, log,
		usecase.WithWorkers(cfg.Pipeline.Workers),
		usecase.WithSourceName(cfg.Fetch.Source),
	)
}

// ProvideBuildRunner serialises family builds through the cache lock.
func ProvideBuildRunner(
	cfg *config.Config,
	b *usecase.DatasetBuilder,
	c cache.Service,
	log *applogger.Logger,
) *usecase.BuildRunner {
	return usecase.NewBuildRunner(b, c, usecase.BuildConfigs(cfg), time.Hour, log)
}

// ProvideModelRegistry creates the model metadata use case.
func ProvideModelRegistry(
	store *internalrepo.FSArtifactStore,
	pub domrepo.EventPublisher,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.ModelRegistry {
	return usecase.NewModelRegistry(store, store, pub, m, log)
}

// ProvideCandlesUseCase creates the candle query and sync use case.
func ProvideCandlesUseCase(
	src domrepo.CandleSource,
	reg *features.Registry,
	bn *binance.Client,
	sink domrepo.CandleSink,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(src, reg, m, log, usecase.WithSync(bn, sink))
}

// ProvidePipelineHandler creates the HTTP API handler.
func ProvidePipelineHandler(
	log *applogger.Logger,
	candles *usecase.CandlesUseCase,
	runner *usecase.BuildRunner,
	registry *usecase.ModelRegistry,
) *api.PipelineEchoHandler {
	return api.NewPipelineEchoHandler(log, candles, runner, registry)
}

// ProvideApp creates the application and hands it every resource to close.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	runner *usecase.BuildRunner,
	candles *usecase.CandlesUseCase,
	handler *api.PipelineEchoHandler,
	ch *pkgch.Client,
	c cache.Service,
	pub domrepo.EventPublisher,
) *server.App {
	app := server.New(cfg, log, runner, candles, handler)
	app.OnClose("kafka", pub)
	app.OnClose("cache", c)
	if ch != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ch.Health(ctx); err != nil {
			log.Warn("clickhouse not reachable yet", applogger.Error(err))
		}
		app.SetClickHouse(ch)
	}
	return app
}
