package di

import (
	"fmt"

	"NKDash/internal/domain/repository"
	"NKDash/internal/handler/api"
	mid "NKDash/internal/middleware"
	internalrepo "NKDash/internal/repository"
	"NKDash/internal/service/eventlog"
	"NKDash/internal/service/ratelimit"
	"NKDash/internal/service/telemetry"
	"NKDash/internal/usecase"
	"NKDash/pkg/cache"
	"NKDash/pkg/config"
	xhttp "NKDash/pkg/http"
	pkgkafka "NKDash/pkg/kafka"
	applogger "NKDash/pkg/logger"
	"NKDash/pkg/metrics"
	"NKDash/pkg/server"
)

const serviceName = "nkdash"

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopic(cfg.Environment != "production"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. Error logs are aggregated and
// shipped to the log topic when a producer is available.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			Topic:     cfg.Kafka.LogTopic,
			Publisher: producer,
			Source:    serviceName,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEventLog creates the activity trail.
func ProvideEventLog(cfg *config.Config) *eventlog.Ring {
	return eventlog.New(eventlog.WithTimeFormat(cfg.EventLog.TimeFormat))
}

// ProvideDialer creates the telemetry socket dialer.
func ProvideDialer(cfg *config.Config) repository.Dialer {
	return telemetry.NewDialer(cfg.Telemetry.HandshakeTimeout, cfg.Telemetry.ReadLimit)
}

// ProvideConnectionManager creates the connection manager.
func ProvideConnectionManager(
	cfg *config.Config,
	dialer repository.Dialer,
	ring *eventlog.Ring,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ConnectionManager {
	return usecase.NewConnectionManager(dialer, cfg.Telemetry.WebSocketURL, ring,
		usecase.WithReconnectDelay(cfg.Telemetry.ReconnectDelay),
		usecase.WithSubscriberBuffer(cfg.Telemetry.SubscriberBuffer),
		usecase.WithManagerMetrics(m),
		usecase.WithManagerLogger(l.With(applogger.String("component", "telemetry"))),
	)
}

// ProvideSnapshotMirror connects to Redis, or returns nil when the mirror is disabled.
func ProvideSnapshotMirror(cfg *config.Config) (repository.SnapshotMirror, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return internalrepo.NewCacheSnapshotMirror(rc, cfg.Redis.TTL), nil
}

// ProvideEventPublisher wraps the producer, or returns nil when Kafka is disabled.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic, serviceName)
}

// ProvideEventPipeline builds the pipeline between the manager and the external sinks.
func ProvideEventPipeline(
	cfg *config.Config,
	m repository.Metrics,
	mirror repository.SnapshotMirror,
	pub repository.EventPublisher,
	l *applogger.Logger,
) *mid.EventPipeline {
	return mid.NewEventPipeline(m,
		mid.WithMirror(mirror),
		mid.WithPublisher(pub),
		mid.WithMaxRPS(cfg.Redis.MaxWritesPerSec),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithPipelineLogger(l.With(applogger.String("component", "pipeline"))),
	)
}

// ProvideDashboardHandler creates the read API handler.
func ProvideDashboardHandler(
	cfg *config.Config,
	l *applogger.Logger,
	mgr *usecase.ConnectionManager,
	mirror repository.SnapshotMirror,
) xhttp.Handler {
	return api.NewDashboardEchoHandler(l, mgr,
		api.WithRateLimit(ratelimit.New(), cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.PerSecond),
		api.WithSnapshotMirror(mirror),
	)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Path),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	mgr *usecase.ConnectionManager,
	pipe *mid.EventPipeline,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, l, mgr, pipe, srv)
}
