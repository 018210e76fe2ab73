package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/shortlinks/internal/analytics"
	analyticsstore "github.com/serroba/shortlinks/internal/analytics/store"
	"github.com/serroba/shortlinks/internal/clock"
	"github.com/serroba/shortlinks/internal/handlers"
	"github.com/serroba/shortlinks/internal/health"
	"github.com/serroba/shortlinks/internal/messaging"
	"github.com/serroba/shortlinks/internal/metrics"
	"github.com/serroba/shortlinks/internal/middleware"
	"github.com/serroba/shortlinks/internal/ratelimit"
	"github.com/serroba/shortlinks/internal/reaper"
	"github.com/serroba/shortlinks/internal/shortener"
	"github.com/serroba/shortlinks/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RedisClient lets the injector close the client on shutdown.
type RedisClient struct {
	*redis.Client
}

// Shutdown closes the client.
func (c *RedisClient) Shutdown() error {
	return c.Close()
}

// PostgresPool lets the injector close the pool on shutdown.
type PostgresPool struct {
	*pgxpool.Pool
}

// Shutdown closes the pool.
func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

// LoggerPackage provides the *zap.Logger and the clock every component shares.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		return NewLogger(opts.LogFormat, opts.LogLevel)
	})

	do.Provide(injector, func(_ *do.Injector) (clock.Clock, error) {
		return clock.System{}, nil
	})
}

// NewLogger builds a json or console logger at the given level.
func NewLogger(format, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}

		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// RedisPackage provides the Redis client. Nothing connects until a command
// is issued.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisClient{redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides the connection pool, migrating the schema first
// when MigrateOnStart is set.
func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.MigrateOnStart {
			if err := store.Migrate(opts.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		return &PostgresPool{pool}, nil
	})
}

// MetricsPackage provides the Prometheus registry and the cache recorder.
func MetricsPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		return reg, nil
	})

	do.Provide(injector, func(i *do.Injector) (metrics.CacheRecorder, error) {
		reg := do.MustInvoke[*prometheus.Registry](i)
		logger := do.MustInvoke[*zap.Logger](i)

		prom, err := metrics.NewPrometheus(reg)
		if err != nil {
			return nil, err
		}

		return metrics.Multi{prom, metrics.NewLog(logger)}, nil
	})
}

// RepositoryPackage provides the cached alias repository and both indexes on
// the configured storage backend.
func RepositoryPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*store.CachingRepository, error) {
		opts := do.MustInvoke[*Options](i)

		var backing shortener.Repository

		switch opts.Storage {
		case BackendPostgres:
			backing = store.NewPostgresStore(do.MustInvoke[*PostgresPool](i).Pool)
		case BackendMemory:
			backing = store.NewMemoryStore()
		default:
			return nil, fmt.Errorf("unknown storage %q", opts.Storage)
		}

		return store.NewCachingRepository(
			backing,
			opts.CacheConfig(),
			do.MustInvoke[clock.Clock](i),
			do.MustInvoke[metrics.CacheRecorder](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(injector, func(i *do.Injector) (shortener.URLIndex, error) {
		if do.MustInvoke[*Options](i).Storage == BackendPostgres {
			return store.NewPostgresURLIndex(do.MustInvoke[*PostgresPool](i).Pool), nil
		}

		return store.NewMemoryURLIndex(), nil
	})

	do.Provide(injector, func(i *do.Injector) (shortener.ExpiryIndex, error) {
		if do.MustInvoke[*Options](i).Storage == BackendPostgres {
			return store.NewPostgresExpiryIndex(do.MustInvoke[*PostgresPool](i).Pool), nil
		}

		return store.NewMemoryExpiryIndex(), nil
	})
}

// RateLimitPackage provides the limiter and its counter store.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*store.CounterStore, error) {
		return store.NewCounterStore(time.Minute), nil
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.Limiter, error) {
		policy, err := do.MustInvoke[*Options](i).RateLimitPolicy()
		if err != nil {
			return nil, err
		}

		return ratelimit.NewLimiter(
			do.MustInvoke[*store.CounterStore](i),
			policy,
			do.MustInvoke[clock.Clock](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}

// BrokerPackage provides the in-process channel used as both publisher and
// subscriber when Queue is memory. It is only instantiated in that mode.
func BrokerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*gochannel.GoChannel, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		return gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: int64(opts.StatsBufferSize)},
			messaging.NewZapLogger(logger),
		), nil
	})
}

// PublisherGroupPackage provides the statistics publisher and the queue the
// service hands events to.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		opts := do.MustInvoke[*Options](i)

		var (
			publisher message.Publisher
			err       error
		)

		switch opts.Queue {
		case BackendRedis:
			publisher, err = messaging.NewRedisPublisher(
				do.MustInvoke[*RedisClient](i).Client,
				do.MustInvoke[*zap.Logger](i),
			)
			if err != nil {
				return nil, fmt.Errorf("create redis publisher: %w", err)
			}
		case BackendMemory:
			publisher = do.MustInvoke[*gochannel.GoChannel](i)
		default:
			return nil, fmt.Errorf("unknown queue %q", opts.Queue)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (*analytics.Queue, error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return analytics.NewQueue(
			messaging.Bind(group, analytics.TopicStatistics, analytics.EventKey),
			do.MustInvoke[*Options](i).StatsBufferSize,
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}

// ShortenerPackage provides the shortening service.
func ShortenerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*shortener.Service, error) {
		opts := do.MustInvoke[*Options](i)

		generate, err := shortener.NewRandomGenerator(opts.AliasLength)
		if err != nil {
			return nil, err
		}

		return shortener.NewService(
			do.MustInvoke[*store.CachingRepository](i),
			do.MustInvoke[shortener.URLIndex](i),
			do.MustInvoke[shortener.ExpiryIndex](i),
			do.MustInvoke[*ratelimit.Limiter](i),
			do.MustInvoke[*analytics.Queue](i),
			generate,
			do.MustInvoke[clock.Clock](i),
			opts.ShortenerConfig(),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}

// ReaperPackage provides the expired link sweeper.
func ReaperPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (reaper.Locker, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.LockBackend {
		case BackendRedis:
			return store.NewRedisLocker(do.MustInvoke[*RedisClient](i).Client), nil
		case BackendMemory:
			return store.NewMemoryLocker(do.MustInvoke[clock.Clock](i)), nil
		default:
			return nil, fmt.Errorf("unknown lock backend %q", opts.LockBackend)
		}
	})

	do.Provide(injector, func(i *do.Injector) (*reaper.Reaper, error) {
		opts := do.MustInvoke[*Options](i)

		cfg := reaper.DefaultConfig()
		cfg.Interval = seconds(opts.ReaperIntervalSeconds)
		cfg.LeaseTTL = seconds(opts.ReaperLeaseSeconds)

		return reaper.New(
			do.MustInvoke[*store.CachingRepository](i),
			do.MustInvoke[shortener.ExpiryIndex](i),
			do.MustInvoke[reaper.Locker](i),
			do.MustInvoke[clock.Clock](i),
			cfg,
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}

// ConsumerGroupPackage provides the statistics processor inside a consumer
// group. Aggregates go to Postgres when Storage is postgres and to the log
// otherwise.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (analytics.Store, error) {
		logger := do.MustInvoke[*zap.Logger](i)

		if do.MustInvoke[*Options](i).Storage == BackendPostgres {
			return analyticsstore.NewPostgres(do.MustInvoke[*PostgresPool](i).Pool), nil
		}

		return analyticsstore.NewNoop(logger), nil
	})

	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		var (
			subscriber message.Subscriber
			err        error
		)

		switch opts.Queue {
		case BackendRedis:
			subscriber, err = messaging.NewRedisSubscriber(
				do.MustInvoke[*RedisClient](i).Client,
				opts.StatsConsumerGroup,
				logger,
			)
			if err != nil {
				return nil, fmt.Errorf("create redis subscriber: %w", err)
			}
		case BackendMemory:
			subscriber = do.MustInvoke[*gochannel.GoChannel](i)
		default:
			return nil, fmt.Errorf("unknown queue %q", opts.Queue)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add("statistics", analytics.NewProcessor(
			subscriber,
			do.MustInvoke[analytics.Store](i),
			logger,
			messaging.WithMaxAttempts(opts.StatsMaxAttempts),
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the API with every route registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*chi.Mux, error) {
		router := chi.NewMux()
		router.Use(chimiddleware.Recoverer)

		reg := do.MustInvoke[*prometheus.Registry](i)
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

		return router, nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)

		config := huma.DefaultConfig("URL Shortener", "1.0.0")
		config.DocsPath = "/api/docs"
		config.OpenAPIPath = "/api/openapi"
		config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"apiKey": {Type: "apiKey", In: "header", Name: "X-API-Key"},
		}

		api := humachi.New(router, config)
		api.UseMiddleware(
			middleware.RequestMeta(api),
			middleware.APIKeyAuth(api, middleware.APIKeyConfig{
				Enabled:     opts.APIAuthEnabled,
				ShortenKeys: middleware.ParseKeys(opts.ShortenAPIKeys),
				AdminKeys:   middleware.ParseKeys(opts.AdminAPIKeys),
			}, logger),
		)

		health.RegisterRoutes(api, health.NewHandler(checkers(i, opts)))

		service := do.MustInvoke[*shortener.Service](i)
		handlers.RegisterRoutes(api, handlers.NewURLHandler(service, opts.ShortURLBase(), opts.RootRedirectURL, logger))

		return api, nil
	})
}

// Handler returns the fully wired HTTP handler.
func Handler(injector *do.Injector) (http.Handler, error) {
	if _, err := do.Invoke[huma.API](injector); err != nil {
		return nil, err
	}

	return do.Invoke[*chi.Mux](injector)
}

func checkers(i *do.Injector, opts *Options) map[string]health.Checker {
	result := make(map[string]health.Checker)

	if opts.Queue == BackendRedis || opts.LockBackend == BackendRedis {
		result["redis"] = health.NewRedisChecker(do.MustInvoke[*RedisClient](i).Client)
	}

	if opts.Storage == BackendPostgres {
		result["postgres"] = health.NewPostgresChecker(do.MustInvoke[*PostgresPool](i).Pool)
	}

	return result
}
