package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cuongbtq/delayq/internal/api/handler"
	"github.com/cuongbtq/delayq/internal/api/router"
	"github.com/cuongbtq/delayq/internal/config"
	"github.com/cuongbtq/delayq/internal/lowprecision"
	"github.com/cuongbtq/delayq/internal/metrics"
	"github.com/cuongbtq/delayq/internal/partition"
	"github.com/cuongbtq/delayq/internal/storage"
	"github.com/cuongbtq/delayq/migrations"
	"github.com/cuongbtq/delayq/shared/logger"
	"github.com/cuongbtq/delayq/shared/postgresql"
	"github.com/cuongbtq/delayq/shared/rabbitmq"
	"github.com/cuongbtq/delayq/shared/redis"
)

// purgeInterval is how often the in-memory approximate tier drops expired jobs.
const purgeInterval = time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Component("postgresql"))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer dbClient.Close()

	if cfg.Database.MigrateOnStartup {
		if err := migrations.Up(ctx, dbClient.GetDB().DB, appLogger.Component("migrations")); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(registry, appLogger.Component("metrics"))

	partitions := initPartitionManager(cfg, dbClient, appLogger, sink)
	if cfg.Partitions.EnsureOnStartup {
		ensureStartupPartitions(ctx, partitions, cfg.Partitions.LookaheadDays, appLogger.Logger)
	}

	jobs := storage.NewJobStore(dbClient, cfg.Partitions.Schema, cfg.Partitions.BaseTable,
		appLogger.Component("job_store"), storage.WithMetrics(sink))

	healthChecks := map[string]handler.HealthChecker{
		"postgresql": dbClient,
	}

	lowPrecision, closeLowPrecision, err := initLowPrecision(ctx, cfg, appLogger, sink)
	if err != nil {
		return errors.Wrap(err, "failed to initialize low-precision store")
	}
	defer closeLowPrecision()
	healthChecks["low_precision"] = lowPrecision

	// The API still serves jobs without a broker; scheduling answers 503.
	var publisher handler.Publisher
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		appLogger.Warn("RabbitMQ unavailable, partition scheduling disabled",
			slog.Any("error", err),
		)
	} else {
		defer rabbitClient.Close()
		publisher = rabbitClient
		healthChecks["rabbitmq"] = healthCheckFunc(func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	}

	r := initRouter(cfg, &handler.Dependencies{
		Logger:       appLogger.Component("api"),
		Jobs:         jobs,
		LowPrecision: lowPrecision,
		Partitions:   partitions,
		Publisher:    publisher,
		HealthChecks: healthChecks,
	}, registry)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server",
			slog.String("address", srv.Addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

type healthCheckFunc func(ctx context.Context) error

func (f healthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

func initPartitionManager(cfg *config.Config, dbClient *postgresql.Client, appLogger *logger.Logger, sink metrics.Sink) *partition.Manager {
	catalog := partition.NewPostgresCatalog(dbClient, cfg.Partitions.Schema, cfg.Partitions.BaseTable,
		appLogger.Component("partition_catalog"))
	return partition.NewManager(catalog, cfg.Partitions.BaseTable, appLogger.Component("partition_manager"), sink)
}

func ensureStartupPartitions(ctx context.Context, partitions *partition.Manager, days int, logger *slog.Logger) {
	report, err := partitions.EnsureDailyPartitions(ctx, partition.TruncateDay(time.Now()), days)
	if err != nil {
		logger.Error("Startup partition ensure failed",
			slog.Any("error", err),
		)
		return
	}
	logger.Info("Startup partitions ensured",
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
}

// initLowPrecision builds the configured approximate-tier store and returns a
// func releasing its resources.
func initLowPrecision(ctx context.Context, cfg *config.Config, appLogger *logger.Logger, sink metrics.Sink) (lowprecision.Store, func(), error) {
	storeLogger := appLogger.Component("low_precision_store")

	if cfg.LowPrecision.Backend == config.BackendRedis {
		client, err := redis.NewClient(&redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, appLogger.Component("redis"))
		if err != nil {
			return nil, nil, err
		}

		store := lowprecision.NewRedisStore(client.Redis(), cfg.LowPrecision.KeyPrefix,
			cfg.LowPrecision.ExpiryGrace, storeLogger, lowprecision.WithMetrics(sink))
		return store, func() { _ = client.Close() }, nil
	}

	store := lowprecision.NewMemoryStore(cfg.LowPrecision.Shards, storeLogger, lowprecision.WithMetrics(sink))
	if cfg.LowPrecision.ExpiryGrace > 0 {
		go purgeExpired(ctx, store, cfg.LowPrecision.ExpiryGrace, storeLogger)
	}
	return store, func() {}, nil
}

func purgeExpired(ctx context.Context, store *lowprecision.MemoryStore, grace time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.PurgeExpired(ctx, grace); err != nil {
				logger.Error("Failed to purge expired jobs", slog.Any("error", err))
			}
		}
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, gatherer)
}
