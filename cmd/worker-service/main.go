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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/delayq/internal/config"
	"github.com/cuongbtq/delayq/internal/metrics"
	"github.com/cuongbtq/delayq/internal/partition"
	"github.com/cuongbtq/delayq/internal/worker"
	"github.com/cuongbtq/delayq/shared/logger"
	"github.com/cuongbtq/delayq/shared/postgresql"
	"github.com/cuongbtq/delayq/shared/rabbitmq"
)

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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.ValidateWorker(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Component("postgresql"))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer dbClient.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return errors.Wrap(err, "failed to initialize RabbitMQ")
	}
	defer rabbitClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(registry, appLogger.Component("metrics"))

	catalog := partition.NewPostgresCatalog(dbClient, cfg.Partitions.Schema, cfg.Partitions.BaseTable,
		appLogger.Component("partition_catalog"))
	manager := partition.NewManager(catalog, cfg.Partitions.BaseTable, appLogger.Component("partition_manager"), sink)

	janitor, err := worker.NewJanitor(manager, worker.JanitorConfig{
		Schedule:      cfg.Partitions.Schedule,
		LookaheadDays: cfg.Partitions.LookaheadDays,
		RunOnStart:    cfg.Partitions.EnsureOnStartup,
	}, appLogger.Logger)
	if err != nil {
		return err
	}

	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Consumer:      rabbitClient,
		Partitions:    manager,
		Metrics:       sink,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.Worker.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Janitor:       janitor,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	var metricsServer *http.Server
	if cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			appLogger.Info("Serving worker metrics", slog.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server failed")
			}
			return nil
		})
	}

	// Either a signal or a failed goroutine stops everything else.
	g.Go(func() error {
		<-gctx.Done()
		workerInstance.Stop()
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	appLogger.Info("Worker service started successfully", slog.String("worker_id", workerInstance.ID()))

	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
			return err
		}
	case <-ctx.Done():
		appLogger.Info("Shutting down worker service...")

		select {
		case err := <-waitErr:
			if err != nil {
				appLogger.Warn("Worker stopped with error", slog.Any("error", err))
			}
		case <-time.After(cfg.Worker.ShutdownTimeout):
			appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
			return errors.New("worker shutdown timed out")
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

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
