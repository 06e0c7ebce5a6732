package config

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvPrefix prefixes every environment override, e.g. DELAYQ_DATABASE_PASSWORD.
	EnvPrefix = "DELAYQ_"

	// maxBaseTableLen keeps "<base>_YYYYMMDD" within PostgreSQL's 63 byte identifier limit.
	maxBaseTableLen = 54
)

// Low-precision store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Redis        RedisConfig        `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
	App          AppConfig          `yaml:"app"`
	Partitions   PartitionsConfig   `yaml:"partitions"`
	LowPrecision LowPrecisionConfig `yaml:"low_precision"`
	Worker       WorkerConfig       `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT, overwrite"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host             string        `yaml:"host" env:"DATABASE_HOST, overwrite"`
	Port             int           `yaml:"port" env:"DATABASE_PORT, overwrite"`
	User             string        `yaml:"user" env:"DATABASE_USER, overwrite"`
	Password         string        `yaml:"password" env:"DATABASE_PASSWORD, overwrite"`
	Database         string        `yaml:"database" env:"DATABASE_NAME, overwrite"`
	SSLMode          string        `yaml:"sslmode" env:"DATABASE_SSLMODE, overwrite"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `yaml:"conn_max_idle_time"`
	MigrateOnStartup bool          `yaml:"migrate_on_startup" env:"DATABASE_MIGRATE_ON_STARTUP, overwrite"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST, overwrite"`
	Port       int              `yaml:"port" env:"RABBITMQ_PORT, overwrite"`
	User       string           `yaml:"user" env:"RABBITMQ_USER, overwrite"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD, overwrite"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR, overwrite"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD, overwrite"`
	DB           int           `yaml:"db" env:"REDIS_DB, overwrite"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL, overwrite"`
	Format       string `yaml:"format" env:"LOG_FORMAT, overwrite"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"ENVIRONMENT, overwrite"`
}

// PartitionsConfig holds exact-tier partition maintenance settings
type PartitionsConfig struct {
	BaseTable       string `yaml:"base_table"`
	Schema          string `yaml:"schema"`
	LookaheadDays   int    `yaml:"lookahead_days"`
	Schedule        string `yaml:"schedule" env:"PARTITIONS_SCHEDULE, overwrite"`
	EnsureOnStartup bool   `yaml:"ensure_on_startup"`
}

// LowPrecisionConfig holds approximate-tier store settings
type LowPrecisionConfig struct {
	Backend     string        `yaml:"backend" env:"LOW_PRECISION_BACKEND, overwrite"`
	Shards      int           `yaml:"shards"`
	ExpiryGrace time.Duration `yaml:"expiry_grace"`
	KeyPrefix   string        `yaml:"key_prefix"`
}

// WorkerConfig holds partition maintenance worker configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PrefetchCount   int           `yaml:"prefetch_count"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MetricsAddr serves /metrics when set, e.g. ":9091".
	MetricsAddr string `yaml:"metrics_addr" env:"WORKER_METRICS_ADDR, overwrite"`
}

// Addr returns the listen address for the configured port.
func (s *ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// Load reads the configuration file, applies defaults and then environment overrides
func Load(configPath string) (*Config, error) {
	return LoadWithLookuper(configPath, envconfig.OsLookuper())
}

// LoadWithLookuper is Load with an explicit source for environment overrides.
func LoadWithLookuper(configPath string, lookuper envconfig.Lookuper) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	config.ApplyDefaults()

	if err := config.applyEnv(context.Background(), lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv(ctx context.Context, lookuper envconfig.Lookuper) error {
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   c,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, lookuper),
	})
	if err != nil {
		return errors.Wrap(err, "failed to apply environment overrides")
	}
	return nil
}

// ApplyDefaults fills zero values with the service defaults
func (c *Config) ApplyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 2 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Partitions.BaseTable == "" {
		c.Partitions.BaseTable = "Jobs"
	}
	if c.Partitions.Schema == "" {
		c.Partitions.Schema = "public"
	}
	if c.Partitions.LookaheadDays == 0 {
		c.Partitions.LookaheadDays = 7
	}
	if c.Partitions.Schedule == "" {
		c.Partitions.Schedule = "@daily"
	}
	if c.LowPrecision.Backend == "" {
		c.LowPrecision.Backend = BackendMemory
	}
	if c.LowPrecision.Shards == 0 {
		c.LowPrecision.Shards = 32
	}
	if c.LowPrecision.KeyPrefix == "" {
		c.LowPrecision.KeyPrefix = "delayq:lp"
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 2
	}
	if c.Worker.PrefetchCount == 0 {
		c.Worker.PrefetchCount = c.Worker.Concurrency
	}
	if c.Worker.JobTimeout == 0 {
		c.Worker.JobTimeout = 2 * time.Minute
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the configuration used by the API service
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return errors.Newf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	if err := c.validatePartitions(); err != nil {
		return err
	}

	switch c.LowPrecision.Backend {
	case BackendMemory:
		if c.LowPrecision.Shards < 1 {
			return errors.New("low_precision shards must be greater than 0")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis addr is required for the redis low_precision backend")
		}
	default:
		return errors.Newf("invalid low_precision backend: %q (must be %s or %s)", c.LowPrecision.Backend, BackendMemory, BackendRedis)
	}

	if c.LowPrecision.ExpiryGrace < 0 {
		return errors.New("low_precision expiry_grace must not be negative")
	}

	return nil
}

// ValidateWorker checks the configuration used by the worker service
func (c *Config) ValidateWorker() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	if err := c.validatePartitions(); err != nil {
		return err
	}

	if _, err := cron.ParseStandard(c.Partitions.Schedule); err != nil {
		return errors.Wrapf(err, "invalid partitions schedule %q", c.Partitions.Schedule)
	}

	if c.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be greater than 0")
	}

	if c.Worker.PrefetchCount <= 0 {
		return errors.New("worker prefetch_count must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return errors.New("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return errors.New("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return errors.Newf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return errors.Newf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validatePartitions() error {
	base := c.Partitions.BaseTable
	if !identifierPattern.MatchString(base) || len(base) > maxBaseTableLen {
		return errors.Newf("invalid partitions base_table: %q", base)
	}

	if !identifierPattern.MatchString(c.Partitions.Schema) {
		return errors.Newf("invalid partitions schema: %q", c.Partitions.Schema)
	}

	if c.Partitions.LookaheadDays < 1 {
		return errors.New("partitions lookahead_days must be greater than 0")
	}

	return nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
