package config

import (
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv() envconfig.Lookuper {
	return envconfig.MapLookuper(map[string]string{})
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithLookuper(tt.filePath, noEnv())

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, 5432, cfg.Database.Port)
			assert.Equal(t, "delayq", cfg.Database.Database)
			assert.True(t, cfg.Database.MigrateOnStartup)
			assert.Equal(t, "delayq_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "delayq_partitions", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "delayq-api", cfg.App.Name)
			assert.Equal(t, "Jobs", cfg.Partitions.BaseTable)
			assert.Equal(t, 14, cfg.Partitions.LookaheadDays)
			assert.Equal(t, 48*time.Hour, cfg.LowPrecision.ExpiryGrace)
			assert.Equal(t, 16, cfg.LowPrecision.Shards)
			assert.Equal(t, 4, cfg.Worker.Concurrency)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithLookuper("testdata/minimal.yaml", noEnv())
	require.NoError(t, err)

	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "Jobs", cfg.Partitions.BaseTable)
	assert.Equal(t, "public", cfg.Partitions.Schema)
	assert.Equal(t, 7, cfg.Partitions.LookaheadDays)
	assert.Equal(t, "@daily", cfg.Partitions.Schedule)
	assert.Equal(t, BackendMemory, cfg.LowPrecision.Backend)
	assert.Equal(t, 32, cfg.LowPrecision.Shards)
	assert.Equal(t, "delayq:lp", cfg.LowPrecision.KeyPrefix)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 2, cfg.Worker.PrefetchCount)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := envconfig.MapLookuper(map[string]string{
		"DELAYQ_DATABASE_HOST":         "db.internal",
		"DELAYQ_DATABASE_PASSWORD":     "s3cret",
		"DELAYQ_REDIS_ADDR":            "redis:6379",
		"DELAYQ_LOW_PRECISION_BACKEND": "redis",
		"DELAYQ_SERVER_PORT":           "9000",
		"DELAYQ_WORKER_METRICS_ADDR":   ":9091",
		// Unprefixed variables are ignored.
		"DATABASE_USER": "ignored",
	})

	cfg, err := LoadWithLookuper("testdata/valid_config.yaml", env)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "delayq", cfg.Database.User)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, BackendRedis, cfg.LowPrecision.Backend)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, ":9000", cfg.Server.Addr())
	assert.Equal(t, ":9091", cfg.Worker.MetricsAddr)
}

func TestLoad_EnvOverrideInvalid(t *testing.T) {
	env := envconfig.MapLookuper(map[string]string{
		"DELAYQ_SERVER_PORT": "not-a-number",
	})

	_, err := LoadWithLookuper("testdata/valid_config.yaml", env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply environment overrides")
}

func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "delayq",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "delayq_exchange"},
			Queue:    QueueConfig{Name: "delayq_partitions"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = 70000 },
			wantErr:   true,
			errString: "invalid database port",
		},
		{
			name:      "missing database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "missing rabbitmq queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "base table with quote",
			mutate:    func(c *Config) { c.Partitions.BaseTable = `Jobs"; DROP TABLE x; --` },
			wantErr:   true,
			errString: "invalid partitions base_table",
		},
		{
			name:      "base table too long",
			mutate:    func(c *Config) { c.Partitions.BaseTable = strings.Repeat("J", 60) },
			wantErr:   true,
			errString: "invalid partitions base_table",
		},
		{
			name:      "invalid backend",
			mutate:    func(c *Config) { c.LowPrecision.Backend = "dynamodb" },
			wantErr:   true,
			errString: "invalid low_precision backend",
		},
		{
			name:      "redis backend without addr",
			mutate:    func(c *Config) { c.LowPrecision.Backend = BackendRedis },
			wantErr:   true,
			errString: "redis addr is required",
		},
		{
			name: "redis backend with addr",
			mutate: func(c *Config) {
				c.LowPrecision.Backend = BackendRedis
				c.Redis.Addr = "localhost:6379"
			},
		},
		{
			name:      "negative expiry grace",
			mutate:    func(c *Config) { c.LowPrecision.ExpiryGrace = -time.Hour },
			wantErr:   true,
			errString: "expiry_grace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorker(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:   "standard cron schedule",
			mutate: func(c *Config) { c.Partitions.Schedule = "15 0 * * *" },
		},
		{
			name:      "invalid schedule",
			mutate:    func(c *Config) { c.Partitions.Schedule = "every day" },
			wantErr:   true,
			errString: "invalid partitions schedule",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = -1 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = -time.Second },
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "zero lookahead",
			mutate:    func(c *Config) { c.Partitions.LookaheadDays = -1 },
			wantErr:   true,
			errString: "lookahead_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorker()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAppConfig_IsProduction(t *testing.T) {
	assert.True(t, (&AppConfig{Environment: "Production"}).IsProduction())
	assert.False(t, (&AppConfig{Environment: "development"}).IsProduction())
}
