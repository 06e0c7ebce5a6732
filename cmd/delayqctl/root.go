package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/delayq/internal/config"
	"github.com/cuongbtq/delayq/internal/partition"
	"github.com/cuongbtq/delayq/shared/logger"
	"github.com/cuongbtq/delayq/shared/postgresql"
)

// session is the state shared by every subcommand after PersistentPreRunE.
type session struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logger.Logger
	db     *postgresql.Client
}

func newRootCmd() *cobra.Command {
	s := &session{}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}

	root := &cobra.Command{
		Use:   "delayqctl",
		Short: "Operate the delayq job store",
		Long: `delayqctl manages the schema and daily partitions of the delayq "Jobs" table.

Examples:
  delayqctl migrate up                          # Apply pending migrations
  delayqctl migrate status                      # Show migration state
  delayqctl partitions ensure --days 14         # Ensure 14 days starting today
  delayqctl partitions ensure --from 2025-03-10 --to 2025-04-01
  delayqctl partitions list                     # List attached partitions
  delayqctl partitions drop Jobs_20250310       # Drop one daily partition`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return s.close()
		},
	}

	root.PersistentFlags().StringVarP(&s.configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newMigrateCmd(s))
	root.AddCommand(newPartitionsCmd(s))
	return root
}

func (s *session) open() error {
	_ = godotenv.Load()

	cfg, err := config.Load(s.configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	s.cfg = cfg

	s.logger, err = logger.New(&logger.Config{
		Level:  s.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}

	s.db, err = postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, s.logger.Component("postgresql"))
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	return nil
}

func (s *session) close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return err
		}
	}
	if s.logger != nil {
		return s.logger.Close()
	}
	return nil
}

func (s *session) partitionManager() *partition.Manager {
	p := s.cfg.Partitions
	catalog := partition.NewPostgresCatalog(s.db, p.Schema, p.BaseTable, s.logger.Component("partition_catalog"))
	return partition.NewManager(catalog, p.BaseTable, s.logger.Component("partition_manager"), nil)
}
