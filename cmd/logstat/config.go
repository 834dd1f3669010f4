package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/logstat/internal/httpserver"
	"github.com/tinytelemetry/logstat/internal/logsource"
	"github.com/tinytelemetry/logstat/internal/model"
	"github.com/tinytelemetry/logstat/internal/store"
	"github.com/tinytelemetry/logstat/internal/tcpserver"
)

const (
	defaultConcurrency         = 4
	defaultAPIAddr             = httpserver.DefaultAddr
	defaultTCPAddr             = tcpserver.DefaultAddr
	defaultQueryTimeout        = 30 * time.Second
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = store.DefaultFlushQueueSize
	defaultRetentionDays       = 30 // 0 = disabled
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeepLast      = 24
	defaultLogMaxSizeMB        = 50
	defaultLogMaxBackups       = 3
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	StopwordsFile       string        `mapstructure:"stopwords-file"`
	TopKeywords         int           `mapstructure:"top-keywords"`
	MaxLineSize         int           `mapstructure:"max-line-size"`
	Concurrency         int           `mapstructure:"concurrency"`
	Pattern             string        `mapstructure:"pattern"`
	OutputDir           string        `mapstructure:"output-dir"`
	StoreEnabled        bool          `mapstructure:"store-enabled"` // analyze persists runs; serve always does
	StoreDriver         string        `mapstructure:"store-driver"`
	DBPath              string        `mapstructure:"db-path"`
	StoreEntries        bool          `mapstructure:"store-entries"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	RetentionDays       int           `mapstructure:"retention-days"`
	BackupEnabled       bool          `mapstructure:"backup-enabled"`
	BackupDir           string        `mapstructure:"backup-dir"`
	BackupInterval      time.Duration `mapstructure:"backup-interval"`
	BackupKeepLast      int           `mapstructure:"backup-keep-last"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIAddr             string        `mapstructure:"api-addr"`
	APIRateLimit        float64       `mapstructure:"api-rate-limit"`
	APIRateBurst        int           `mapstructure:"api-rate-burst"`
	APIMaxBodySize      int64         `mapstructure:"api-max-body-size"`
	TCPEnabled          bool          `mapstructure:"tcp-enabled"`
	TCPAddr             string        `mapstructure:"tcp-addr"`
	TCPMaxConnections   int           `mapstructure:"tcp-max-connections"`
	TCPIdleTimeout      time.Duration `mapstructure:"tcp-idle-timeout"`
	LogFile             string        `mapstructure:"log-file"`
	LogMaxSize          int           `mapstructure:"log-max-size"`
	LogMaxBackups       int           `mapstructure:"log-max-backups"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGSTAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("stopwords-file", "")
	v.SetDefault("top-keywords", model.DefaultTopKeywords)
	v.SetDefault("max-line-size", model.DefaultMaxLineSize)
	v.SetDefault("concurrency", defaultConcurrency)
	v.SetDefault("pattern", logsource.DefaultPattern)
	v.SetDefault("output-dir", "")
	v.SetDefault("store-enabled", false)
	v.SetDefault("store-driver", store.DriverSQLite)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "logstat", "logstat.db"))
	v.SetDefault("store-entries", true)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-dir", filepath.Join(home, ".local", "share", "logstat", "backups"))
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("api-rate-limit", 0)
	v.SetDefault("api-rate-burst", 1)
	v.SetDefault("api-max-body-size", httpserver.DefaultMaxBodySize)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-addr", defaultTCPAddr)
	v.SetDefault("tcp-max-connections", tcpserver.DefaultMaxConnections)
	v.SetDefault("tcp-idle-timeout", tcpserver.DefaultIdleTimeout)
	v.SetDefault("log-file", filepath.Join(home, ".local", "state", "logstat", "logstat.log"))
	v.SetDefault("log-max-size", defaultLogMaxSizeMB)
	v.SetDefault("log-max-backups", defaultLogMaxBackups)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logstat", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		// An explicit -config must exist.
		if configPath != "" || (!errors.As(err, &configFileNotFound) && !errors.Is(err, os.ErrNotExist)) {
			return cfg, err
		}
	} else {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.BackupDir = expandHome(cfg.BackupDir, home)
	cfg.LogFile = expandHome(cfg.LogFile, home)
	cfg.StopwordsFile = expandHome(cfg.StopwordsFile, home)

	return cfg, cfg.validate()
}

func (cfg appConfig) validate() error {
	switch cfg.StoreDriver {
	case store.DriverSQLite, store.DriverDuckDB:
	default:
		return fmt.Errorf("invalid store-driver: %q", cfg.StoreDriver)
	}
	if cfg.TopKeywords <= 0 {
		return fmt.Errorf("invalid top-keywords: %d", cfg.TopKeywords)
	}
	if cfg.MaxLineSize <= 0 {
		return fmt.Errorf("invalid max-line-size: %d", cfg.MaxLineSize)
	}
	if cfg.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency: %d", cfg.Concurrency)
	}
	if cfg.RetentionDays < 0 {
		return fmt.Errorf("invalid retention-days: %d", cfg.RetentionDays)
	}
	if cfg.APIRateLimit < 0 {
		return fmt.Errorf("invalid api-rate-limit: %v", cfg.APIRateLimit)
	}
	return nil
}

// expandHome expands a leading ~/ in path.
func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func (cfg appConfig) storeConfig() store.Config {
	return store.Config{
		Driver:       cfg.StoreDriver,
		Path:         cfg.DBPath,
		QueryTimeout: cfg.QueryTimeout,
	}
}

func (cfg appConfig) insertConfig() store.InsertBufferConfig {
	return store.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
	}
}
