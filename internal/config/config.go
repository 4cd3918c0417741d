package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Check      CheckConfig      `yaml:"check" mapstructure:"check"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Fetcher    FetcherConfig    `yaml:"fetcher" mapstructure:"fetcher"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// CheckConfig configures batch lead scoring.
type CheckConfig struct {
	ChunkSize        int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkConcurrency int    `yaml:"chunk_concurrency" mapstructure:"chunk_concurrency"`
	PolicyFile       string `yaml:"policy_file" mapstructure:"policy_file"`
}

// IngestConfig configures change-list application.
type IngestConfig struct {
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	TrackingTTLDays  int    `yaml:"tracking_ttl_days" mapstructure:"tracking_ttl_days"`
	MaxErrorDetails  int    `yaml:"max_error_details" mapstructure:"max_error_details"`
	Source           string `yaml:"source" mapstructure:"source"`
}

// FetcherConfig configures the change-list blob store.
type FetcherConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	FTPTimeoutSecs int     `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// NotifyConfig configures job-completion notifications.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	From        string `yaml:"from" mapstructure:"from"`
	To          string `yaml:"to" mapstructure:"to"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MonitoringConfig configures the background ingest health checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key gets one so env-only values are picked up by Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "dnc.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("check.chunk_size", 1000)
	v.SetDefault("check.chunk_concurrency", 4)
	v.SetDefault("check.policy_file", "")
	v.SetDefault("ingest.batch_size", 1000)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.initial_backoff_ms", 100)
	v.SetDefault("ingest.tracking_ttl_days", 90)
	v.SetDefault("ingest.max_error_details", 50)
	v.SetDefault("ingest.source", "ftc")
	v.SetDefault("fetcher.base_url", "")
	v.SetDefault("fetcher.api_key", "")
	v.SetDefault("fetcher.timeout_secs", 60)
	v.SetDefault("fetcher.rate_per_sec", 5.0)
	v.SetDefault("fetcher.ftp_timeout_secs", 30)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.api_key", "")
	v.SetDefault("notify.from", "dnc-scrub@localhost")
	v.SetDefault("notify.to", "")
	v.SetDefault("notify.timeout_secs", 10)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_after_hours", 48)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
