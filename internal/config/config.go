package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openquant/indexfill/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Yahoo     YahooConfig      `yaml:"yahoo" mapstructure:"yahoo"`
	Wikipedia WikipediaConfig  `yaml:"wikipedia" mapstructure:"wikipedia"`
	Collector CollectorConfig  `yaml:"collector" mapstructure:"collector"`
	Backfill  BackfillConfig   `yaml:"backfill" mapstructure:"backfill"`
	Schedule  ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitor   MonitoringConfig `yaml:"monitor" mapstructure:"monitor"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver selects the backend: "sqlite" or "postgres".
	Driver string `yaml:"driver" mapstructure:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path" mapstructure:"path"`
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// YahooConfig holds market data provider settings.
type YahooConfig struct {
	BaseURL string                 `yaml:"base_url" mapstructure:"base_url"`
	Retry   resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// WikipediaConfig holds reference data scrape settings.
type WikipediaConfig struct {
	BaseURL string                 `yaml:"base_url" mapstructure:"base_url"`
	Retry   resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// CollectorConfig tunes pacing, batching and the provider circuit.
type CollectorConfig struct {
	TickersPerSecond float64                         `yaml:"tickers_per_second" mapstructure:"tickers_per_second"`
	BatchDelay       time.Duration                   `yaml:"batch_delay" mapstructure:"batch_delay"`
	BatchSize        int                             `yaml:"batch_size" mapstructure:"batch_size"`
	Circuit          resilience.CircuitBreakerConfig `yaml:"circuit" mapstructure:"circuit"`
}

// BackfillConfig configures backfill runs.
type BackfillConfig struct {
	// DefaultRangeDays sizes the range when no start date is given.
	DefaultRangeDays int `yaml:"default_range_days" mapstructure:"default_range_days"`
	// IncrementalDaysBack sizes incremental runs.
	IncrementalDaysBack int `yaml:"incremental_days_back" mapstructure:"incremental_days_back"`
	// SeedFile optionally overrides the embedded membership change seed.
	SeedFile string `yaml:"seed_file" mapstructure:"seed_file"`
	// ChangeStartYear bounds how far back scraped change events go.
	ChangeStartYear int `yaml:"change_start_year" mapstructure:"change_start_year"`
}

// ScheduleConfig configures the cron runner.
type ScheduleConfig struct {
	// Spec is a cron expression for incremental runs.
	Spec string `yaml:"spec" mapstructure:"spec"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures scheduler health checks and webhook alerts.
type MonitoringConfig struct {
	// WebhookURL receives alert POSTs. Empty disables delivery; alerts are
	// still logged.
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// StaleDataDays is how old the newest bronze price date may be before
	// alerting. Keep it above 3 so weekends and Monday holidays stay quiet.
	StaleDataDays int `yaml:"stale_data_days" mapstructure:"stale_data_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INDEXFILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "indexfill.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("yahoo.retry.max_attempts", 3)
	v.SetDefault("yahoo.retry.initial_backoff", "1s")
	v.SetDefault("wikipedia.base_url", "https://en.wikipedia.org")
	v.SetDefault("wikipedia.retry.max_attempts", 3)
	v.SetDefault("wikipedia.retry.initial_backoff", "2s")
	v.SetDefault("collector.tickers_per_second", 2)
	v.SetDefault("collector.batch_delay", "500ms")
	v.SetDefault("collector.batch_size", 50)
	v.SetDefault("collector.circuit.failure_threshold", 5)
	v.SetDefault("collector.circuit.reset_timeout", "30s")
	v.SetDefault("backfill.default_range_days", 730)
	v.SetDefault("backfill.incremental_days_back", 7)
	v.SetDefault("backfill.change_start_year", 2000)
	v.SetDefault("schedule.spec", "0 22 * * 1-5")
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.lookback_window_hours", 24)
	v.SetDefault("monitor.failure_rate_threshold", 0.5)
	v.SetDefault("monitor.stale_data_days", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields the named mode depends on. Modes: "backfill",
// "serve", "schedule".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Collector.TickersPerSecond <= 0 {
		problems = append(problems, "collector.tickers_per_second must be > 0")
	}
	if c.Collector.BatchSize < 1 || c.Collector.BatchSize > 500 {
		problems = append(problems, "collector.batch_size must be between 1 and 500")
	}

	switch mode {
	case "backfill":
		if c.Backfill.DefaultRangeDays < 1 {
			problems = append(problems, "backfill.default_range_days must be >= 1")
		}
		if c.Backfill.IncrementalDaysBack < 1 || c.Backfill.IncrementalDaysBack > 90 {
			problems = append(problems, "backfill.incremental_days_back must be between 1 and 90")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "schedule":
		if c.Schedule.Spec == "" {
			problems = append(problems, "schedule.spec is required")
		}
		if c.Monitor.FailureRateThreshold <= 0 || c.Monitor.FailureRateThreshold > 1 {
			problems = append(problems, "monitor.failure_rate_threshold must be in (0, 1]")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
