package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contractor-intel/internal/classify"
	"github.com/sells-group/contractor-intel/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Insights   InsightsConfig   `yaml:"insights" mapstructure:"insights"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	GeneratorModel string `yaml:"generator_model" mapstructure:"generator_model"`
	JudgeModel     string `yaml:"judge_model" mapstructure:"judge_model"`
}

// ScrapeConfig configures the listing/profile scraper.
type ScrapeConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Headless        bool    `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs  int     `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	MaxPages        int     `yaml:"max_pages" mapstructure:"max_pages"`
	RequestsPerSec  float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Retries         int     `yaml:"retries" mapstructure:"retries"`
	ChromePath      string  `yaml:"chrome_path" mapstructure:"chrome_path"`
	DefaultDistance int     `yaml:"default_distance" mapstructure:"default_distance"`
}

// RefreshConfig configures the incremental refresh engine.
type RefreshConfig struct {
	Thresholds       classify.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	FetchConcurrency int                 `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
}

// InsightsConfig configures insight generation and the quality gate.
type InsightsConfig struct {
	Weights       model.RubricWeights `yaml:"weights" mapstructure:"weights"`
	Threshold     float64             `yaml:"threshold" mapstructure:"threshold"`
	MaxIterations int                 `yaml:"max_iterations" mapstructure:"max_iterations"`
}

// ServerConfig configures the REST API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background health checker and alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleInsightsMax     int     `yaml:"stale_insights_max" mapstructure:"stale_insights_max"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment, then validates it.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTRACTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "contractor-intel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.generator_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.judge_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("scrape.base_url", "https://www.gaf.com")
	v.SetDefault("scrape.headless", true)
	v.SetDefault("scrape.nav_timeout_secs", 60)
	v.SetDefault("scrape.max_pages", 10)
	v.SetDefault("scrape.requests_per_sec", 0.5)
	v.SetDefault("scrape.retries", 2)
	v.SetDefault("scrape.default_distance", 25)
	v.SetDefault("refresh.thresholds.rating_delta", 0.3)
	v.SetDefault("refresh.thresholds.reviews_up", 10)
	v.SetDefault("refresh.thresholds.reviews_down", 5)
	v.SetDefault("refresh.fetch_concurrency", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.stale_insights_max", 50)
	v.SetDefault("insights.threshold", 3.8)
	v.SetDefault("insights.max_iterations", 2)
	v.SetDefault("insights.weights.accuracy", 0.40)
	v.SetDefault("insights.weights.actionability", 0.30)
	v.SetDefault("insights.weights.personalization", 0.20)
	v.SetDefault("insights.weights.conciseness", 0.10)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would corrupt scoring or change
// detection. Invalid values are fatal at startup, never silently ignored.
func (c *Config) Validate() error {
	if err := c.Insights.Weights.Validate(); err != nil {
		return eris.Wrap(err, "config: insights weights")
	}
	if c.Insights.Threshold < 1 || c.Insights.Threshold > 5 {
		return eris.Errorf("config: insights threshold %.2f outside [1,5]", c.Insights.Threshold)
	}
	if c.Insights.MaxIterations < 0 {
		return eris.Errorf("config: negative max iterations %d", c.Insights.MaxIterations)
	}
	if c.Refresh.Thresholds.RatingDelta <= 0 {
		return eris.Errorf("config: rating delta threshold %.2f must be positive", c.Refresh.Thresholds.RatingDelta)
	}
	if c.Refresh.Thresholds.ReviewsUp <= 0 || c.Refresh.Thresholds.ReviewsDown <= 0 {
		return eris.New("config: review thresholds must be positive")
	}
	if c.Refresh.FetchConcurrency < 1 {
		return eris.Errorf("config: fetch concurrency %d must be at least 1", c.Refresh.FetchConcurrency)
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
