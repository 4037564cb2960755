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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Rollup   RollupConfig   `yaml:"rollup" mapstructure:"rollup"`
	Rules    RulesConfig    `yaml:"rules" mapstructure:"rules"`
	Outcome  OutcomeConfig  `yaml:"outcome" mapstructure:"outcome"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port              int     `yaml:"port" mapstructure:"port"`
	ConfirmRatePerMin float64 `yaml:"confirm_rate_per_min" mapstructure:"confirm_rate_per_min"`
}

// RollupConfig holds the platform gating defaults for window aggregation.
type RollupConfig struct {
	WindowDays        int     `yaml:"window_days" mapstructure:"window_days"`
	MinCallsWindow    int64   `yaml:"min_calls_window" mapstructure:"min_calls_window"`
	MinLeadsWindow    int64   `yaml:"min_leads_window" mapstructure:"min_leads_window"`
	PresenceThreshold float64 `yaml:"metric_presence_threshold" mapstructure:"metric_presence_threshold"`
}

// RulesConfig configures the classification engine.
type RulesConfig struct {
	ThresholdsPath       string  `yaml:"thresholds_path" mapstructure:"thresholds_path"`
	WarningWindowDays    int     `yaml:"warning_window_days" mapstructure:"warning_window_days"`
	SustainedPremiumDays int     `yaml:"sustained_premium_days" mapstructure:"sustained_premium_days"`
	ThresholdProximity   float64 `yaml:"threshold_proximity" mapstructure:"threshold_proximity"`
}

// OutcomeConfig configures the difference-in-differences tracker.
type OutcomeConfig struct {
	PreDays               int     `yaml:"pre_days" mapstructure:"pre_days"`
	PostDays              int     `yaml:"post_days" mapstructure:"post_days"`
	MinCohortSize         int     `yaml:"min_cohort_size" mapstructure:"min_cohort_size"`
	NoiseThreshold        float64 `yaml:"noise_threshold" mapstructure:"noise_threshold"`
	RevenueNoiseThreshold float64 `yaml:"revenue_noise_threshold" mapstructure:"revenue_noise_threshold"`
}

// PipelineConfig configures run orchestration.
type PipelineConfig struct {
	MaxConcurrentSubIDs int `yaml:"max_concurrent_subids" mapstructure:"max_concurrent_subids"`
	HistoryLookbackDays int `yaml:"history_lookback_days" mapstructure:"history_lookback_days"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUBIQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.confirm_rate_per_min", 30)
	v.SetDefault("rollup.window_days", 30)
	v.SetDefault("rollup.min_calls_window", 50)
	v.SetDefault("rollup.min_leads_window", 100)
	v.SetDefault("rollup.metric_presence_threshold", 0.10)
	v.SetDefault("rules.thresholds_path", "thresholds.yaml")
	v.SetDefault("rules.warning_window_days", 14)
	v.SetDefault("rules.sustained_premium_days", 30)
	v.SetDefault("rules.threshold_proximity", 0.10)
	v.SetDefault("outcome.pre_days", 14)
	v.SetDefault("outcome.post_days", 14)
	v.SetDefault("outcome.min_cohort_size", 5)
	v.SetDefault("outcome.noise_threshold", 0.05)
	v.SetDefault("outcome.revenue_noise_threshold", 1.0)
	v.SetDefault("pipeline.max_concurrent_subids", 8)
	v.SetDefault("pipeline.history_lookback_days", 45)

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
