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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Lineage LineageConfig `yaml:"lineage" mapstructure:"lineage"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LineageConfig configures lineage graph traversal.
type LineageConfig struct {
	// MaxDepth bounds any single ancestor walk. Exceeding it surfaces a
	// truncation error instead of looping.
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`
}

// ScoringConfig configures accuracy scoring and credit backpropagation.
type ScoringConfig struct {
	DepthDecayFactor float64 `yaml:"depth_decay_factor" mapstructure:"depth_decay_factor"`
	// PolicyFile points at an optional YAML scoring policy with
	// per-classification overrides.
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
	// RecomputeConcurrency bounds parallel owners during a full profile
	// recompute.
	RecomputeConcurrency int `yaml:"recompute_concurrency" mapstructure:"recompute_concurrency"`
}

// NotifyConfig configures the outbound webhook notifier.
type NotifyConfig struct {
	WebhookURL   string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	EventsPerSec float64 `yaml:"events_per_sec" mapstructure:"events_per_sec"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("FORESIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "foresight.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("lineage.max_depth", 1000)
	v.SetDefault("scoring.depth_decay_factor", 0.5)
	v.SetDefault("scoring.policy_file", "")
	v.SetDefault("scoring.recompute_concurrency", 4)
	v.SetDefault("notify.events_per_sec", 5)
	v.SetDefault("notify.timeout_secs", 10)
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
