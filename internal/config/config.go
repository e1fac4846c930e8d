package config

import (
	"fmt"
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
	SPC        SPCConfig        `yaml:"spc" mapstructure:"spc"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Influx     InfluxConfig     `yaml:"influx" mapstructure:"influx"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SPCConfig configures control chart evaluation.
type SPCConfig struct {
	// SubmitWindow is how many prior points classify a new submission.
	SubmitWindow int `yaml:"submit_window" mapstructure:"submit_window"`
}

// MonitoringConfig configures KPI checks and webhook notifications.
type MonitoringConfig struct {
	Enabled                 bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	PendingBacklogThreshold int     `yaml:"pending_backlog_threshold" mapstructure:"pending_backlog_threshold"`
	ConformityThreshold     float64 `yaml:"conformity_threshold" mapstructure:"conformity_threshold"`
	NotifyNewAlerts         bool    `yaml:"notify_new_alerts" mapstructure:"notify_new_alerts"`
	NotifyRatePerSec        float64 `yaml:"notify_rate_per_sec" mapstructure:"notify_rate_per_sec"`
}

// InfluxConfig configures the optional time-series mirror. An empty URL
// disables it.
type InfluxConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Token  string `yaml:"token" mapstructure:"token"`
	Org    string `yaml:"org" mapstructure:"org"`
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "controlcalidad.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("spc.submit_window", 100)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.pending_backlog_threshold", 10)
	v.SetDefault("monitoring.conformity_threshold", 95.0)
	v.SetDefault("monitoring.notify_new_alerts", false)
	v.SetDefault("monitoring.notify_rate_per_sec", 1.0)
	v.SetDefault("influx.org", "planta")
	v.SetDefault("influx.bucket", "calidad")

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

// Validate checks the settings a command mode needs. Modes: "store" for
// commands that only touch the database, "serve" for the HTTP server and
// its background workers.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.SPC.SubmitWindow < 2 {
		errs = append(errs, fmt.Sprintf("spc.submit_window must be >= 2, got %d", c.SPC.SubmitWindow))
	}

	switch mode {
	case "store":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RequestTimeoutSecs <= 0 {
			errs = append(errs, "server.request_timeout_secs must be > 0")
		}
		m := c.Monitoring
		if m.ConformityThreshold < 0 || m.ConformityThreshold > 100 {
			errs = append(errs, "monitoring.conformity_threshold must be between 0 and 100")
		}
		if m.Enabled && m.CheckIntervalSecs <= 0 {
			errs = append(errs, "monitoring.check_interval_secs must be > 0")
		}
		if m.NotifyNewAlerts && m.NotifyRatePerSec <= 0 {
			errs = append(errs, "monitoring.notify_rate_per_sec must be > 0")
		}
		if (m.Enabled || m.NotifyNewAlerts) && m.WebhookURL == "" {
			errs = append(errs, "monitoring.webhook_url is required when monitoring is enabled")
		}
		if c.Influx.URL != "" && c.Influx.Bucket == "" {
			errs = append(errs, "influx.bucket is required when influx.url is set")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
