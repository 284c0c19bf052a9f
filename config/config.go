/*
Package config loads the service configuration.

PURPOSE:
  One Config struct for the whole service, loaded from defaults, an
  optional YAML file, and CAREXPENSES_* environment variables (in that
  order of increasing precedence).

USAGE:
  cfg, err := config.Load("")            // defaults + env only
  cfg, err := config.Load("config.yaml") // plus a file
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig bounds the recurrence search horizons and expansion.
type EngineConfig struct {
	WeeklyHorizonDays  int `mapstructure:"weekly_horizon_days"`
	MonthlyHorizonDays int `mapstructure:"monthly_horizon_days"`
	YearlyHorizonYears int `mapstructure:"yearly_horizon_years"`
	MaxExpansion       int `mapstructure:"max_expansion"`
}

// BatchConfig bounds the periodic processor and its claims.
type BatchConfig struct {
	DefaultBatchSize    int           `mapstructure:"default_batch_size"`
	MaxBatchSize        int           `mapstructure:"max_batch_size"`
	DefaultMaxSchedules int           `mapstructure:"default_max_schedules"`
	ErrorReportCap      int           `mapstructure:"error_report_cap"`
	ClaimTTL            time.Duration `mapstructure:"claim_ttl"`

	// CronSpec is the robfig/cron expression for the periodic run.
	// Empty disables the internal scheduler.
	CronSpec string `mapstructure:"cron_spec"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CAREXPENSES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "./data/carexpenses.db")

	v.SetDefault("engine.weekly_horizon_days", 14)
	v.SetDefault("engine.monthly_horizon_days", 62)
	v.SetDefault("engine.yearly_horizon_years", 8)
	v.SetDefault("engine.max_expansion", 1000)

	v.SetDefault("batch.default_batch_size", 50)
	v.SetDefault("batch.max_batch_size", 500)
	v.SetDefault("batch.default_max_schedules", 1000)
	v.SetDefault("batch.error_report_cap", 20)
	v.SetDefault("batch.claim_ttl", 5*time.Minute)
	v.SetDefault("batch.cron_spec", "0 3 * * *")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.MaxExpansion <= 0 {
		return fmt.Errorf("engine.max_expansion must be positive, got %d", c.Engine.MaxExpansion)
	}
	if c.Batch.DefaultBatchSize <= 0 || c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.Batch.DefaultBatchSize > c.Batch.MaxBatchSize {
		return fmt.Errorf("batch.default_batch_size %d exceeds batch.max_batch_size %d",
			c.Batch.DefaultBatchSize, c.Batch.MaxBatchSize)
	}
	if c.Batch.ClaimTTL <= 0 {
		return fmt.Errorf("batch.claim_ttl must be positive, got %s", c.Batch.ClaimTTL)
	}
	return nil
}
