// File: internal/config/config.go
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
// It is populated once by viper (config file, environment, flag overrides)
// and treated as immutable afterwards; components receive the sub-config
// they need as an explicit argument, never through package globals.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Sampler  SamplerConfig  `mapstructure:"sampler" yaml:"sampler"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the optional Postgres connection details.
// When URL is empty the sampler writes plans to the NDJSON file store instead.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// SamplerConfig configures a single chain run.
type SamplerConfig struct {
	Samples      int     `mapstructure:"samples" yaml:"samples"`
	Epsilon      float64 `mapstructure:"epsilon" yaml:"epsilon"`
	Seed         int64   `mapstructure:"seed" yaml:"seed"`
	BurnIn       int     `mapstructure:"burn_in" yaml:"burn_in"`
	Thin         int     `mapstructure:"thin" yaml:"thin"`
	StepsBetween int     `mapstructure:"steps_between" yaml:"steps_between"`
	DropZeroPop  bool    `mapstructure:"drop_zero_pop" yaml:"drop_zero_pop"`
	// MaxStepsBudget caps total accepted steps. Zero means "derive the
	// default": (samples+burn_in)*(steps_between+1)*thin plus slack.
	MaxStepsBudget int    `mapstructure:"max_steps_budget" yaml:"max_steps_budget"`
	Out            string `mapstructure:"out" yaml:"out"`
}

// AnalysisConfig configures the ensemble analysis pass.
type AnalysisConfig struct {
	Workers int    `mapstructure:"workers" yaml:"workers"`
	Out     string `mapstructure:"out" yaml:"out"`
}

// SetDefaults registers the default values on a viper instance. The sampler
// defaults mirror the reference chain parameters (epsilon 2%, seed 24,
// a save every 101st accepted step).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "ensemble-cli")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)

	v.SetDefault("sampler.samples", 10)
	v.SetDefault("sampler.epsilon", 0.02)
	v.SetDefault("sampler.seed", 24)
	v.SetDefault("sampler.burn_in", 0)
	v.SetDefault("sampler.thin", 1)
	v.SetDefault("sampler.steps_between", 100)
	v.SetDefault("sampler.out", "ensemble_plans.ndjson")

	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.out", "plan_metrics.csv")
}

// Load unmarshals the fully-merged viper state into a Config and validates it.
// Invalid combinations fail here, before any store is created or any chain
// step is attempted.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the hard preconditions of a run.
func (c *Config) Validate() error {
	s := c.Sampler
	if s.Samples <= 0 {
		return fmt.Errorf("sampler.samples must be positive, got %d", s.Samples)
	}
	if s.Epsilon <= 0 || s.Epsilon >= 1 {
		return fmt.Errorf("sampler.epsilon must be in (0, 1), got %g", s.Epsilon)
	}
	if s.BurnIn < 0 {
		return fmt.Errorf("sampler.burn_in must be non-negative, got %d", s.BurnIn)
	}
	// A thinning interval of zero would make the keep rule unbounded.
	if s.Thin <= 0 {
		return fmt.Errorf("sampler.thin must be positive, got %d", s.Thin)
	}
	if s.StepsBetween < 0 {
		return fmt.Errorf("sampler.steps_between must be non-negative, got %d", s.StepsBetween)
	}
	if s.MaxStepsBudget < 0 {
		return fmt.Errorf("sampler.max_steps_budget must be non-negative, got %d", s.MaxStepsBudget)
	}
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis.workers must be non-negative, got %d", c.Analysis.Workers)
	}
	return nil
}

// StepsBudget resolves the accepted-step ceiling for this run: the explicit
// override when set, otherwise enough steps to produce every requested sample
// at the configured cadence, plus a little slack.
func (s SamplerConfig) StepsBudget() int {
	if s.MaxStepsBudget > 0 {
		return s.MaxStepsBudget
	}
	return (s.Samples+s.BurnIn)*(s.StepsBetween+1)*s.Thin + 100
}
