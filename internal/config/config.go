// Package config loads metis configuration from an optional YAML file
// with METIS_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// #region types

// Config is the full runtime configuration.
type Config struct {
	DBPath   string
	LogLevel string
	Assess   AssessConfig
	Decide   DecideConfig
	Goals    GoalsConfig
}

// AssessConfig tunes the assessment engine and the monitor cadence.
type AssessConfig struct {
	Interval     time.Duration
	MetricWindow time.Duration
}

// DecideConfig tunes the decision engine.
type DecideConfig struct {
	Autonomous          bool
	MaxConcurrent       int
	Workers             int
	ConfidenceThreshold float64
}

// GoalsConfig points at an optional goal seed file.
type GoalsConfig struct {
	SeedFile string
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		DBPath:   "metis.db",
		LogLevel: "info",
		Assess: AssessConfig{
			Interval:     5 * time.Minute,
			MetricWindow: time.Hour,
		},
		Decide: DecideConfig{
			Autonomous:          false,
			MaxConcurrent:       3,
			Workers:             2,
			ConfidenceThreshold: 0.6,
		},
	}
}

// #endregion types

// #region load

// Load reads configuration from path, or searches for metis.yaml in the
// working directory and ~/.metis when path is empty. Missing search-path
// files fall back to defaults; an explicit missing path is an error.
// Environment variables prefixed METIS_ override file values.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("metis")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".metis"))
		}
	}
	v.SetEnvPrefix("METIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults keep missing keys from zeroing the config.
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("assess.interval", cfg.Assess.Interval)
	v.SetDefault("assess.metric_window", cfg.Assess.MetricWindow)
	v.SetDefault("decide.autonomous", cfg.Decide.Autonomous)
	v.SetDefault("decide.max_concurrent", cfg.Decide.MaxConcurrent)
	v.SetDefault("decide.workers", cfg.Decide.Workers)
	v.SetDefault("decide.confidence_threshold", cfg.Decide.ConfidenceThreshold)
	v.SetDefault("goals.seed_file", cfg.Goals.SeedFile)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if path != "" || !notFound {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.DBPath = v.GetString("db_path")
	cfg.LogLevel = v.GetString("log_level")
	cfg.Assess.Interval = v.GetDuration("assess.interval")
	cfg.Assess.MetricWindow = v.GetDuration("assess.metric_window")
	cfg.Decide.Autonomous = v.GetBool("decide.autonomous")
	cfg.Decide.MaxConcurrent = v.GetInt("decide.max_concurrent")
	cfg.Decide.Workers = v.GetInt("decide.workers")
	cfg.Decide.ConfidenceThreshold = v.GetFloat64("decide.confidence_threshold")
	cfg.Goals.SeedFile = v.GetString("goals.seed_file")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion load

// #region validate

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []string

	if c.DBPath == "" {
		errs = append(errs, "db_path must not be empty")
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("log_level %q is invalid, must be one of: debug, info, warn, error", c.LogLevel))
	}
	if c.Assess.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("assess.interval must be positive, got %s", c.Assess.Interval))
	}
	if c.Assess.MetricWindow <= 0 {
		errs = append(errs, fmt.Sprintf("assess.metric_window must be positive, got %s", c.Assess.MetricWindow))
	}
	if c.Decide.MaxConcurrent < 1 {
		errs = append(errs, fmt.Sprintf("decide.max_concurrent must be at least 1, got %d", c.Decide.MaxConcurrent))
	}
	if c.Decide.Workers < 1 {
		errs = append(errs, fmt.Sprintf("decide.workers must be at least 1, got %d", c.Decide.Workers))
	}
	if c.Decide.ConfidenceThreshold < 0 || c.Decide.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("decide.confidence_threshold must be within [0, 1], got %g", c.Decide.ConfidenceThreshold))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// #endregion validate

// #region seeds

// SeedGoal is one entry in a YAML goal seed file.
type SeedGoal struct {
	Description  string   `yaml:"description"`
	Priority     string   `yaml:"priority"`
	TargetMetric string   `yaml:"target_metric"`
	TargetValue  float64  `yaml:"target_value"`
	InitialValue float64  `yaml:"initial_value"`
	Deadline     string   `yaml:"deadline,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

// LoadSeedGoals parses a YAML list of goals.
func LoadSeedGoals(path string) ([]SeedGoal, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var goals []SeedGoal
	if err := yaml.Unmarshal(raw, &goals); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return goals, nil
}

// #endregion seeds
