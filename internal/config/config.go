package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration
type Config struct {
	Input      InputConfig      `yaml:"input" envconfig:"INPUT"`
	Evaluation EvaluationConfig `yaml:"evaluation" envconfig:"EVALUATION"`
	Growth     GrowthConfig     `yaml:"growth" envconfig:"GROWTH"`
	Output     OutputConfig     `yaml:"output" envconfig:"OUTPUT"`
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
}

// InputConfig describes where observations come from
type InputConfig struct {
	Path            string `yaml:"path" envconfig:"PATH" validate:"required"`
	Sheet           string `yaml:"sheet" envconfig:"SHEET" default:"Sheet1"`
	DateColumn      string `yaml:"date_column" envconfig:"DATE_COLUMN" default:"Date"`
	ValueColumn     string `yaml:"value_column" envconfig:"VALUE_COLUMN" default:"Value"`
	RegressorColumn string `yaml:"regressor_column" envconfig:"REGRESSOR_COLUMN"`
}

// EvaluationConfig controls the rolling-origin backtest
type EvaluationConfig struct {
	MinTrain             int     `yaml:"min_train" envconfig:"MIN_TRAIN" default:"20" validate:"min=8"`
	Horizon              int     `yaml:"horizon" envconfig:"HORIZON" default:"8" validate:"min=1"`
	Workers              int     `yaml:"workers" envconfig:"WORKERS" default:"4" validate:"min=1"`
	IntervalConfidence   float64 `yaml:"interval_confidence" envconfig:"INTERVAL_CONFIDENCE" default:"0.8" validate:"min=0,max=0.999"`
	FutureExogFromSeries bool    `yaml:"future_exog_from_series" envconfig:"FUTURE_EXOG_FROM_SERIES" default:"false"`
}

// GrowthConfig controls year-over-year growth derivation
type GrowthConfig struct {
	PreferActual bool `yaml:"prefer_actual" envconfig:"PREFER_ACTUAL" default:"true"`
}

// OutputConfig describes where run artifacts are written
type OutputConfig struct {
	Dir     string `yaml:"dir" envconfig:"DIR" default:"output" validate:"required"`
	WithBOM bool   `yaml:"with_bom" envconfig:"WITH_BOM" default:"false"`
}

// ServerConfig contains the report server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains per-server request rate limits
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"50" validate:"min=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"25" validate:"min=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/qeval.log"`
}

// Load builds the configuration in layers: struct defaults and QEVAL_*
// environment variables first, then an optional YAML file whose keys
// override both.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("QEVAL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := overlayFromFile(configFile, &cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// overlayFromFile unmarshals a YAML file over cfg. Only keys present in the
// document are touched, so absent keys keep their env or default values.
func overlayFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks field constraints and cross-field consistency
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if c.Evaluation.Horizon > c.Evaluation.MinTrain {
		return fmt.Errorf("evaluation horizon %d exceeds minimum training length %d",
			c.Evaluation.Horizon, c.Evaluation.MinTrain)
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q requires a file path", c.Logging.Output)
	}

	return nil
}
