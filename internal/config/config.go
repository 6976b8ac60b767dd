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
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the wide-record workbook or CSV file.
type InputConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	Format     string `yaml:"format" mapstructure:"format"`
	Sheet      string `yaml:"sheet" mapstructure:"sheet"`
	SheetIndex int    `yaml:"sheet_index" mapstructure:"sheet_index"`
	Delimiter  string `yaml:"delimiter" mapstructure:"delimiter"`
}

// StoreConfig configures the output database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Mode        string `yaml:"mode" mapstructure:"mode"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PipelineConfig configures the normalization flow.
type PipelineConfig struct {
	Workers    int    `yaml:"workers" mapstructure:"workers"`
	DateLayout string `yaml:"date_layout" mapstructure:"date_layout"`
}

// MetricsConfig configures metric export. Both targets are optional.
type MetricsConfig struct {
	Textfile       string `yaml:"textfile" mapstructure:"textfile"`
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `yaml:"job" mapstructure:"job"`
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
	v.SetEnvPrefix("SOIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.format", "auto")
	v.SetDefault("input.sheet", "")
	v.SetDefault("input.sheet_index", 0)
	v.SetDefault("input.path", "")
	v.SetDefault("input.delimiter", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "soil_data.db")
	v.SetDefault("store.mode", "replace")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.date_layout", "2006-01-02")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "soil-etl")
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

// Validate checks the settings the given command depends on. Mode is one
// of "normalize", "inspect", "migrate" or "runs".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "normalize", "inspect":
		problems = append(problems, c.validateInput()...)
		if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 64 {
			problems = append(problems, "pipeline.workers must be between 1 and 64")
		}
		if mode == "normalize" {
			problems = append(problems, c.validateStore(true)...)
		}
	case "migrate", "runs":
		problems = append(problems, c.validateStore(false)...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateInput() []string {
	var problems []string
	if c.Input.Path == "" {
		problems = append(problems, "input.path is required")
	}
	switch c.Input.Format {
	case "", "auto", "xlsx", "csv":
	default:
		problems = append(problems, "input.format must be auto, xlsx or csv")
	}
	if c.Input.SheetIndex < 0 {
		problems = append(problems, "input.sheet_index must be >= 0")
	}
	return problems
}

func (c *Config) validateStore(allowNone bool) []string {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "none":
		if !allowNone {
			problems = append(problems, "store.driver none has no database")
		}
	default:
		problems = append(problems, "store.driver must be sqlite, postgres or none")
	}
	switch c.Store.Mode {
	case "", "replace":
	case "upsert":
		if c.Store.Driver == "sqlite" {
			problems = append(problems, "store.mode upsert requires the postgres driver")
		}
	default:
		problems = append(problems, "store.mode must be replace or upsert")
	}
	return problems
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
