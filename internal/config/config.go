package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hailam/taflmagic/internal/board"
	"github.com/hailam/taflmagic/internal/magic"
)

// Config holds all configuration for the table builder
type Config struct {
	Board  BoardConfig  `mapstructure:"board"`
	Build  BuildConfig  `mapstructure:"build"`
	Output OutputConfig `mapstructure:"output"`
	Log    LogConfig    `mapstructure:"log"`
}

// BoardConfig describes the board the oracle is built for
type BoardConfig struct {
	Width      int  `mapstructure:"width"`
	Height     int  `mapstructure:"height"`
	Restricted bool `mapstructure:"restricted"`
}

// BuildConfig holds magic search settings
type BuildConfig struct {
	Workers int    `mapstructure:"workers"`
	Seed    uint64 `mapstructure:"seed"`
	Policy  string `mapstructure:"policy"`
	Verify  bool   `mapstructure:"verify"`
}

// OutputConfig holds where finished tables go. An empty Path means
// <Name>.json.zst in the table directory of the local data dir.
type OutputConfig struct {
	Path  string `mapstructure:"path"`
	Store bool   `mapstructure:"store"`
	Name  string `mapstructure:"name"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Geometry returns the configured board.
func (c *Config) Geometry() board.Geometry {
	return board.Geometry{Width: c.Board.Width, Height: c.Board.Height}
}

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("board.width", board.Tafl11.Width)
	v.SetDefault("board.height", board.Tafl11.Height)
	v.SetDefault("board.restricted", false)

	v.SetDefault("build.workers", 0)
	v.SetDefault("build.seed", 0)
	v.SetDefault("build.policy", "relaxed")
	v.SetDefault("build.verify", false)

	v.SetDefault("output.path", "")
	v.SetDefault("output.store", false)
	v.SetDefault("output.name", "tafl11")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from defaults, the optional file at configPath
// and TAFLMAGIC_* environment variables, in increasing priority.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("taflmagic")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("TAFLMAGIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file in the default locations; use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration values
func Validate(c *Config) error {
	if err := c.Geometry().Validate(); err != nil {
		return fmt.Errorf("board: %w", err)
	}
	if c.Build.Workers < 0 {
		return fmt.Errorf("build.workers must be non-negative")
	}
	if _, err := magic.ParsePolicy(c.Build.Policy); err != nil {
		return fmt.Errorf("build.policy: %w", err)
	}
	if c.Output.Name == "" && (c.Output.Path == "" || c.Output.Store) {
		return fmt.Errorf("output.name is required when output.path is empty or output.store is set")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json")
	}

	return nil
}
