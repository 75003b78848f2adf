// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the extension configuration.
type Config struct {
	Core      CoreConfig      `yaml:"core"`
	Extension ExtensionConfig `yaml:"extension"`
	State     StateConfig     `yaml:"state"`
	Log       LogConfig       `yaml:"log"`
}

// CoreConfig locates the media-control core.
type CoreConfig struct {
	URL string `yaml:"url" default:"ws://localhost:9330/api" validate:"required,url"`
}

// ExtensionConfig identifies this extension towards the core.
type ExtensionConfig struct {
	ID          string `yaml:"id" default:"com.theappgineer.zone-presets" validate:"required"`
	DisplayName string `yaml:"display_name" default:"Zone Presets"`
	Version     string `yaml:"version" default:"1.0.0"`
	Publisher   string `yaml:"publisher" default:"The Appgineer"`
	Email       string `yaml:"email" default:"theappgineer@gmail.com"`
}

// StateConfig holds persistence locations.
type StateConfig struct {
	SettingsPath string `yaml:"settings_path" default:"data/settings.json" validate:"required"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Output string `yaml:"output" default:"stdout"`
}

// Load loads configuration from a YAML file. A missing file is not an error;
// the defaults describe a core on localhost. Environment variables take
// precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CORE_URL"); v != "" {
		c.Core.URL = v
	}
	if v := os.Getenv("SETTINGS_PATH"); v != "" {
		c.State.SettingsPath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
