// Package config loads the relay configuration from a YAML file with
// SSERELAY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mroth/sserelay"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SSERELAY_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Route maps a request path to a route action.
type Route struct {
	Path   string `yaml:"path"`
	Action string `yaml:"action"`
}

// Config is the complete relay configuration.
type Config struct {
	Listen          string  `yaml:"listen" env:"LISTEN"`
	Upstream        string  `yaml:"upstream" env:"UPSTREAM"`
	BufferSize      int     `yaml:"buffer_size" env:"BUFFER_SIZE"`
	MaxMessageSize  int     `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	Workers         int     `yaml:"workers" env:"WORKERS"`
	CORSAllowOrigin string  `yaml:"cors_allow_origin" env:"CORS_ALLOW_ORIGIN"`
	LogLevel        string  `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat       string  `yaml:"log_format" env:"LOG_FORMAT"`
	DisableAdmin    bool    `yaml:"disable_admin" env:"DISABLE_ADMIN"`
	Routes          []Route `yaml:"routes"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Listen:     ":8111",
		Upstream:   sserelay.DefaultUpstream,
		BufferSize: sserelay.DefaultBufferSize,
		Workers:    1,
		LogLevel:   "info",
		LogFormat:  "console",
	}
}

// Load reads the file at path, if path is not empty, over the defaults, then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first problem found in c.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "":
		return fmt.Errorf("%w: listen address is empty", ErrInvalid)
	case c.Upstream == "":
		return fmt.Errorf("%w: upstream address is empty", ErrInvalid)
	case c.BufferSize <= 0:
		return fmt.Errorf("%w: buffer_size must be positive", ErrInvalid)
	case c.MaxMessageSize < 0:
		return fmt.Errorf("%w: max_message_size must not be negative", ErrInvalid)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalid)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log_format must be console or json, got %q", ErrInvalid, c.LogFormat)
	}

	seen := make(map[string]bool, len(c.Routes))
	for _, r := range c.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("%w: route path %q must start with /", ErrInvalid, r.Path)
		}
		if seen[r.Path] {
			return fmt.Errorf("%w: duplicate route path %q", ErrInvalid, r.Path)
		}
		seen[r.Path] = true
		if _, err := sserelay.ParseAction(r.Action); err != nil {
			return fmt.Errorf("%w: route %s: %v", ErrInvalid, r.Path, err)
		}
	}
	return nil
}

// RouteMap returns the routes in the form Server.SetRoutes takes.
func (c *Config) RouteMap() map[string]string {
	m := make(map[string]string, len(c.Routes))
	for _, r := range c.Routes {
		m[r.Path] = r.Action
	}
	return m
}

// ServerOptions translates c into options for sserelay.NewServer.
func (c *Config) ServerOptions() []sserelay.ServerOption {
	opts := []sserelay.ServerOption{
		sserelay.WithUpstream(c.Upstream),
		sserelay.WithBufferSize(c.BufferSize),
		sserelay.WithMaxMessageSize(c.MaxMessageSize),
		sserelay.WithWorkers(c.Workers),
		sserelay.WithCORSAllowOrigin(c.CORSAllowOrigin),
		sserelay.WithRoutes(c.RouteMap()),
	}
	if c.DisableAdmin {
		opts = append(opts, sserelay.WithAdminDisabled())
	}
	return opts
}
