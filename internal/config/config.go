// Package config loads pattern-memory configuration from YAML.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/pattern-memory/internal/achievement"
	"github.com/rcliao/pattern-memory/internal/evolve"
	"github.com/rcliao/pattern-memory/internal/graph"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig           `yaml:"server"`
	Log          LogConfig              `yaml:"log"`
	DBPath       string                 `yaml:"db_path"`
	Engine       EngineConfig           `yaml:"engine"`
	Session      SessionConfig          `yaml:"session"`
	Graph        graph.Options          `yaml:"graph"`
	Achievements achievement.Thresholds `yaml:"achievements"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

type EngineConfig struct {
	Symbols       int `yaml:"symbols" validate:"gte=2,lte=16"`
	BranchCount   int `yaml:"branch_count" validate:"gte=1,lte=8"`
	MinClusterLen int `yaml:"min_cluster_len" validate:"gte=1"`
	MaxClusterLen int `yaml:"max_cluster_len" validate:"gtefield=MinClusterLen"`
}

type SessionConfig struct {
	PatternLength int `yaml:"pattern_length" validate:"gte=1,lte=256"`
	RecentWindow  int `yaml:"recent_window" validate:"gte=0"`
}

// EngineOptions converts the engine section for evolve.New.
func (c *Config) EngineOptions() evolve.Options {
	return evolve.Options{
		Symbols:       c.Engine.Symbols,
		BranchCount:   c.Engine.BranchCount,
		MinClusterLen: c.Engine.MinClusterLen,
		MaxClusterLen: c.Engine.MaxClusterLen,
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	eng := evolve.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Log: LogConfig{Level: "info"},
		Engine: EngineConfig{
			Symbols:       eng.Symbols,
			BranchCount:   eng.BranchCount,
			MinClusterLen: eng.MinClusterLen,
			MaxClusterLen: eng.MaxClusterLen,
		},
		Session: SessionConfig{
			PatternLength: 16,
			RecentWindow:  3,
		},
		Graph:        graph.DefaultOptions(),
		Achievements: achievement.DefaultThresholds(),
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// expandEnv substitutes ${VAR} and ${VAR:default} with environment values.
func expandEnv(data []byte) []byte {
	return envVarRe.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envVarRe.FindSubmatch(match)
		if v := os.Getenv(string(parts[1])); v != "" {
			return []byte(v)
		}
		return parts[2]
	})
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Parse(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving absent fields untouched.
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}
