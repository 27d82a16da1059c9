// Package config loads mediacat's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/mediaflow/pkg/common/validation"
	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/streaming/pcbuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
)

// Config is the complete application configuration.
type Config struct {
	LogLevel     string   `yaml:"log_level"`
	MetricsAddr  string   `yaml:"metrics_addr"`
	BlockSize    int      `yaml:"block_size"`
	WindowSize   int      `yaml:"window_size"`
	SyncSchedule string   `yaml:"sync_schedule"`
	S3           S3       `yaml:"s3"`
	Redis        Redis    `yaml:"redis"`
	Sources      []Source `yaml:"sources"`
}

// S3 configures the client behind the "s3" source kind.
type S3 struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Enabled reports whether an S3 client should be built.
func (s S3) Enabled() bool { return s.Region != "" || s.Endpoint != "" }

// Redis configures the client behind the "redis" source kind.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Source is a named source definition.
type Source struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	Location string            `yaml:"location"`
	Params   map[string]string `yaml:"params"`
}

// MediaConfig converts the definition for media.Create.
func (s Source) MediaConfig() media.Config {
	return media.Config{Kind: s.Kind, Location: s.Location, Params: s.Params}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		BlockSize:    pcbuf.DefaultBlockSize,
		WindowSize:   sourcebuf.DefaultWindowSize,
		SyncSchedule: "@every 1s",
	}
}

// LoadFromFile reads a YAML file, substitutes ${VAR} and ${VAR:-default}
// references from the environment, and fills unset fields with defaults.
func LoadFromFile(path string) (*Config, error) {
	clean := filepath.Clean(path)
	ext := filepath.Ext(clean)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config: %s: only .yaml and .yml files are allowed", path)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", clean, err)
	}
	return Parse(data)
}

// Parse decodes YAML content with environment substitution.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env files that exist. Variables already set in the
// environment win, and earlier files win over later ones.
func LoadEnvFiles(files ...string) []string {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	return loaded
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	var errs []error
	if err := validation.ValidatePositive("config", "block_size", c.BlockSize); err != nil {
		errs = append(errs, err)
	}
	if err := validation.ValidatePositive("config", "window_size", c.WindowSize); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if err := validation.ValidateNotEmpty("config", field+".name", s.Name); err != nil {
			errs = append(errs, err)
		}
		if err := validation.ValidateNotEmpty("config", field+".kind", s.Kind); err != nil {
			errs = append(errs, err)
		}
		if s.Name != "" && seen[s.Name] {
			errs = append(errs, fmt.Errorf("config: duplicate source name %q", s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}

// Level maps log_level to a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log_level %q", c.LogLevel)
}

// Lookup returns the source named name.
func (c *Config) Lookup(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default}. An unset or empty
// variable takes the default, or the empty string.
func substituteEnvVars(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if value := os.Getenv(sub[1]); value != "" {
			return value
		}
		return sub[2]
	})
}
