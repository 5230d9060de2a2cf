package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kolkov/affinity/internal/affinity/classify"
)

// EnvVar names the environment variable holding the config file path used
// by the process-wide monitor.
const EnvVar = "AFFINITY_CONFIG"

// DefaultFile is the config file name the weaver looks for in a module
// root.
const DefaultFile = "affinity.yml"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the top-level affinity.yml configuration
type Config struct {
	Version    string            `yaml:"version"`
	Affinity   AffinityConfig    `yaml:"affinity"`
	Monitoring *MonitoringConfig `yaml:"monitoring,omitempty"`
	Exempt     ExemptConfig      `yaml:"exempt,omitempty"`
	Weave      WeaveConfig       `yaml:"weave,omitempty"`
	Log        LogConfig         `yaml:"log,omitempty"`
}

// AffinityConfig identifies the affinity goroutine
type AffinityConfig struct {
	NamePrefix string `yaml:"name_prefix"` // Goroutine name prefix holding the affinity role (default "event-loop")
}

// MonitoringConfig controls problem buffering while no listener is set
type MonitoringConfig struct {
	Enabled    *bool `yaml:"enabled,omitempty"`     // Default: true
	MaxPending int   `yaml:"max_pending,omitempty"` // 0 = unbounded
}

// ExemptConfig extends the built-in exemption rules
type ExemptConfig struct {
	Signatures []string        `yaml:"signatures,omitempty"` // Canonical signatures, e.g. "Refresh()"
	Patterns   []classify.Rule `yaml:"patterns,omitempty"`   // Name prefix/suffix pairs
}

// WeaveConfig tags guarded types for the weaver, in addition to
// //affinity:guarded and //affinity:attach directives in source
type WeaveConfig struct {
	GuardedTypes  []string `yaml:"guarded_types,omitempty"`  // "pkg.Type" as written in the declaring package
	AttachMethods []string `yaml:"attach_methods,omitempty"` // Method names that attach a child component
}

// LogConfig configures the monitor's own logger
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error (default "info")
	Format string `yaml:"format,omitempty"` // text or json (default "text")
	File   string `yaml:"file,omitempty"`   // Empty means stderr
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{Version: "1.0"}
	// Cannot fail: defaults are valid.
	_ = c.Validate()
	return c
}

// Load reads, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromEnv loads the file named by EnvVar, or returns Default when the
// variable is unset.
func FromEnv() (*Config, error) {
	path := strings.TrimSpace(os.Getenv(EnvVar))
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("%w: unsupported version: %q (expected: 1.0)", ErrInvalid, c.Version)
	}

	if c.Affinity.NamePrefix == "" {
		c.Affinity.NamePrefix = "event-loop"
	}

	if c.Monitoring == nil {
		c.Monitoring = &MonitoringConfig{}
	}
	if c.Monitoring.Enabled == nil {
		enabled := true
		c.Monitoring.Enabled = &enabled
	}
	if c.Monitoring.MaxPending < 0 {
		return fmt.Errorf("%w: monitoring.max_pending must be >= 0 (0 = unbounded), got %d", ErrInvalid, c.Monitoring.MaxPending)
	}

	for _, s := range c.Exempt.Signatures {
		if _, err := classify.ParseSignature(s); err != nil {
			return fmt.Errorf("%w: exempt.signatures: %w", ErrInvalid, err)
		}
	}
	for i, p := range c.Exempt.Patterns {
		if p.Signature != "" {
			return fmt.Errorf("%w: exempt.patterns[%d]: use exempt.signatures for exact signatures", ErrInvalid, i)
		}
		if p.Prefix == "" && p.Suffix == "" {
			return fmt.Errorf("%w: exempt.patterns[%d]: prefix or suffix is required", ErrInvalid, i)
		}
	}

	for _, t := range c.Weave.GuardedTypes {
		if strings.Count(t, ".") != 1 || strings.HasPrefix(t, ".") || strings.HasSuffix(t, ".") {
			return fmt.Errorf("%w: weave.guarded_types: %q must have the form pkg.Type", ErrInvalid, t)
		}
	}

	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: invalid log.level: %s (must be 'debug', 'info', 'warn', or 'error')", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("%w: invalid log.format: %s (must be 'text' or 'json')", ErrInvalid, c.Log.Format)
	}

	return nil
}

// MonitoringEnabled reports the effective monitoring flag.
func (c *Config) MonitoringEnabled() bool {
	return c.Monitoring == nil || c.Monitoring.Enabled == nil || *c.Monitoring.Enabled
}

// ExemptRules returns the configured rules in classifier form. Signatures
// are normalized to their canonical spelling.
func (c *Config) ExemptRules() []classify.Rule {
	rules := make([]classify.Rule, 0, len(c.Exempt.Signatures)+len(c.Exempt.Patterns))
	for _, s := range c.Exempt.Signatures {
		sig, err := classify.ParseSignature(s)
		if err != nil {
			continue // rejected by Validate
		}
		rules = append(rules, classify.Rule{Signature: sig.String()})
	}
	rules = append(rules, c.Exempt.Patterns...)
	return rules
}

// Classifier returns the default classifier extended with the configured
// rules.
func (c *Config) Classifier() *classify.Classifier {
	return classify.Default().With(c.ExemptRules()...)
}
