package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML-tunable subset of Config. Connection settings stay
// in the environment; the file only carries knobs an operator may want to
// turn on a running deployment.
type fileConfig struct {
	Cache struct {
		TTL         *duration `yaml:"ttl"`
		DegradedTTL *duration `yaml:"degraded_ttl"`
		OpTimeout   *duration `yaml:"op_timeout"`
	} `yaml:"cache"`
	Check struct {
		BatchLimit      *int      `yaml:"batch_limit"`
		ResolverTimeout *duration `yaml:"resolver_timeout"`
	} `yaml:"check"`
	Expiry struct {
		Schedule  *string `yaml:"schedule"`
		BatchSize *int    `yaml:"batch_size"`
	} `yaml:"expiry"`
	LogLevel *string `yaml:"log_level"`
}

// duration parses YAML strings like "15m" or "50ms"
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// applyFile overlays the YAML tunables from path onto the config
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if fc.Cache.TTL != nil {
		c.Cache.TTL = time.Duration(*fc.Cache.TTL)
	}
	if fc.Cache.DegradedTTL != nil {
		c.Cache.DegradedTTL = time.Duration(*fc.Cache.DegradedTTL)
	}
	if fc.Cache.OpTimeout != nil {
		c.Cache.OpTimeout = time.Duration(*fc.Cache.OpTimeout)
	}
	if fc.Check.BatchLimit != nil {
		c.Check.BatchLimit = *fc.Check.BatchLimit
	}
	if fc.Check.ResolverTimeout != nil {
		c.Check.ResolverTimeout = time.Duration(*fc.Check.ResolverTimeout)
	}
	if fc.Expiry.Schedule != nil {
		c.Expiry.Schedule = *fc.Expiry.Schedule
	}
	if fc.Expiry.BatchSize != nil {
		c.Expiry.BatchSize = *fc.Expiry.BatchSize
	}
	if fc.LogLevel != nil {
		c.Observability.LogLevel = parseLogLevel(*fc.LogLevel)
	}

	return nil
}
