// Package config loads and validates cellforge configuration from file,
// environment, and defaults.
package config

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Config is the top-level configuration struct for cellforge.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Compiler  CompilerConfig  `mapstructure:"compiler"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Output    OutputConfig    `mapstructure:"output"`
}

// CompilerConfig holds cell compilation knobs.
type CompilerConfig struct {
	// TestRewrite requests the rewrite pass for every cell instead of
	// only test cells.
	TestRewrite bool `mapstructure:"test_rewrite"`
	// AnonymousFiles disables source anchoring globally.
	AnonymousFiles bool `mapstructure:"anonymous_files"`
}

// CacheConfig holds compile-cache settings.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxSize is a human-readable byte size ("64 MB", "1gib").
	MaxSize string `mapstructure:"max_size"`
	// SnapshotPath is where the warm-start snapshot lives; "" disables
	// persistence.
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// TelemetryConfig holds metric emission settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// OutputConfig holds CLI presentation settings.
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// Output formats accepted by OutputConfig.Format.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidCacheSize indicates the cache size string does not parse.
	ErrInvalidCacheSize = errors.New("cache.max_size is not a valid size")
	// ErrInvalidFormat indicates an unknown output format.
	ErrInvalidFormat = errors.New("output.format must be table or json")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Cache.MaxSize != "" {
		if _, err := humanize.ParseBytes(c.Cache.MaxSize); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidCacheSize, c.Cache.MaxSize)
		}
	}

	if c.Output.Format != FormatTable && c.Output.Format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Output.Format)
	}

	return nil
}

// CacheMaxBytes resolves the configured cache size to bytes; zero means
// the cache default.
func (c *Config) CacheMaxBytes() int64 {
	if c.Cache.MaxSize == "" {
		return 0
	}

	size, err := humanize.ParseBytes(c.Cache.MaxSize)
	if err != nil {
		return 0
	}

	return int64(size)
}
