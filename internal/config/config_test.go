package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")

	require.NoError(t, err)
	assert.False(t, cfg.Compiler.TestRewrite)
	assert.False(t, cfg.Compiler.AnonymousFiles)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, FormatTable, cfg.Output.Format)
	assert.True(t, cfg.Output.Color)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellforge.yaml")
	content := []byte("compiler:\n  test_rewrite: true\ncache:\n  max_size: 16 MB\noutput:\n  format: json\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.True(t, cfg.Compiler.TestRewrite)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.Equal(t, int64(16_000_000), cfg.CacheMaxBytes())
}

func TestLoadConfig_MissingExplicitFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CELLFORGE_COMPILER_TEST_REWRITE", "true")

	cfg, err := LoadConfig("")

	require.NoError(t, err)
	assert.True(t, cfg.Compiler.TestRewrite)
}

func TestValidate_BadCacheSize(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Cache:  CacheConfig{MaxSize: "a lot"},
		Output: OutputConfig{Format: FormatTable},
	}

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidCacheSize)
}

func TestValidate_BadFormat(t *testing.T) {
	t.Parallel()

	cfg := &Config{Output: OutputConfig{Format: "xml"}}

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidFormat)
}

func TestCacheMaxBytes_EmptyMeansDefault(t *testing.T) {
	t.Parallel()

	cfg := &Config{}

	assert.Equal(t, int64(0), cfg.CacheMaxBytes())
}

func TestCacheMaxBytes_BinaryUnits(t *testing.T) {
	t.Parallel()

	cfg := &Config{Cache: CacheConfig{MaxSize: "1 MiB"}}

	assert.Equal(t, int64(1<<20), cfg.CacheMaxBytes())
}
