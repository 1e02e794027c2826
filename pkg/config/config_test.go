package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/tfm/pkg/models"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0, cfg.Engine.HistoryLimit)
	assert.Equal(t, "sha256", cfg.Scan.Algorithm)
	assert.Contains(t, cfg.Categories["images"], ".jpg")
	assert.Contains(t, cfg.Categories["data"], ".yaml")
}

func TestDefault_UsesXDGDirectories(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	cfg := Default()
	assert.Equal(t, filepath.Join(base, "data", "tfm", "trash"), cfg.Engine.TrashDir)
	assert.Equal(t, filepath.Join(base, "state", "tfm", "history.json"), cfg.Engine.HistoryFile)
	assert.Equal(t, filepath.Join(base, "config", "tfm", "config.yaml"), DefaultConfigPath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"negative history limit", func(c *Config) { c.Engine.HistoryLimit = -1 }, "engine.history_limit"},
		{"empty trash dir", func(c *Config) { c.Engine.TrashDir = "" }, "engine.trash_dir"},
		{"zero lock timeout", func(c *Config) { c.Engine.LockTimeout = 0 }, "engine.lock_timeout"},
		{"unknown algorithm", func(c *Config) { c.Scan.Algorithm = "crc32" }, "scan.algorithm"},
		{"zero partial size", func(c *Config) { c.Scan.PartialSize = 0 }, "scan.partial_size"},
		{"zero scan workers", func(c *Config) { c.Scan.Workers = 0 }, "scan.workers"},
		{"zero max workers", func(c *Config) { c.Performance.MaxWorkers = 0 }, "performance.max_workers"},
		{"small buffer", func(c *Config) { c.Performance.BufferSize = 10 }, "performance.buffer_size"},
		{"bad bandwidth", func(c *Config) { c.Performance.BandwidthLimit = "fast" }, "performance.bandwidth_limit"},
		{"bad output format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"extension without dot", func(c *Config) { c.Categories["images"] = []string{"png"} }, "categories.images"},
		{"category with slash", func(c *Config) { c.Categories["a/b"] = []string{".x"} }, "categories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestBandwidthBytes(t *testing.T) {
	cfg := Default()
	n, err := cfg.BandwidthBytes()
	require.NoError(t, err)
	assert.Zero(t, n)

	cfg.Performance.BandwidthLimit = "2M"
	n, err = cfg.BandwidthBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2<<20), n)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Engine.HistoryLimit = 50
	cfg.Engine.LockTimeout = 2 * time.Second
	cfg.Scan.Exclude = []string{"*.tmp"}
	cfg.Categories = map[string][]string{"pics": {".png"}}
	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.Engine.HistoryLimit)
	assert.Equal(t, 2*time.Second, loaded.Engine.LockTimeout)
	assert.Equal(t, []string{"*.tmp"}, loaded.Scan.Exclude)
	assert.Equal(t, map[string][]string{"pics": {".png"}}, loaded.Categories)
}

func TestLoadFromFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan:\n  workers: 8\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, Default().Performance.BufferSize, cfg.Performance.BufferSize)
	assert.Equal(t, Default().Engine.TrashDir, cfg.Engine.TrashDir)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("scan: [unclosed"), 0644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "failed to parse")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("output:\n  format: xml\n"), 0644))
	_, err = LoadFromFile(invalid)
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestLoadOrDefault_Missing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Scan, cfg.Scan)
}
