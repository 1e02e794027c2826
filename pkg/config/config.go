package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/sdejongh/tfm/pkg/digest"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/ratelimit"
)

// AppName names the per-user XDG directories
const AppName = "tfm"

// Config represents the application configuration
type Config struct {
	Engine      EngineConfig        `yaml:"engine"`
	Scan        ScanConfig          `yaml:"scan"`
	Performance PerformanceConfig   `yaml:"performance"`
	Output      OutputConfig        `yaml:"output"`
	Logging     LoggingConfig       `yaml:"logging"`
	Categories  map[string][]string `yaml:"categories"`
}

// EngineConfig holds settings for the operation executor and history
type EngineConfig struct {
	TrashDir             string        `yaml:"trash_dir"`
	HistoryFile          string        `yaml:"history_file"`
	HistoryLimit         int           `yaml:"history_limit"` // 0 keeps every record
	StrictMkdir          bool          `yaml:"strict_mkdir"`
	AllowPermanentDelete bool          `yaml:"allow_permanent_delete"`
	LockTimeout          time.Duration `yaml:"lock_timeout"`
}

// ScanConfig holds duplicate scan settings
type ScanConfig struct {
	Algorithm   string   `yaml:"algorithm"` // "sha256" or "md5"
	PartialSize int64    `yaml:"partial_size"`
	Workers     int      `yaml:"workers"`
	Exclude     []string `yaml:"exclude"`
	Recursive   bool     `yaml:"recursive"`
	MinSize     int64    `yaml:"min_size"`
	Verify      bool     `yaml:"verify"` // byte compare before removing a duplicate
}

// PerformanceConfig holds performance-related settings
type PerformanceConfig struct {
	MaxWorkers     int    `yaml:"max_workers"`
	BufferSize     int    `yaml:"buffer_size"`
	BandwidthLimit string `yaml:"bandwidth_limit"` // e.g. "10M", empty = unlimited
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Format     string `yaml:"format"` // "json" or "text"
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	File       string `yaml:"file"`   // Log file path
	MaxSize    int64  `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultCategories maps organize-by-type folders to file extensions
func DefaultCategories() map[string][]string {
	return map[string][]string{
		"images":        {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".ico"},
		"videos":        {".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm", ".m4v"},
		"audio":         {".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a", ".wma"},
		"documents":     {".pdf", ".doc", ".docx", ".txt", ".rtf", ".odt"},
		"spreadsheets":  {".xls", ".xlsx", ".csv", ".ods"},
		"presentations": {".ppt", ".pptx", ".odp"},
		"archives":      {".zip", ".rar", ".7z", ".tar", ".gz", ".bz2"},
		"code":          {".py", ".js", ".java", ".c", ".cpp", ".h", ".html", ".css", ".sh"},
		"data":          {".json", ".xml", ".yaml", ".yml", ".sql", ".db"},
	}
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			TrashDir:     filepath.Join(xdg.DataHome, AppName, "trash"),
			HistoryFile:  filepath.Join(xdg.StateHome, AppName, "history.json"),
			HistoryLimit: 0,
			LockTimeout:  5 * time.Second,
		},
		Scan: ScanConfig{
			Algorithm:   string(digest.SHA256),
			PartialSize: digest.DefaultPartialSize,
			Workers:     4,
			Exclude: []string{
				".git/",
				"node_modules/",
			},
			Recursive: true,
			Verify:    true,
		},
		Performance: PerformanceConfig{
			MaxWorkers: 2,
			BufferSize: 65536,
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Format:     "json",
			Level:      "info",
			File:       filepath.Join(xdg.StateHome, AppName, "tfm.log"),
			MaxSize:    10 * 1024 * 1024,
			MaxBackups: 3,
		},
		Categories: DefaultCategories(),
	}
}

// BandwidthBytes returns the parsed bandwidth limit in bytes per second
func (c *Config) BandwidthBytes() (int64, error) {
	return ratelimit.ParseRate(c.Performance.BandwidthLimit)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Engine.TrashDir == "" {
		return &models.ValidationError{
			Field:   "engine.trash_dir",
			Message: "must not be empty",
		}
	}

	if c.Engine.HistoryFile == "" {
		return &models.ValidationError{
			Field:   "engine.history_file",
			Message: "must not be empty",
		}
	}

	if c.Engine.HistoryLimit < 0 {
		return &models.ValidationError{
			Field:   "engine.history_limit",
			Message: "must not be negative",
		}
	}

	if c.Engine.LockTimeout <= 0 {
		return &models.ValidationError{
			Field:   "engine.lock_timeout",
			Message: "must be positive",
		}
	}

	validAlgorithms := map[string]bool{string(digest.SHA256): true, string(digest.MD5): true}
	if !validAlgorithms[c.Scan.Algorithm] {
		return &models.ValidationError{
			Field:   "scan.algorithm",
			Message: "must be 'sha256' or 'md5'",
		}
	}

	if c.Scan.PartialSize < 1 {
		return &models.ValidationError{
			Field:   "scan.partial_size",
			Message: "must be at least 1 byte",
		}
	}

	if c.Scan.Workers < 1 {
		return &models.ValidationError{
			Field:   "scan.workers",
			Message: "must be at least 1",
		}
	}

	if c.Scan.MinSize < 0 {
		return &models.ValidationError{
			Field:   "scan.min_size",
			Message: "must not be negative",
		}
	}

	if c.Performance.MaxWorkers < 1 {
		return &models.ValidationError{
			Field:   "performance.max_workers",
			Message: "must be at least 1",
		}
	}

	if c.Performance.BufferSize < 1024 {
		return &models.ValidationError{
			Field:   "performance.buffer_size",
			Message: "must be at least 1024 bytes",
		}
	}

	if _, err := c.BandwidthBytes(); err != nil {
		return &models.ValidationError{
			Field:   "performance.bandwidth_limit",
			Message: err.Error(),
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	if c.Logging.Enabled && c.Logging.File == "" {
		return &models.ValidationError{
			Field:   "logging.file",
			Message: "required when logging is enabled",
		}
	}

	for name, exts := range c.Categories {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return &models.ValidationError{
				Field:   "categories",
				Message: "invalid category name " + name,
			}
		}
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				return &models.ValidationError{
					Field:   "categories." + name,
					Message: "extension " + ext + " must start with '.'",
				}
			}
		}
	}

	return nil
}
