package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Format represents the log output format
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// FileLoggerConfig holds configuration for file logging
type FileLoggerConfig struct {
	// Path is the log file path
	Path string

	// Format is the output format (json or text)
	Format Format

	// Level is the minimum log level
	Level Level

	// MaxSize is the maximum size in bytes before rotation (0 = no rotation)
	MaxSize int64

	// MaxBackups is the maximum number of backup files to keep
	MaxBackups int
}

// NewFileLogger creates a logger appending to config.Path, rotating to
// numbered backups (path.1, path.2, ...) once MaxSize is reached.
func NewFileLogger(config FileLoggerConfig) (Logger, error) {
	out, err := openRotatingFile(config)
	if err != nil {
		return nil, err
	}

	var zl zerolog.Logger
	if config.Format == FormatJSON {
		zl = zerolog.New(out)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    true,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			FormatLevel: func(i interface{}) string {
				return "[" + strings.ToUpper(fmt.Sprint(i)) + "]"
			},
		})
	}
	zl = zl.Level(config.Level.zerolog()).With().Timestamp().Logger()

	return &zeroLogger{zl: zl, closer: out.Close}, nil
}

// rotatingFile is the io.Writer behind a FileLogger. zerolog issues one
// Write per entry, so rotation never splits an entry.
type rotatingFile struct {
	config      FileLoggerConfig
	mu          sync.Mutex
	file        *os.File
	currentSize int64
}

func openRotatingFile(config FileLoggerConfig) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &rotatingFile{config: config, file: file, currentSize: info.Size()}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.config.MaxSize > 0 && r.currentSize >= r.config.MaxSize {
		r.rotate()
	}

	n, err := r.file.Write(p)
	r.currentSize += int64(n)
	return n, err
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate shifts path.N to path.N+1, drops the oldest and reopens path.
// Must be called with mu held.
func (r *rotatingFile) rotate() {
	r.file.Close()

	for i := r.config.MaxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", r.config.Path, i), fmt.Sprintf("%s.%d", r.config.Path, i+1))
	}
	if r.config.MaxBackups > 0 {
		os.Rename(r.config.Path, r.config.Path+".1")
		os.Remove(fmt.Sprintf("%s.%d", r.config.Path, r.config.MaxBackups+1))
	} else {
		os.Remove(r.config.Path)
	}

	file, err := os.OpenFile(r.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		r.file = nil
		return
	}
	r.file = file
	r.currentSize = 0
}
