package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdejongh/tfm/pkg/config"
	"github.com/sdejongh/tfm/pkg/engine"
	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/output"
	"github.com/sdejongh/tfm/pkg/tasks"
)

// ExitError carries a process exit code for a command that already
// reported its outcome
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// statusError converts a task status into an ExitError, or nil on success
func statusError(status models.Status) error {
	if code := status.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// ReportError writes err to stderr in the selected output format and
// returns the exit code for it
func ReportError(err error) int {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}

	f, ferr := output.New(globalFlags.Output, os.Stderr)
	if ferr != nil {
		f = output.NewHumanFormatter(os.Stderr)
	}
	f.Error(err)

	if errors.Is(err, context.Canceled) {
		return models.StatusCancelled.ExitCode()
	}
	return models.StatusFailed.ExitCode()
}

// configPath returns the file the configuration is read from
func configPath() string {
	if globalFlags.ConfigFile != "" {
		return globalFlags.ConfigFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyFlagsToConfig overrides config values with global flags
func applyFlagsToConfig(cfg *config.Config) {
	if globalFlags.Output != "" {
		cfg.Output.Format = globalFlags.Output
	}

	// Disable progress in quiet mode
	if globalFlags.Quiet {
		cfg.Output.Progress = false
		cfg.Output.Quiet = true
	}
}

// createLogger creates a logger based on configuration. --verbose sends
// debug output to stderr instead of the log file.
func createLogger(cfg config.LoggingConfig) (logging.Logger, error) {
	if globalFlags.Verbose {
		return logging.NewConsoleLogger(os.Stderr, logging.DebugLevel, output.IsTerminal(os.Stderr)), nil
	}

	// If logging is disabled, return null logger
	if !cfg.Enabled || cfg.File == "" {
		return logging.NewNullLogger(), nil
	}

	var format logging.Format
	switch cfg.Format {
	case "text":
		format = logging.FormatText
	default:
		format = logging.FormatJSON
	}

	return logging.NewFileLogger(logging.FileLoggerConfig{
		Path:       cfg.File,
		Format:     format,
		Level:      logging.ParseLevel(cfg.Level),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
	})
}

// app is what every engine-backed command works with
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	engine    *engine.Engine
	formatter output.Formatter
}

// openApp loads the configuration, lets mutate adjust it and opens the
// engine
func openApp(cmd *cobra.Command, mutate func(cfg *config.Config)) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagsToConfig(cfg)
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var w io.Writer = cmd.OutOrStdout()
	if cfg.Output.Quiet {
		w = io.Discard
	}
	formatter, err := output.New(cfg.Output.Format, w)
	if err != nil {
		return nil, err
	}

	logger, err := createLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	opts, err := engine.OptionsFromConfig(cfg, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	e, err := engine.New(cmd.Context(), opts)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	return &app{cfg: cfg, logger: logger, engine: e, formatter: formatter}, nil
}

// Close waits for background tasks and releases the engine
func (a *app) Close() {
	if err := a.engine.Close(); err != nil {
		a.logger.Error(context.Background(), "failed to close engine", err, nil)
	}
	a.logger.Close()
}

// progress returns the task options that drive a progress bar, and the
// function that clears it. Progress is only drawn on a terminal.
func (a *app) progress(label string) ([]tasks.Option, func()) {
	if !a.cfg.Output.Progress || a.formatter.Name() != "human" || !output.IsTerminal(os.Stderr) {
		return nil, func() {}
	}
	bar := output.NewProgressBar(os.Stderr, label)
	return []tasks.Option{bar.Option()}, bar.Finish
}

// awaitBulk waits for a bulk task, reports it and maps its status to an
// exit code. Interrupting the command cancels the task through its
// context, so the wait itself is not bounded.
func (a *app) awaitBulk(h *tasks.Handle[*models.BulkReport], finish func()) error {
	res := h.Await(context.Background())
	finish()
	if res.Err != nil {
		return res.Err
	}

	report := res.Value
	if report == nil {
		report = &models.BulkReport{Name: h.Name()}
	}
	if res.Incomplete {
		report.Incomplete = true
	}

	if err := a.formatter.BulkReport(report); err != nil {
		return err
	}
	return statusError(report.Status())
}
