// Package logging configures the zerolog logger shared by the scraper and
// the dispatcher process.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a textual log level as accepted in configuration.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"

	// LevelDisabled silences all output.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool

	// Output defaults to os.Stderr. Stdout is reserved for command output.
	Output io.Writer

	// Process is attached to every line so originator and dispatcher logs
	// can be told apart when they share a terminal.
	Process string
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Process != "" {
		ctx = ctx.Str("process", cfg.Process).Int("pid", os.Getpid())
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ValidateLevel rejects level names parseLevel would silently map to info.
func ValidateLevel(level LogLevel) error {
	switch strings.ToLower(string(level)) {
	case "", "debug", "info", "warn", "warning", "error", "disabled", "off":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger for one component from the global logger.
// Call it after Setup; loggers derived earlier keep the old output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels as used across the pipeline:
//
// Debug: per-call and per-transition detail
//   - individual fetch outcomes
//   - handoff state changes
//   - redis job receipt
//
// Info: one line per run-level event
//   - dispatch summary when every call succeeded
//   - handoff complete, dispatcher process started
//   - metrics server startup/shutdown
//
// Warn: the run finished but lost data
//   - dispatch summary with failed calls
//   - pages missing the page key
//   - handoff files that could not be removed
//
// Error: the run produced nothing
//   - batch timeout, handoff corruption, launch failure
//   - dispatcher process exit errors
//   - configuration errors
//
// Common fields: component, url, index, status_code, duration,
// failure_class, state, path, job_id, transport.
