// Package logging provides structured logging for splitpay.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for different parts of the system.
var (
	Vault     zerolog.Logger
	Chain     zerolog.Logger
	Builder   zerolog.Logger
	Sponsor   zerolog.Logger
	Confirm   zerolog.Logger
	Dedup     zerolog.Logger
	Split     zerolog.Logger
	Registry  zerolog.Logger
	Reconcile zerolog.Logger
	Store     zerolog.Logger
	Notify    zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the global logger. Services use JSON output for machine
// parsing; interactive tools keep the colored console writer.
func Init(level string, jsonOutput bool) {
	if jsonOutput {
		Logger = NewJSONLogger(os.Stdout, level)
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}
	initComponentLoggers()
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    false,
	}
	return zerolog.New(output).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Vault = Logger.With().Str("component", "keyvault").Logger()
	Chain = Logger.With().Str("component", "chain").Logger()
	Builder = Logger.With().Str("component", "txbuilder").Logger()
	Sponsor = Logger.With().Str("component", "sponsor").Logger()
	Confirm = Logger.With().Str("component", "confirm").Logger()
	Dedup = Logger.With().Str("component", "dedup").Logger()
	Split = Logger.With().Str("component", "split").Logger()
	Registry = Logger.With().Str("component", "registry").Logger()
	Reconcile = Logger.With().Str("component", "reconcile").Logger()
	Store = Logger.With().Str("component", "store").Logger()
	Notify = Logger.With().Str("component", "notify").Logger()
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
