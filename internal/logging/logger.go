// Package logging configures the process-wide zerolog logger. Components
// receive an injected zerolog.Logger and tag themselves with a component
// field; nothing in this package is stateful beyond zerolog's globals.
package logging

import (
	"os"
	"strings"
	"time"

	"kcu-coach-engine/config"

	"github.com/rs/zerolog"
)

// New builds the root logger from configuration. Output is JSON by
// default; Pretty switches to the human console writer for local runs.
func New(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
