// Package logging configures the process-wide structured logger. Library
// packages never log; commands call Setup once and pass the returned
// logger (or use the zerolog global) from there on.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// #region setup

// Setup initializes zerolog with a console writer on stderr and the given
// level ("debug", "info", "warn", "error"). Unknown levels fall back to
// info. JSON output is used when console is false, which suits piping
// command output into files.
func Setup(level string, console bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl := parseLevel(level)
	zerolog.SetGlobalLevel(lvl)

	if console {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// #endregion setup
