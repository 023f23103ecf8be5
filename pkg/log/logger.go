// Package log provides the structured logging setup shared by the pipeline
// and the serving facade.
//
// Everything logs through zerolog. Components obtain child loggers with a
// "component" field so that pipeline stages and request handlers can be
// filtered apart in the output. Domain error types from pkg/errors implement
// zerolog.LogObjectMarshaler and can be attached with Object().
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Setup configures the process-wide root logger and returns it.
//
// level is one of "debug", "info", "warn", "error" (unknown values fall back
// to info). When console is true the output is human-readable; otherwise one
// JSON object per line, suitable for log collectors.
func Setup(level string, console bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger.Level(ToLevel(level))
}

// ToLevel maps a config string to a zerolog level.
func ToLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
