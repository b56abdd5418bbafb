// Package logging builds the engine's structured logger. It mirrors the
// shape of mercator-hq/jupiter's pkg/telemetry/logging package: a thin
// wrapper over log/slog that every component pulls a scoped child logger
// from, rather than calling fmt.Println/log.Println the way the teacher's
// writeLog does.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Format is the rendered log output shape.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls logger construction.
type Config struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
}

// New builds the root *slog.Logger for the process.
func New(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if Format(strings.ToLower(cfg.Format)) == FormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Component returns a child logger scoped to a named engine component,
// e.g. Component(root, "validator").
func Component(root *slog.Logger, name string) *slog.Logger {
	return root.With("component", name)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
