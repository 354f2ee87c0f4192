// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the logger's level and output format.
type Config struct {
	Level  string // debug|info|warn|error, default info
	Format string // console|json, default console
}

// New builds a zerolog.Logger writing to stderr per cfg.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stderr
	if strings.ToLower(strings.TrimSpace(cfg.Format)) != "json" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
