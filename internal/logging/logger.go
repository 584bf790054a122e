// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the subset of configuration the logger needs.
type Config interface {
	GetLogLevel() string
	GetEnv() string
	GetAppName() string
}

// Init sets the global zerolog level and output. DEV gets a human readable
// console writer, every other environment gets JSON lines on stdout.
func Init(cfg Config) zerolog.Logger {
	return InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.GetLogLevel()))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(cfg.GetEnv(), "DEV") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", cfg.GetAppName()).Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a configured level name onto a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
