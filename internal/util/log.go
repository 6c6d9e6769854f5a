package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger at the requested level; unknown levels
// fall back to info.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// NewConsoleLogger is NewLogger with human-readable output for local replays.
func NewConsoleLogger(level string) zerolog.Logger {
	return NewLogger(level).Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
