package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar names the environment variable that selects the log level.
const LevelEnvVar = "LOCALIZER_LOG_LEVEL"

// Init initializes the global logger with configuration from environment variables.
// LOCALIZER_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
func Init() {
	SetLevel(os.Getenv(LevelEnvVar))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// InitJSON configures the global logger for CloudWatch: one JSON object per
// line on stdout with the same level rules as Init.
func InitJSON() {
	SetLevel(os.Getenv(LevelEnvVar))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// InitWriter points the global logger at w. Used by tests.
func InitWriter(w io.Writer, level string) {
	SetLevel(level)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel applies a level name; unknown or empty names select info.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps debug, info, warn and error to zerolog levels.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
