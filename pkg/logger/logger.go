package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	APP        = "APP"
	CONFIG     = "CONFIG"
	DRILL      = "DRILL"
	HANDLER    = "HANDLER"
	MIDDLEWARE = "MIDDLEWARE"
	REDIS      = "REDIS"
	SERVICE    = "SERVICE"
	SESSION    = "SESSION"
	WEBSOCKET  = "WEBSOCKET"
)

var (
	mu   sync.RWMutex
	base = newLogger(os.Stderr, getLogLevel())
)

func getLogLevel() zerolog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// SetOutput redirects all log output to w and re-reads LOG_LEVEL.
// Tests use it to capture log lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(w, getLogLevel())
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

func Debug(namespace, format string, v ...interface{}) {
	current().Debug().Str("namespace", namespace).Msgf(format, v...)
}

func Info(namespace, format string, v ...interface{}) {
	current().Info().Str("namespace", namespace).Msgf(format, v...)
}

func Warn(namespace, format string, v ...interface{}) {
	current().Warn().Str("namespace", namespace).Msgf(format, v...)
}

func Error(namespace, format string, v ...interface{}) {
	current().Error().Str("namespace", namespace).Msgf(format, v...)
}

// Fatal writes a fatal-level event but does not exit; the
// caller decides how to shut down.
func Fatal(namespace, format string, v ...interface{}) {
	current().WithLevel(zerolog.FatalLevel).Str("namespace", namespace).Msgf(format, v...)
}
