// Package logger provides the process-wide structured logger.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger writing JSON lines to stderr.
// It ensures that the logger is initialized only once.
func Init() {
	once.Do(func() {
		level := zerolog.InfoLevel
		if os.Getenv("DAYBRIEF_DEBUG") != "" {
			level = zerolog.DebugLevel
		}
		defaultLogger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	})
}

// Get returns the initialized default logger.
func Get() *zerolog.Logger {
	Init()
	return &defaultLogger
}

// Info logs an informational message with optional key-value fields.
func Info(msg string, fields map[string]interface{}) {
	Get().Info().Fields(fields).Msg(msg)
}

// Warn logs a warning message with optional key-value fields.
func Warn(msg string, fields map[string]interface{}) {
	Get().Warn().Fields(fields).Msg(msg)
}

// Error logs an error with optional key-value fields.
func Error(msg string, err error, fields map[string]interface{}) {
	Get().Error().Err(err).Fields(fields).Msg(msg)
}

// Debug logs a debug message with optional key-value fields.
func Debug(msg string, fields map[string]interface{}) {
	Get().Debug().Fields(fields).Msg(msg)
}
