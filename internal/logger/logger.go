// Package logger provides leveled logging for the service.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel maps a level name to its Level, defaulting to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	defaultLogger = &Logger{
		level:  ParseLevel(level),
		logger: log.New(os.Stderr, "", flags),
	}
}

// SetOutput redirects the default logger, primarily for tests.
func SetOutput(w io.Writer) {
	if defaultLogger != nil {
		defaultLogger.logger.SetOutput(w)
	}
}

func emit(level Level, tag, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > level {
		return
	}
	_ = defaultLogger.logger.Output(3, fmt.Sprintf(tag+" "+format, args...))
}

func Debug(format string, args ...interface{}) {
	emit(DebugLevel, "[DEBUG]", format, args...)
}

func Info(format string, args ...interface{}) {
	emit(InfoLevel, "[INFO]", format, args...)
}

func Warn(format string, args ...interface{}) {
	emit(WarnLevel, "[WARN]", format, args...)
}

func Error(format string, args ...interface{}) {
	emit(ErrorLevel, "[ERROR]", format, args...)
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		_ = defaultLogger.logger.Output(3, fmt.Sprintf("[FATAL] "+format, args...))
	}
	os.Exit(1)
}
