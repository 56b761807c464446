package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is a leveled logger tagged with the owning service name.
// NOTE: Log level is controlled by the LOG_LEVEL environment variable
type Logger struct {
	service string
	level   Level
	out     *log.Logger
}

func New(service string) *Logger {
	return &Logger{
		service: service,
		level:   parseLevel(os.Getenv("LOG_LEVEL")),
		out:     log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) logf(level Level, tag, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.out.Printf("[%s] [%s] %s", tag, l.service, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, "DEBUG", format, args...)
}

func (l *Logger) Info(msg string) {
	l.logf(LevelInfo, "INFO", "%s", msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, "INFO", format, args...)
}

func (l *Logger) Warn(msg string) {
	l.logf(LevelWarn, "WARN", "%s", msg)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, "WARN", format, args...)
}

func (l *Logger) Error(msg string) {
	l.logf(LevelError, "ERROR", "%s", msg)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, "ERROR", format, args...)
}

func (l *Logger) Fatal(msg string) {
	l.out.Printf("[FATAL] [%s] %s", l.service, msg)
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.out.Printf("[FATAL] [%s] %s", l.service, fmt.Sprintf(format, args...))
	os.Exit(1)
}
