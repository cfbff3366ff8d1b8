// Package logx is the leveled structured logger used across the service.
// Output is JSON in production and key=value text otherwise.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Fields map[string]interface{}

// Logger wraps a logrus logger behind a small Info/Warn/Error/Debug API.
type Logger struct {
	l *logrus.Logger
}

// DefaultLogger is configured from LIBRARY_LOG_FORMAT, LIBRARY_ENV and
// LIBRARY_LOG_LEVEL at init.
var DefaultLogger *Logger

func init() {
	json := os.Getenv("LIBRARY_LOG_FORMAT") == "json" || os.Getenv("LIBRARY_ENV") == "production"
	DefaultLogger = New(os.Stdout, json, os.Getenv("LIBRARY_LOG_LEVEL"))
}

// New builds a logger writing to out. Unknown levels fall back to info.
func New(out io.Writer, json bool, level string) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "msg",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			DisableSorting:   false,
			QuoteEmptyFields: true,
		})
	}
	l.SetLevel(parseLevel(level))
	return &Logger{l: l}
}

func parseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *Logger) entry(fields Fields) *logrus.Entry {
	return l.l.WithFields(logrus.Fields(fields))
}

func (l *Logger) Debug(msg string, fields Fields) { l.entry(fields).Debug(msg) }

func (l *Logger) Info(msg string, fields Fields) { l.entry(fields).Info(msg) }

func (l *Logger) Warn(msg string, fields Fields) { l.entry(fields).Warn(msg) }

// Error logs msg with err attached under the "error" key.
func (l *Logger) Error(msg string, fields Fields, err error) {
	e := l.entry(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

func Debug(msg string, fields Fields) { DefaultLogger.Debug(msg, fields) }

func Info(msg string, fields Fields) { DefaultLogger.Info(msg, fields) }

func Warn(msg string, fields Fields) { DefaultLogger.Warn(msg, fields) }

func Error(msg string, fields Fields, err error) { DefaultLogger.Error(msg, fields, err) }
