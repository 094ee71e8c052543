// Package logger provides request-scoped structured logging built on
// logrus, as a context-carried logger rather than a package-global one.
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextKey string

const loggerContextKey contextKey = "ragcore_logger"

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
}

// SetLevel sets the base logger's level, used by config at startup.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

// WithRequestID returns a context carrying a logger enriched with the given
// request ID field.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	entry := GetLogger(ctx).WithField("request_id", requestID)
	return context.WithValue(ctx, loggerContextKey, entry)
}

// WithField returns a context carrying a logger enriched with one extra
// field, preserving any fields already attached.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	entry := GetLogger(ctx).WithField(key, value)
	return context.WithValue(ctx, loggerContextKey, entry)
}

// CloneContext copies the logger entry attached to src onto dst, so a
// detached goroutine (e.g. a repair-pass call) keeps the parent's fields
// after its own context is cancelled.
func CloneContext(dst, src context.Context) context.Context {
	if entry, ok := src.Value(loggerContextKey).(*logrus.Entry); ok {
		return context.WithValue(dst, loggerContextKey, entry)
	}
	return dst
}

// GetLogger returns the logger attached to ctx, or the process-wide base
// logger if none was attached.
func GetLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerContextKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(base)
}

// Debug logs at debug level using ctx's logger.
func Debug(ctx context.Context, args ...interface{}) { GetLogger(ctx).Debug(args...) }

// Debugf logs a formatted message at debug level using ctx's logger.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Debugf(format, args...)
}

// Info logs at info level using ctx's logger.
func Info(ctx context.Context, args ...interface{}) { GetLogger(ctx).Info(args...) }

// Infof logs a formatted message at info level using ctx's logger.
func Infof(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Infof(format, args...)
}

// Warn logs at warn level using ctx's logger.
func Warn(ctx context.Context, args ...interface{}) { GetLogger(ctx).Warn(args...) }

// Warnf logs a formatted message at warn level using ctx's logger.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Warnf(format, args...)
}

// Error logs at error level using ctx's logger.
func Error(ctx context.Context, args ...interface{}) { GetLogger(ctx).Error(args...) }

// Errorf logs a formatted message at error level using ctx's logger.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Errorf(format, args...)
}

// ErrorWithFields logs an error-level message carrying structured fields.
func ErrorWithFields(ctx context.Context, msg string, fields map[string]interface{}) {
	GetLogger(ctx).WithFields(fields).Error(msg)
}
