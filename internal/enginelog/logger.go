// Package enginelog provides the structured logging facade used across
// strataGGus: a small Logger interface (matching internal/script.Logger's
// shape) backed by go.uber.org/zap, plus a no-op implementation for tests
// and embedders that want silence by default.
package enginelog

import (
	"go.uber.org/zap"
)

// Logger provides structured logging with optional key-value pairs, the
// same shape internal/script.Logger expects so a Logger here satisfies it
// without an adapter.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production-configured Logger writing structured JSON to
// stderr.
func New() (Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: base.Sugar()}, nil
}

// NewDevelopment builds a Logger writing human-readable console output,
// suitable for `cmd/strataggus run` during local iteration.
func NewDevelopment() (Logger, error) {
	base, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: base.Sugar()}, nil
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Call it before process exit.
func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}

// nopLogger discards everything.
type nopLogger struct{}

// NopLogger returns a Logger that discards all output, the default for
// embedders (library tests, headless sandboxes) that supply no logger.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
