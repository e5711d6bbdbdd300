package rpcpool

import (
	"go.uber.org/zap"
)

// Logger receives structured debug/operational output from the pool,
// invoker and health monitor. Implementations must be safe for
// concurrent use. Keys and values alternate in keysAndValues.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a *zap.Logger to the Logger interface.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{sugar: l.Sugar()}
}

// NewDevelopmentLogger returns a Logger writing human-readable output,
// suitable for the probe CLI and tests.
func NewDevelopmentLogger() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return NewZapLogger(zap.NewNop())
	}
	return NewZapLogger(l)
}

func (z *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.sugar.Debugw(msg, keysAndValues...)
}

func (z *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.sugar.Infow(msg, keysAndValues...)
}

func (z *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.sugar.Warnw(msg, keysAndValues...)
}

func (z *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	z.sugar.Errorw(msg, keysAndValues...)
}
