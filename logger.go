package auth

import (
	"go.uber.org/zap"
)

// ZapLogger adapts a zap logger to Logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps l. A nil logger yields a no-op logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// Named returns a child logger scoped to name.
func (z *ZapLogger) Named(name string) Logger {
	return &ZapLogger{sugar: z.sugar.Named(name)}
}

type namedLogger interface {
	Named(name string) Logger
}

// ResolveLogger scopes l to name when it supports scoping and falls back to
// a no-op logger when l is nil.
func ResolveLogger(name string, l Logger) Logger {
	if l == nil {
		l = NewZapLogger(nil)
	}
	if n, ok := l.(namedLogger); ok && name != "" {
		return n.Named(name)
	}
	return l
}
