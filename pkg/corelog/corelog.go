// Package corelog defines the structured logger interface the rest of the
// module depends on and a zap-backed implementation, adapted from the
// teacher's internal/logger.SlogAdapter (same Child/Debug/Info/Warn/Error
// shape wrapping a third-party logger) but backed by go.uber.org/zap
// instead of log/slog, grounded on the zap wiring in
// 2lar-b2/backend2/infrastructure/di/providers.go.
package corelog

import "go.uber.org/zap"

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is the structured logging collaborator the orchestrator, registry,
// and lifecycle packages depend on.
type Logger interface {
	Child(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
}

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	z *zap.Logger
}

// NewZap wraps an existing zap logger.
func NewZap(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

// NewProduction builds a ZapLogger using zap's production defaults (JSON,
// info level and above).
func NewProduction() (*ZapLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{z: z}, nil
}

// NewDevelopment builds a ZapLogger using zap's development defaults
// (console-friendly, debug level and above).
func NewDevelopment() (*ZapLogger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{z: z}, nil
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

func (l *ZapLogger) Child(fields ...Field) Logger {
	return &ZapLogger{z: l.z.With(toZapFields(fields)...)}
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZapFields(fields)...) }

func (l *ZapLogger) Error(msg string, err error, fields ...Field) {
	fs := append(toZapFields(fields), zap.Error(err))
	l.z.Error(msg, fs...)
}

type nopLogger struct{}

// NewNop returns a Logger that discards everything, for tests and for
// construction before a real logger is wired in.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Child(...Field) Logger                 { return nopLogger{} }
func (nopLogger) Debug(string, ...Field)                {}
func (nopLogger) Info(string, ...Field)                 {}
func (nopLogger) Warn(string, ...Field)                 {}
func (nopLogger) Error(string, error, ...Field)          {}
