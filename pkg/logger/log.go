// Package logger wraps zap with the flat key/value fields the engine logs
// throughout the matching and journal paths. The surface is deliberately
// small: leveled methods taking Field pairs, context variants that pick up a
// request id, and an Error method that renders the stack carried by the
// module's tagged errors.
package logger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/akareen/RedleafExchange/pkg/errors"
)

// Field is one key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Level names a minimum severity; unknown values fall back to info.
type Level string

const (
	// DebugLevel logs everything, including per-match detail.
	DebugLevel Level = "debug"
	// InfoLevel logs accepted operations and lifecycle events.
	InfoLevel Level = "info"
	// WarnLevel logs rejected requests and degraded paths.
	WarnLevel Level = "warn"
	// ErrorLevel logs failures only.
	ErrorLevel Level = "error"
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type contextKey string

// RequestIDKey is the context key carrying a per-request correlation id;
// the *Context methods append it to the emitted fields when present.
const RequestIDKey contextKey = "request_id"

// Logger is the engine's structured logger.
type Logger struct {
	zl *zap.Logger
}

// New builds a production JSON logger at the given minimum level.
func New(level Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.MessageKey = "message"

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{zl: zl}, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// WithFields returns a child logger that attaches fields to every line.
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{zl: l.zl.With(zapFields(fields)...)}
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields ...Field) {
	l.zl.Debug(message, zapFields(fields)...)
}

// Info logs at info level.
func (l *Logger) Info(message string, fields ...Field) {
	l.zl.Info(message, zapFields(fields)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(message string, fields ...Field) {
	l.zl.Warn(message, zapFields(fields)...)
}

// Error logs err at error level. When err carries a stack, the stack
// replaces zap's own.
func (l *Logger) Error(err error, fields ...Field) {
	entry := l.zl.Check(zapcore.ErrorLevel, err.Error())
	if entry == nil {
		return
	}
	if tracer, ok := err.(errors.StackTracer); ok {
		if stack := tracer.StackTrace(); len(stack) > 0 {
			entry.Stack = strings.TrimSpace(fmt.Sprintf("%+v", stack))
		}
	}
	entry.Write(zapFields(fields)...)
}

// DebugContext is Debug plus the context's request id.
func (l *Logger) DebugContext(ctx context.Context, message string, fields ...Field) {
	l.Debug(message, withRequestID(ctx, fields)...)
}

// InfoContext is Info plus the context's request id.
func (l *Logger) InfoContext(ctx context.Context, message string, fields ...Field) {
	l.Info(message, withRequestID(ctx, fields)...)
}

// WarnContext is Warn plus the context's request id.
func (l *Logger) WarnContext(ctx context.Context, message string, fields ...Field) {
	l.Warn(message, withRequestID(ctx, fields)...)
}

// ErrorContext is Error plus the context's request id.
func (l *Logger) ErrorContext(ctx context.Context, err error, fields ...Field) {
	l.Error(err, withRequestID(ctx, fields)...)
}

func zapFields(fields []Field) []zapcore.Field {
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func withRequestID(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		fields = append(fields, Field{Key: string(RequestIDKey), Value: id})
	}
	return fields
}
