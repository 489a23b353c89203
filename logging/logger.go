package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

type traceKey struct{}

const traceIDField = "trace_id"

type Logger struct {
	l *zap.Logger
}

func New(zapLogger *zap.Logger) *Logger {
	return &Logger{zapLogger}
}

// NewFromLevel builds a development logger for "debug" and a production
// JSON logger for anything else.
func NewFromLevel(level string) (*Logger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	switch strings.ToLower(level) {
	case "debug":
		zl, err = zap.NewDevelopment()
	default:
		cfg := zap.NewProductionConfig()
		if lvl, perr := zapcore.ParseLevel(level); perr == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
		zl, err = cfg.Build()
	}
	if err != nil {
		return nil, err
	}
	return New(zl), nil
}

func Nop() *Logger {
	return New(zap.NewNop())
}

func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func GetFromContext(ctx context.Context) (*Logger, bool) {
	logger, ok := ctx.Value(loggerKey{}).(*Logger)
	return logger, ok
}

// FromContext falls back to a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := GetFromContext(ctx); ok {
		return logger
	}
	return Nop()
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func TraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceKey{}).(string)
	return id, ok && id != ""
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Debug(msg, fieldsWithTraceID(ctx, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Info(msg, fieldsWithTraceID(ctx, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Warn(msg, fieldsWithTraceID(ctx, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Error(msg, fieldsWithTraceID(ctx, fields)...)
}

func (l *Logger) Sync() error {
	return l.l.Sync()
}

func fieldsWithTraceID(ctx context.Context, fields []zap.Field) []zap.Field {
	if traceID, ok := TraceID(ctx); ok {
		fields = append(fields, zap.String(traceIDField, traceID))
	}
	return fields
}
