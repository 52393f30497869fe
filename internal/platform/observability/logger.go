package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds a JSON zap logger using Cloud Logging field names. Unknown levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atomic := zap.NewAtomicLevel()
	if err := atomic.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || strings.TrimSpace(level) == "" {
		_ = atomic.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    atomic,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(level.String()))
			},
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger injects the logger into ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the request logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// EventLogger adapts zap to the func(ctx, event, fields) hook used by services and the
// payment gateway. The request-scoped logger wins over base so request ids and trace ids
// are carried on service events. Events whose name ends in "_failed" or "unreachable" log
// at warn level.
func EventLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := base
		if requestctx.HasLogger(ctx) {
			logger = requestctx.Logger(ctx)
		}
		zfields := make([]zap.Field, 0, len(fields)+1)
		zfields = append(zfields, zap.String("event", event))
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			zfields = append(zfields, zap.Any(k, fields[k]))
		}
		if eventLevel(event) == zapcore.WarnLevel {
			logger.Warn(event, zfields...)
			return
		}
		logger.Info(event, zfields...)
	}
}

func eventLevel(event string) zapcore.Level {
	switch {
	case strings.HasSuffix(event, "_failed"),
		strings.HasSuffix(event, "unreachable"),
		strings.HasSuffix(event, ".rejected"),
		strings.HasSuffix(event, ".order_missing"):
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// PrintfAdapter exposes zap through printf-style logger interfaces such as kafka-go's.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
	errors bool
}

// NewPrintfAdapter returns an adapter logging at info level.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// NewErrorPrintfAdapter returns an adapter logging at error level.
func NewErrorPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	a := NewPrintfAdapter(logger)
	a.errors = true
	return a
}

// Printf logs the formatted message.
func (a PrintfAdapter) Printf(format string, args ...any) {
	if a.errors {
		a.logger.Errorf(format, args...)
		return
	}
	a.logger.Debugf(format, args...)
}
