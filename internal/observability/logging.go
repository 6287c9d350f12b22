package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// RedactedValue replaces sensitive values at info level and above.
const RedactedValue = "[REDACTED]"

// TracedLogger is a structured logger with automatic trace correlation.
// It wraps slog.Logger and adds the component name, the request ID carried
// by the context, and the OpenTelemetry trace and span IDs.
type TracedLogger struct {
	logger          *slog.Logger
	component       string
	redactSensitive bool
}

// NewTracedLogger creates a new TracedLogger for component.
//
// Parameters:
//   - handler: The slog.Handler to use for formatting and outputting logs
//   - component: The name of the component producing logs (e.g. "engine")
//
// Returns:
//   - *TracedLogger: A configured logger ready for use
func NewTracedLogger(handler slog.Handler, component string) *TracedLogger {
	return &TracedLogger{
		logger:          slog.New(handler),
		component:       component,
		redactSensitive: true,
	}
}

// NewDiscardLogger returns a TracedLogger that drops every record.
func NewDiscardLogger(component string) *TracedLogger {
	return NewTracedLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}), component)
}

// Debug logs a debug-level message with automatic trace correlation.
// Debug logs include all fields without redaction.
func (l *TracedLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}

// Info logs an info-level message with automatic trace correlation.
// Sensitive data in args is redacted at info level and above.
func (l *TracedLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Info(msg, args...)
}

// Warn logs a warning-level message with automatic trace correlation.
func (l *TracedLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Warn(msg, args...)
}

// Error logs an error-level message with automatic trace correlation.
func (l *TracedLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Error(msg, args...)
}

// Slog returns the underlying logger tagged with the component name, for
// packages that accept a plain *slog.Logger.
func (l *TracedLogger) Slog() *slog.Logger {
	return l.logger.With(slog.String("component", l.component))
}

// WithContext creates a new slog.Logger with correlation fields added:
// component, request_id when the context carries one, and trace_id/span_id
// when the context carries a valid span.
func (l *TracedLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger.With(slog.String("component", l.component))

	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With(slog.String("request_id", id))
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		logger = logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return logger
}

// NewJSONHandler creates a new JSON log handler with the specified output and level.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// NewTextHandler creates a new text log handler with the specified output and level.
func NewTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// NewHandler builds the handler described by cfg, writing to w.
func NewHandler(cfg LoggingConfig, w io.Writer) (slog.Handler, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return NewTextHandler(w, level), nil
	case "json":
		return NewJSONHandler(w, level), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be json or text)", cfg.Format)
	}
}

// ParseLevel maps a level name to a slog.Level. "fatal" maps to error.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "fatal":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// sensitiveFields are matched after lowercasing and removing underscores.
// Query parameters are user data and never reach logs above debug.
var sensitiveFields = map[string]bool{
	"password":   true,
	"secret":     true,
	"token":      true,
	"apikey":     true,
	"credential": true,
	"auth":       true,
	"params":     true,
	"parameters": true,
}

// redactSensitiveData redacts sensitive fields in log arguments, both as
// key/value pairs and as slog.Attr values.
func redactSensitiveData(args []any) []any {
	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 0; i < len(redacted); i++ {
		switch key := redacted[i].(type) {
		case slog.Attr:
			if isSensitive(key.Key) {
				redacted[i] = slog.String(key.Key, RedactedValue)
			}
		case string:
			if i+1 >= len(redacted) {
				return redacted
			}
			if isSensitive(key) {
				redacted[i+1] = RedactedValue
			}
			i++
		}
	}

	return redacted
}

func isSensitive(key string) bool {
	return sensitiveFields[strings.ToLower(strings.ReplaceAll(key, "_", ""))]
}
