package logger

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// LogBuilder builds a log entry with a fluent interface.
type LogBuilder struct {
	Logger *Logger
	Ctx    context.Context
	Level  LogLevel
	Meta   map[string]string
	Fields []interface{}
}

// WithApp sets the application name used in entries and log file names.
func WithApp(app string) LoggerOption {
	return func(l *Logger) { l.App = app }
}

// WithLevel sets the minimum level (debug, info, warn, error).
func WithLevel(level string) LoggerOption {
	return func(l *Logger) { l.Level = level }
}

// WithFormat sets the Fiber logger format.
func WithFormat(format string) LoggerOption {
	return func(l *Logger) { l.Format = format }
}

// WithTimeFormat sets the timestamp format.
func WithTimeFormat(timeformat string) LoggerOption {
	return func(l *Logger) { l.TimeFormat = timeformat }
}

// WithOutputDir sets the output directory of Log File.
func WithOutputDir(dir string) LoggerOption {
	return func(l *Logger) { l.OutputDir = dir }
}

// WithMaxDays sets the maximum age for the log files.
func WithMaxDays(days int) LoggerOption {
	return func(l *Logger) { l.MaxAgeDays = days }
}

// WithWriter replaces stdout as the primary sink.
func WithWriter(w io.Writer) LoggerOption {
	return func(l *Logger) { l.Out = w }
}

// Debug starts a debug-level log entry.
func (l *Logger) Debug(ctx context.Context) *LogBuilder {
	return &LogBuilder{Logger: l, Ctx: ctx, Level: LevelDebug}
}

// Info starts an info-level log entry.
func (l *Logger) Info(ctx context.Context) *LogBuilder {
	return &LogBuilder{Logger: l, Ctx: ctx, Level: LevelInfo}
}

// Warn starts a warn-level log entry.
func (l *Logger) Warn(ctx context.Context) *LogBuilder {
	return &LogBuilder{Logger: l, Ctx: ctx, Level: LevelWarn}
}

// Error starts an error-level log entry.
func (l *Logger) Error(ctx context.Context) *LogBuilder {
	return &LogBuilder{Logger: l, Ctx: ctx, Level: LevelError}
}

// WithMeta adds metadata to the log entry.
func (b *LogBuilder) WithMeta(meta map[string]string) *LogBuilder {
	if b.Meta == nil {
		b.Meta = make(map[string]string, len(meta))
	}
	for k, v := range meta {
		b.Meta[k] = v
	}
	return b
}

// WithFields adds key/value pairs to the entry. Calls accumulate.
func (b *LogBuilder) WithFields(fields ...interface{}) *LogBuilder {
	b.Fields = append(b.Fields, fields...)
	return b
}

// Logs writes the entry at the builder's level.
func (b *LogBuilder) Logs(msg string) {
	if b.Logger == nil || b.Logger.Zap == nil {
		return
	}

	fields := make([]zap.Field, 0, len(b.Meta)+len(b.Fields)/2+2)
	if b.Ctx != nil {
		if reqID, ok := b.Ctx.Value(RequestIDKey).(string); ok {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if userID, ok := b.Ctx.Value(UserIDKey).(string); ok {
			fields = append(fields, zap.String("user_id", userID))
		}
	}
	for k, v := range b.Meta {
		fields = append(fields, zap.String(k, v))
	}
	for i := 0; i+1 < len(b.Fields); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(b.Fields[i]), b.Fields[i+1]))
	}
	if len(b.Fields)%2 == 1 {
		fields = append(fields, zap.Any("extra", b.Fields[len(b.Fields)-1]))
	}

	switch b.Level {
	case LevelDebug:
		b.Logger.Zap.Debug(msg, fields...)
	case LevelWarn:
		b.Logger.Zap.Warn(msg, fields...)
	case LevelError:
		b.Logger.Zap.Error(msg, fields...)
	default:
		b.Logger.Zap.Info(msg, fields...)
	}
}
