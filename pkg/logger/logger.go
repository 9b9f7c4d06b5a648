package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiblog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

type ctxKey string

const (
	RequestIDKey ctxKey = "request_id"
	UserIDKey    ctxKey = "user_id"
)

// Logger manages structured logging on top of zap, with an optional log file per process start.
type Logger struct {
	Mu         sync.Mutex
	App        string
	Level      string
	Format     string
	TimeFormat string
	OutputDir  string
	MaxAgeDays int
	Out        io.Writer
	File       *os.File
	Zap        *zap.Logger
	Log        *log.Logger
	FiberLog   fiber.Handler
}

// LoggerOption defines a function to configure the logger.
type LoggerOption func(*Logger)

// NewLogger builds a zap backed logger. Entries go to Out (stdout by default) and,
// when OutputDir is set, to a timestamped JSON file inside it.
func NewLogger(ctx context.Context, opts ...LoggerOption) (*Logger, error) {
	l := &Logger{
		App:        "modhub",
		Level:      "info",
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: time.RFC3339,
		MaxAgeDays: 7,
		Out:        os.Stdout,
	}

	for _, opt := range opts {
		opt(l)
	}

	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(l.TimeFormat)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(l.Out), level),
	}
	accessOut := l.Out

	if l.OutputDir != "" {
		if err := os.MkdirAll(l.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := OpenLogFile(l.OutputDir, l.App)
		if err != nil {
			return nil, err
		}
		l.File = file
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
		accessOut = io.MultiWriter(l.Out, file)

		if err := l.CleanupOldLogs(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
		}
	}

	l.Zap = zap.New(zapcore.NewTee(cores...)).With(zap.String("app", l.App))
	l.Log = zap.NewStdLog(l.Zap)
	l.FiberLog = fiblog.New(fiblog.Config{
		Format:     l.Format,
		TimeFormat: l.TimeFormat,
		Output:     accessOut,
	})

	return l, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	z := zap.NewNop()
	return &Logger{
		Zap:      z,
		Log:      zap.NewStdLog(z),
		FiberLog: func(c *fiber.Ctx) error { return c.Next() },
	}
}

// OpenLogFile opens a new log file with a timestamp of now.
func OpenLogFile(dir, app string) (*os.File, error) {
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.log", app, time.Now().Format("2006-01-02-15-04-05")))
	return os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// CleanupOldLogs removes log files older than MaxAgeDays.
func (l *Logger) CleanupOldLogs(ctx context.Context) error {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.OutputDir, l.App+"-*.log"))
	if err != nil {
		return nil
	}

	now := time.Now()
	for _, file := range files {
		select {
		case <-ctx.Done():
			return fmt.Errorf("log cleanup canceled: %w", ctx.Err())
		default:
			if l.File != nil && file == l.File.Name() {
				continue
			}
			info, err := os.Stat(file)
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()).Hours()/24 > float64(l.MaxAgeDays) {
				if err := os.Remove(file); err != nil {
					return fmt.Errorf("failed to remove old log file %s: %w", file, err)
				}
			}
		}
	}
	return nil
}

// Middleware returns the Fiber access log middleware.
func (l *Logger) Middleware() fiber.Handler {
	return l.FiberLog
}

// ContextWithUserID stores the authenticated user id for later log entries.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// SetupRoutesContext adds request ID and user ID to the context.
func SetupRoutesContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	reqID := c.Get(fiber.HeaderXRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, reqID)
	ctx = context.WithValue(ctx, RequestIDKey, reqID)

	if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
		ctx = ContextWithUserID(ctx, userID)
	}

	return ctx
}

// SetupLogger adds the logger to Fiber locals and seeds the request context.
func SetupLogger(l *Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("logger", l)
		c.SetUserContext(SetupRoutesContext(c))
		return c.Next()
	}
}

// Close flushes zap and closes the log file.
func (l *Logger) Close() {
	if l.Zap != nil {
		_ = l.Zap.Sync()
	}
	l.Mu.Lock()
	if l.File != nil {
		l.File.Close()
		l.File = nil
	}
	l.Mu.Unlock()
}
