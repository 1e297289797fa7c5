// Package logger is the server's structured logger: zap cores writing to
// stdout and a lumberjack-rotated file, with request trace ids pulled from the
// context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
)

const (
	defaultLogDir = "/var/log/safecheck"
	logFileName   = "app.log"
	traceIDField  = "trace_id"
)

type Fields map[string]any

type Logger struct {
	z     *zap.Logger
	s     *zap.SugaredLogger
	level zap.AtomicLevel
	rot   *lumberjack.Logger
}

type contextKey struct{}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, traceID)
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(contextKey{}).(string)
	return traceID
}

// New logs to stdout and to logDir/app.log, rotated by size.
func New(logDir, serviceName, level string) (*Logger, error) {
	if logDir == "" {
		logDir = defaultLogDir
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rot := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    constants.LoggerMaxSize,
		MaxBackups: constants.LoggerMaxBackups,
		MaxAge:     constants.LoggerMaxAge,
		Compress:   true,
	}

	l := build(zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stdout), zapcore.AddSync(rot)), serviceName, level)
	l.rot = rot
	return l, nil
}

// NewWriter builds a logger without file rotation. Used by tests and tools.
func NewWriter(w io.Writer, serviceName, level string) *Logger {
	return build(zapcore.AddSync(w), serviceName, level)
}

func build(ws zapcore.WriteSyncer, serviceName, level string) *Logger {
	atom := zap.NewAtomicLevelAt(parseLevel(level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, atom)
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}

	z := zap.New(core, opts...)
	if serviceName != "" {
		z = z.With(zap.String("service", serviceName))
	}
	return &Logger{z: z, s: z.Sugar(), level: atom}
}

func (l *Logger) DebugEnabled() bool { return l.level.Enabled(zapcore.DebugLevel) }

func (l *Logger) Debug(msg string) { l.s.Debug(msg) }
func (l *Logger) Info(msg string)  { l.s.Info(msg) }
func (l *Logger) Warn(msg string)  { l.s.Warn(msg) }
func (l *Logger) Error(msg string) { l.s.Error(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }

// Fatalf logs and exits the process.
func (l *Logger) Fatalf(format string, args ...any) {
	l.s.Fatalf(format, args...)
}

// Sync flushes buffered output and closes the rotated file, if any.
// Stdout sync errors are ignored; terminals and pipes reject fsync.
func (l *Logger) Sync() error {
	_ = l.z.Sync()
	if l.rot != nil {
		return l.rot.Close()
	}
	return nil
}

// WithFields returns an entry carrying fields plus the trace id found on ctx.
// Fields are emitted in key order.
func (l *Logger) WithFields(ctx context.Context, fields Fields) *Entry {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(fields)+2)
	if traceID := TraceID(ctx); traceID != "" {
		if _, dup := fields[traceIDField]; !dup {
			args = append(args, traceIDField, traceID)
		}
	}
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Entry{s: l.s.With(args...)}
}

type Entry struct {
	s *zap.SugaredLogger
}

func (e *Entry) Debug(msg string) { e.s.Debug(msg) }
func (e *Entry) Info(msg string)  { e.s.Info(msg) }
func (e *Entry) Warn(msg string)  { e.s.Warn(msg) }
func (e *Entry) Error(msg string) { e.s.Error(msg) }

func (e *Entry) Debugf(format string, args ...any) { e.s.Debugf(format, args...) }
func (e *Entry) Infof(format string, args ...any)  { e.s.Infof(format, args...) }
func (e *Entry) Warnf(format string, args ...any)  { e.s.Warnf(format, args...) }
func (e *Entry) Errorf(format string, args ...any) { e.s.Errorf(format, args...) }

// Criticalf logs at error level tagged severity=critical; it never exits.
func (e *Entry) Criticalf(format string, args ...any) {
	e.s.With("severity", "critical").Errorf(format, args...)
}

func parseLevel(value string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARNING", "WARN":
		return zapcore.WarnLevel
	case "ERROR", "CRITICAL":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
