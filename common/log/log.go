// Package log provides the structured logger used across the consensus
// core. It wraps zap the way a production node wraps its logging backend:
// callers depend on the Logger interface, never on zap directly.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface every component depends on.
//
//nolint:interfacebloat // mirrors the breadth of zap's SugaredLogger on purpose
type Logger interface {
	Info(keyvals ...interface{})
	Debug(keyvals ...interface{})
	Warn(keyvals ...interface{})
	Error(keyvals ...interface{})
	Fatal(keyvals ...interface{})
	Infow(msg string, keyvals ...interface{})
	Debugw(msg string, keyvals ...interface{})
	Warnw(msg string, keyvals ...interface{})
	Errorw(msg string, keyvals ...interface{})
	Fatalw(msg string, keyvals ...interface{})
	With(args ...interface{}) Logger
	Named(s string) Logger
}

type log struct {
	*zap.SugaredLogger
}

func (l *log) With(args ...interface{}) Logger {
	return &log{l.SugaredLogger.With(args...)}
}

func (l *log) Named(s string) Logger {
	return &log{l.SugaredLogger.Named(s)}
}

const (
	InfoLevel  = int(zapcore.InfoLevel)
	DebugLevel = int(zapcore.DebugLevel)
	WarnLevel  = int(zapcore.WarnLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
	FatalLevel = int(zapcore.FatalLevel)
)

// DefaultLevel controls the level of DefaultLogger(); override before the
// first call to change it.
var DefaultLevel = InfoLevel

var isDefaultLoggerSet sync.Once

// DefaultLogger returns the process-wide logger used when nothing more
// specific was wired in via context.
func DefaultLogger() Logger {
	isDefaultLoggerSet.Do(func() {
		zap.ReplaceGlobals(newZapLogger(DefaultLevel))
	})
	return &log{zap.S()}
}

// New builds a logger at the given level, writing JSON-encoded lines.
func New(level int) Logger {
	return &log{newZapLogger(level).Sugar()}
}

func newZapLogger(level int) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stdout), zapcore.Level(level))
	return zap.New(core, zap.WithCaller(true))
}

type ctxKey string

const loggerKey ctxKey = "consensusLogger"

// ToContext attaches a Logger to ctx.
func ToContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContextOrDefault retrieves the Logger attached to ctx, falling back to
// DefaultLogger() if none was set.
func FromContextOrDefault(ctx context.Context) Logger {
	l, ok := ctx.Value(loggerKey).(Logger)
	if !ok {
		return DefaultLogger()
	}
	return l
}
