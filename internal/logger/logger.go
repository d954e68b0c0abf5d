package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger with the debug flag. Without debug only
// fatal records are written so the dashboard keeps the terminal.
type Logger struct {
	debug bool
	*zap.SugaredLogger
}

// New creates a logger writing to stderr.
func New(debug bool) *Logger {
	return NewWithWriter(debug, os.Stderr)
}

// NewWithWriter creates a logger writing JSON lines to w.
func NewWithWriter(debug bool, w io.Writer) *Logger {
	level := zapcore.FatalLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return &Logger{
		debug:         debug,
		SugaredLogger: zap.New(core, zap.AddCaller()).Sugar(),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// IsDebug reports whether debug logging is enabled.
func (l *Logger) IsDebug() bool {
	return l.debug
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{debug: l.debug, SugaredLogger: l.SugaredLogger.Named(name)}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{debug: l.debug, SugaredLogger: l.SugaredLogger.With(args...)}
}

// Printf logs at info level.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

// Println logs at info level.
func (l *Logger) Println(v ...interface{}) {
	l.Info(fmt.Sprint(v...))
}

// Fatalf always logs (fatal errors) and exits.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.SugaredLogger.Fatalf(format, v...)
}

// Scheduler adapts the logger to the key/value interface used by the job scheduler.
type Scheduler struct {
	L *Logger
}

func (s Scheduler) Debug(msg string, args ...any) { s.L.Debugw(msg, args...) }
func (s Scheduler) Error(msg string, args ...any) { s.L.Errorw(msg, args...) }
func (s Scheduler) Info(msg string, args ...any)  { s.L.Infow(msg, args...) }
func (s Scheduler) Warn(msg string, args ...any)  { s.L.Warnw(msg, args...) }
