// Package log provides the logging facade used throughout the swarm engine.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log level names accepted by SetLevel.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "lvl",
	NameKey:        "name",
	CallerKey:      "caller",
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.RFC3339TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// Default is the logger the engine writes to. Replace it with any
// implementation of Logger to route logs elsewhere.
var Default Logger = zap.New(
	zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	),
	zap.AddCaller(),
	zap.AddCallerSkip(1),
).Sugar()

// Logger is the minimal leveled interface the engine depends on.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
}

// SetLevel adjusts the level of the default logger. Unrecognized names
// fall back to info.
func SetLevel(name string) {
	switch name {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		level.SetLevel(zapcore.WarnLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Debug logs at DEBUG level in the manner of fmt.Print.
func Debug(args ...any) { Default.Debug(args...) }

// Debugf logs at DEBUG level in the manner of fmt.Printf.
func Debugf(format string, args ...any) { Default.Debugf(format, args...) }

// Info logs at INFO level in the manner of fmt.Print.
func Info(args ...any) { Default.Info(args...) }

// Infof logs at INFO level in the manner of fmt.Printf.
func Infof(format string, args ...any) { Default.Infof(format, args...) }

// Warn logs at WARN level in the manner of fmt.Print.
func Warn(args ...any) { Default.Warn(args...) }

// Warnf logs at WARN level in the manner of fmt.Printf.
func Warnf(format string, args ...any) { Default.Warnf(format, args...) }

// Error logs at ERROR level in the manner of fmt.Print.
func Error(args ...any) { Default.Error(args...) }

// Errorf logs at ERROR level in the manner of fmt.Printf.
func Errorf(format string, args ...any) { Default.Errorf(format, args...) }
