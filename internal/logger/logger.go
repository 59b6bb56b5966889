// Package logger wraps zap with a process-wide sugared logger.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *Logger
	mu           sync.RWMutex
)

// Logger wraps zap.SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// Init builds the global logger. Debug output goes to stderr so it never
// mixes with rendered reports on stdout.
func Init(debug bool) error {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.TimeKey = ""
	config.OutputPaths = []string{"stderr"}
	config.DisableStacktrace = true

	level := zapcore.WarnLevel
	if debug {
		level = zapcore.DebugLevel
	}
	if val := os.Getenv("THESISGO_LOG_LEVEL"); val != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(val)); err == nil {
			level = parsed
		}
	}
	config.Level = zap.NewAtomicLevelAt(level)

	l, err := config.Build()
	if err != nil {
		return err
	}
	Set(&Logger{SugaredLogger: l.Sugar()})
	return nil
}

// Set replaces the global logger. Tests use it with zaptest or zap.NewNop.
func Set(l *Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// Get returns the global logger, falling back to a no-op logger.
func Get() *Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(component)}
}

func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

func Sync() {
	_ = Get().Sync()
}
