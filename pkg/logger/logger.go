// Package logger provides the process-wide logger used by every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	logFile *os.File
	level   zap.AtomicLevel     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	stderr  zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
)

func init() {
	build(nil)
}

// build replaces the global logger. Caller holds mu, except from init.
func build(file *os.File) {
	console := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		MessageKey:       "M",
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: " ",
	})
	cores := []zapcore.Core{zapcore.NewCore(console, stderr, level)}

	if file != nil {
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(file), zapcore.DebugLevel))
	}

	base = zap.New(zapcore.NewTee(cores...))
	sugar = base.Sugar()
}

// Init initializes the global logger with the specified log file path.
// Console output on stderr stays enabled.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //#nosec G302 G304 -- log file path from config
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if logFile != nil {
		_ = base.Sync()
		logFile.Close()
	}
	logFile = f
	build(f)
	return nil
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	_ = base.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		build(nil)
	}
}

// SetVerbose toggles debug output on the console.
func SetVerbose(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// SetOutput redirects console output. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	stderr = zapcore.AddSync(w)
	build(logFile)
}

// Named returns a structured logger for a component.
func Named(name string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base.Named(name)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

func current() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return sugar
}
