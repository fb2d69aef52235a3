// Package logging provides a small structured-logging shim used across the
// gateway. It wraps log/slog behind an atomically-swappable singleton so that
// packages can log via package-level functions without threading a logger
// through every constructor, and so tests can capture output with Set.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Initialize replaces the singleton logger with one configured for level and
// output format. jsonFormat selects slog.JSONHandler over slog.TextHandler.
func Initialize(level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	singleton.Store(slog.New(handler))
}

// Get returns the underlying *slog.Logger for injection into structs that
// prefer an explicit dependency over the package-level functions.
func Get() *slog.Logger { return singleton.Load() }

// Set replaces the singleton logger. Intended for tests that need to capture
// log output.
func Set(l *slog.Logger) { singleton.Store(l) }

func Debug(msg string)                               { Get().Debug(msg) }
func Debugf(format string, args ...any)               { Get().Debug(fmt.Sprintf(format, args...)) }
func Info(msg string)                                 { Get().Info(msg) }
func Infof(format string, args ...any)                { Get().Info(fmt.Sprintf(format, args...)) }
func Warn(msg string)                                 { Get().Warn(msg) }
func Warnf(format string, args ...any)                { Get().Warn(fmt.Sprintf(format, args...)) }
func Error(msg string)                                { Get().Error(msg) }
func Errorf(format string, args ...any)               { Get().Error(fmt.Sprintf(format, args...)) }

// Infow and friends log with structured key/value pairs, matching the
// teacher's *w suffix convention for "with fields".
func Infow(msg string, keysAndValues ...any)  { Get().Info(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...any)  { Get().Warn(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...any) { Get().Error(msg, keysAndValues...) }
func Debugw(msg string, keysAndValues ...any) { Get().Debug(msg, keysAndValues...) }
