package turbonerf

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for turbonerf and its sub-packages.
// By default, turbonerf produces no log output. Pass nil to disable logging
// again (restore the default silent behavior).
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
//
// Log levels used by turbonerf:
//   - [slog.LevelDebug]: internal diagnostics (task spans, workspace sizes)
//   - [slog.LevelInfo]: lifecycle events (GPU adapter selected, pool created)
//   - [slog.LevelWarn]: non-fatal issues (task faults, dropped completions)
//
// Example:
//
//	turbonerf.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	// Propagate to the registered engine if it supports logging.
	engineMu.RLock()
	e := defaultEngine
	engineMu.RUnlock()
	if e != nil {
		propagateLogger(e, l)
	}
}

// Logger returns the current logger used by turbonerf.
// Sub-packages (internal/gpu, gpu/) call this to share the same logger
// configuration without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by engines that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to an engine if it implements the
// loggerSetter interface. Called from both SetLogger and RegisterEngine so
// the engine always has the current logger.
func propagateLogger(e Engine, l *slog.Logger) {
	if ls, ok := e.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
