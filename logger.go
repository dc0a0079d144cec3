package bisemutum

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/PepcyCh/bisemutum-engine-sub001/descalloc"
	"github.com/PepcyCh/bisemutum-engine-sub001/graphics"
	"github.com/PepcyCh/bisemutum-engine-sub001/rendergraph"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/d3d12"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/vulkan"
	"github.com/PepcyCh/bisemutum-engine-sub001/shadercompiler"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// packageLoggers are the SetLogger functions of every sub-package that
// logs.
var packageLoggers = []func(*slog.Logger){
	rhi.SetLogger,
	vulkan.SetLogger,
	d3d12.SetLogger,
	descalloc.SetLogger,
	shadercompiler.SetLogger,
	rendergraph.SetLogger,
	graphics.SetLogger,
}

// SetLogger configures the logger for the engine and all its sub-packages.
// By default nothing is logged.
//
// Pass nil to restore the silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame diagnostics (barriers, transient reuse)
//   - [slog.LevelInfo]: lifecycle events (device created, pipeline cache saved)
//   - [slog.LevelWarn]: recoverable issues (stale pipeline cache discarded)
//   - [slog.LevelError]: fatal conditions, tagged severity=critical
//
// Example:
//
//	bisemutum.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	for _, set := range packageLoggers {
		set(l)
	}
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
