package bisemutum

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/PepcyCh/bisemutum-engine-sub001/descalloc"
	"github.com/PepcyCh/bisemutum-engine-sub001/graphics"
	"github.com/PepcyCh/bisemutum-engine-sub001/rendergraph"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/d3d12"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/vulkan"
	"github.com/PepcyCh/bisemutum-engine-sub001/shadercompiler"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("key", "val")}).(nopHandler); !ok {
		t.Error("WithAttrs did not return a nopHandler")
	}
	if _, ok := h.WithGroup("group").(nopHandler); !ok {
		t.Error("WithGroup did not return a nopHandler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLoggerPropagates(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)

	if Logger() != custom {
		t.Error("Logger() did not return the custom logger")
	}
	for name, get := range map[string]func() *slog.Logger{
		"rhi":            rhi.Logger,
		"vulkan":         vulkan.Logger,
		"d3d12":          d3d12.Logger,
		"descalloc":      descalloc.Logger,
		"shadercompiler": shadercompiler.Logger,
		"rendergraph":    rendergraph.Logger,
		"graphics":       graphics.Logger,
	} {
		if get() != custom {
			t.Errorf("%s logger was not updated", name)
		}
	}

	Logger().Info("test message", "key", "value")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("expected log output to contain 'test message', got: %s", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	SetLogger(slog.Default())
	SetLogger(nil)

	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
	if rendergraph.Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should silence sub-packages")
	}
}
