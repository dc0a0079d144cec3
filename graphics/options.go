package graphics

import (
	"log/slog"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// Option configures a Manager during creation.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	fileSystem rhi.FileSystem
	backend    *rhi.Backend
}

// WithLogger sets the logger used by the manager, its device and its
// render graph. Without it the package logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithFileSystem sets the file system holding the pipeline cache.
// Without it the pipeline cache is not persisted.
func WithFileSystem(fsys rhi.FileSystem) Option {
	return func(o *options) {
		o.fileSystem = fsys
	}
}

// WithBackend overrides Config.Backend.
func WithBackend(b rhi.Backend) Option {
	return func(o *options) {
		o.backend = &b
	}
}
