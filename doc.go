// Package bisemutum is the root of a small rendering engine built around a
// render hardware interface with two backends.
//
// # Overview
//
// The engine is layered bottom-up:
//   - rhi: devices, queues, command encoders and resources, plus the
//     vulkan and d3d12 backends that implement them
//   - descalloc: CPU descriptor chunks and per-frame GPU descriptor rings
//   - shadercompiler, shaderparams: WGSL compilation and uniform packing
//   - resource: buffers, textures and samplers with descriptor views
//   - rendergraph: passes declared per frame, barriers generated on execute
//   - graphics: the frame loop that ties everything together
//
// # Quick Start
//
//	cfg := graphics.DefaultConfig()
//	cfg.Backend = "vulkan"
//	mgr, err := graphics.NewManager(cfg, graphics.WithLogger(slog.Default()))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mgr.Close()
//
// # Logging
//
// Every package logs through its own slog.Logger, silent by default.
// SetLogger in this package installs one logger for all of them.
package bisemutum

// Version information
const (
	// Version is the current version of the engine
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
