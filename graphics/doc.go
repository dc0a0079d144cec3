// Package graphics ties the device, swapchain, descriptor allocators and
// render graph together and drives the frame loop.
//
// A Manager is created from a Config, usually loaded from TOML:
//
//	cfg, err := graphics.LoadConfig(rhi.DirFileSystem("."), "graphics.toml")
//	...
//	m, err := graphics.NewManager(cfg, graphics.WithLogger(logger))
//	...
//	defer m.Close()
//
//	for running {
//		if err := m.BeginFrame(); err != nil { ... }
//		g := m.Graph()
//		bb := g.ImportBackBuffer(m.BackBuffer())
//		// add passes writing bb
//		if err := m.RenderFrame(); err != nil { ... }
//		if err := m.EndFrame(); err != nil { ... }
//	}
//
// Capabilities such as the file system used for the pipeline cache and the
// logger are passed in through options; the package keeps no engine-wide
// state besides its default logger.
package graphics
