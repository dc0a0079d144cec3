// Package d3d12 is the Direct3D 12-style backend of package rhi.
//
// RHI calls become D3D12 parameters: resource states and transition or
// UAV barriers, CBV/SRV/UAV and sampler descriptor heaps addressed by
// handle increments, root signatures with one descriptor table per bind
// group, and state objects whose shader identifiers are looked up by
// export name. Recorded command lists are replayed on the host GPU
// timeline shared with the Vulkan backend.
//
// The native enums are declared here rather than imported because the
// d3d12 bindings of gogpu/wgpu only build on Windows.
//
// Importing the package registers the backend:
//
//	import _ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/d3d12"
package d3d12
