//go:build !(js && wasm)

// Package vulkan is the Vulkan-style backend of package rhi.
//
// Every RHI call is translated into Vulkan parameters from the vk bindings
// of gogpu/wgpu: image layouts, access and pipeline stage masks for
// barriers, descriptor set layouts and push constant ranges for pipeline
// layouts, and descriptor-buffer or descriptor-set-pool heaps. Recorded
// command buffers are replayed on the host GPU timeline shared with the
// D3D12 backend.
//
// Importing the package registers the backend:
//
//	import _ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/vulkan"
package vulkan
