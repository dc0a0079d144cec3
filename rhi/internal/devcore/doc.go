// Package devcore holds the device objects both backends share: the host
// memory behind buffers and textures, queues and command buffers, the
// descriptor table, swapchains and the runtime pipeline object cache.
//
// Backends stay thin: they embed these types, add their native state
// (Vulkan layouts and access masks, D3D12 resource states) and translate
// every RHI call into native parameters before recording it.
//
//	         +------------------+
//	         |     devcore      |
//	         | (Core, Recorder) |
//	         +--------+---------+
//	                  |
//	       +----------+----------+
//	       |                     |
//	+------v------+       +------v------+
//	| rhi/vulkan  |       |  rhi/d3d12  |
//	| layouts,    |       | states,     |
//	| desc buffer |       | root sigs   |
//	+------+------+       +------+------+
//	       |                     |
//	       +----------+----------+
//	                  |
//	         +--------v---------+
//	         |     hostgpu      |
//	         | (queues, kernels)|
//	         +------------------+
package devcore
