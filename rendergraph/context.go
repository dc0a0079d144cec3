package rendergraph

import (
	"fmt"

	"github.com/PepcyCh/bisemutum-engine-sub001/resource"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// passContext resolves handles while a pass records. It is shared by the
// typed pass contexts.
type passContext struct {
	graph *RenderGraph
	frame int
}

// Frame returns the frame index passed to Execute.
func (c *passContext) Frame() int { return c.frame }

// Device returns the device the graph records for.
func (c *passContext) Device() rhi.Device { return c.graph.device }

// Buffer returns the resource behind h. It panics on handles from another
// build.
func (c *passContext) Buffer(h BufferHandle) *resource.Buffer {
	if !c.graph.validBuffer(h) {
		panic(fmt.Sprintf("rendergraph: %v is not part of this graph", h))
	}
	return c.graph.buffers[h-1].buf
}

// Texture returns the resource behind h.
func (c *passContext) Texture(h TextureHandle) *resource.Texture {
	if !c.graph.validTexture(h) {
		panic(fmt.Sprintf("rendergraph: %v is not part of this graph", h))
	}
	return c.graph.textures[h-1].tex
}

// AccelerationStructure returns the structure behind h.
func (c *passContext) AccelerationStructure(h AccelerationStructureHandle) rhi.AccelerationStructure {
	if !c.graph.validAccel(h) {
		panic(fmt.Sprintf("rendergraph: %v is not part of this graph", h))
	}
	return c.graph.structures[h-1].as
}

// Bindings returns a context for building shader visible bind groups.
func (c *passContext) Bindings() *ResourceBindingContext {
	return &ResourceBindingContext{graph: c.graph, frame: c.frame}
}

// ResourceBindingContext copies CPU descriptors into shader visible
// descriptor ranges owned by the current frame.
type ResourceBindingContext struct {
	graph  *RenderGraph
	frame  int
	thread int
}

// Bind allocates a range for layout and copies descriptors into it in
// layout order. The range is valid until the frame's GPU allocator
// partition is reset.
func (r *ResourceBindingContext) Bind(layout rhi.BindGroupLayout, descriptors []rhi.DescriptorHandle) (rhi.DescriptorHandle, error) {
	if r.graph.gpu == nil {
		return rhi.DescriptorHandle{}, ErrNoBindings
	}
	types := layout.DescriptorTypes()
	if len(types) != len(descriptors) {
		return rhi.DescriptorHandle{}, fmt.Errorf("rendergraph: layout has %d descriptors, got %d", len(types), len(descriptors))
	}
	dst, err := r.graph.gpu.Allocate(r.frame, r.thread, layout)
	if err != nil {
		return rhi.DescriptorHandle{}, err
	}
	if err := r.graph.device.CopyDescriptors(dst, descriptors, types); err != nil {
		return rhi.DescriptorHandle{}, fmt.Errorf("rendergraph: copy descriptors: %w", err)
	}
	return dst, nil
}

// GraphicsPassContext is handed to graphics pass callbacks.
type GraphicsPassContext struct {
	*passContext
	Encoder rhi.GraphicsCommandEncoder
}

// ComputePassContext is handed to compute pass callbacks.
type ComputePassContext struct {
	*passContext
	Encoder rhi.ComputeCommandEncoder
}

// RaytracingPassContext is handed to ray tracing pass callbacks.
type RaytracingPassContext struct {
	*passContext
	Encoder rhi.RaytracingCommandEncoder
}

// EncoderPassContext is handed to encoder pass callbacks.
type EncoderPassContext struct {
	*passContext
	Encoder rhi.CommandEncoder
}
