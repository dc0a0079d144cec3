package rendergraph

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

type passKind uint8

const (
	passGraphics passKind = iota
	passCompute
	passRaytracing
	passEncoder
)

func (k passKind) String() string {
	switch k {
	case passGraphics:
		return "graphics"
	case passCompute:
		return "compute"
	case passRaytracing:
		return "raytracing"
	case passEncoder:
		return "encoder"
	default:
		return fmt.Sprintf("passKind(%d)", uint8(k))
	}
}

// passNode is one recorded pass. enc is the sub-encoder matching kind, or
// the frame encoder for encoder passes.
type passNode struct {
	name     string
	kind     passKind
	accesses []access
	colors   []colorTarget
	depth    *depthTarget
	mipmaps  []mipmapTarget
	run      func(ctx *passContext, enc any) error
}

func noopRun(*passContext, any) error { return nil }

func (g *RenderGraph) addPass(name string, kind passKind) *passNode {
	p := &passNode{name: name, kind: kind, run: noopRun}
	g.passes = append(g.passes, p)
	return p
}

type mipmapTarget struct {
	texture TextureHandle
	mode    rhi.MipmapMode
}

type colorTarget struct {
	texture TextureHandle
	level   uint32
	layer   uint32
	clear   *gputypes.Color
}

func (c *colorTarget) attachment(tex rhi.Texture) rhi.ColorAttachment {
	a := rhi.ColorAttachment{
		Texture: tex,
		Level:   c.level,
		Layer:   c.layer,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if c.clear != nil {
		a.LoadOp = gputypes.LoadOpClear
		a.ClearColor = *c.clear
	}
	return a
}

type depthTarget struct {
	texture  TextureHandle
	level    uint32
	layer    uint32
	clear    *float32
	stencil  *uint32
	readOnly bool
}

func (d *depthTarget) attachment(tex rhi.Texture) rhi.DepthStencilAttachment {
	a := rhi.DepthStencilAttachment{
		Texture:        tex,
		Level:          d.level,
		Layer:          d.layer,
		DepthLoadOp:    gputypes.LoadOpLoad,
		DepthStoreOp:   gputypes.StoreOpStore,
		StencilLoadOp:  gputypes.LoadOpLoad,
		StencilStoreOp: gputypes.StoreOpStore,
		ReadOnly:       d.readOnly,
	}
	if d.clear != nil {
		a.DepthLoadOp = gputypes.LoadOpClear
		a.ClearDepth = *d.clear
	}
	if d.stencil != nil {
		a.StencilLoadOp = gputypes.LoadOpClear
		a.ClearStencil = *d.stencil
	}
	return a
}

// =============================================================================
// Resource declarations
// =============================================================================

// passBuilder declares the resources a pass touches. The declarations
// decide the barriers recorded before the pass and the usages of
// transient resources.
type passBuilder struct {
	g *RenderGraph
	p *passNode
}

func (b *passBuilder) declare(kind resourceKind, index int, a rhi.ResourceAccessType) {
	for i := range b.p.accesses {
		d := &b.p.accesses[i]
		if d.kind == kind && d.index == index {
			d.access |= a
			return
		}
	}
	b.p.accesses = append(b.p.accesses, access{kind: kind, index: index, access: a})
}

func (b *passBuilder) invalid(h fmt.Stringer) {
	b.g.fail(fmt.Errorf("%w: %v in pass %q", ErrInvalidHandle, h, b.p.name))
}

// AccessBuffer declares an access of buf. Repeated declarations of the
// same resource in one pass are merged.
func (b *passBuilder) AccessBuffer(buf BufferHandle, a rhi.ResourceAccessType) BufferHandle {
	if !b.g.validBuffer(buf) {
		b.invalid(buf)
		return buf
	}
	b.declare(kindBuffer, int(buf-1), a)
	b.g.buffers[buf-1].usage |= bufferUsageFor(a)
	return buf
}

// AccessTexture declares an access of tex.
func (b *passBuilder) AccessTexture(tex TextureHandle, a rhi.ResourceAccessType) TextureHandle {
	if !b.g.validTexture(tex) {
		b.invalid(tex)
		return tex
	}
	b.declare(kindTexture, int(tex-1), a)
	b.g.textures[tex-1].usage |= textureUsageFor(a)
	return tex
}

// ReadBuffer declares a shader storage read. A non-zero a replaces the
// default access.
func (b *passBuilder) ReadBuffer(buf BufferHandle, a ...rhi.ResourceAccessType) BufferHandle {
	return b.AccessBuffer(buf, accessOr(a, rhi.AccessStorageRead))
}

// WriteBuffer declares a shader storage write.
func (b *passBuilder) WriteBuffer(buf BufferHandle, a ...rhi.ResourceAccessType) BufferHandle {
	return b.AccessBuffer(buf, accessOr(a, rhi.AccessStorageWrite))
}

// ReadTexture declares a sampled read.
func (b *passBuilder) ReadTexture(tex TextureHandle, a ...rhi.ResourceAccessType) TextureHandle {
	return b.AccessTexture(tex, accessOr(a, rhi.AccessSampledTextureRead))
}

// WriteTexture declares a storage image write.
func (b *passBuilder) WriteTexture(tex TextureHandle, a ...rhi.ResourceAccessType) TextureHandle {
	return b.AccessTexture(tex, accessOr(a, rhi.AccessStorageWrite))
}

// ReadAccelerationStructure declares a trace against as. Acceleration
// structures only order passes; no barrier is recorded for them.
func (b *passBuilder) ReadAccelerationStructure(as AccelerationStructureHandle) AccelerationStructureHandle {
	if !b.g.validAccel(as) {
		b.invalid(as)
		return as
	}
	b.declare(kindAccel, int(as-1), rhi.AccessAccelerationStructureRead)
	return as
}

func accessOr(a []rhi.ResourceAccessType, def rhi.ResourceAccessType) rhi.ResourceAccessType {
	var out rhi.ResourceAccessType
	for _, x := range a {
		out |= x
	}
	if out == rhi.AccessNone {
		return def
	}
	return out
}

// =============================================================================
// Graphics passes
// =============================================================================

// GraphicsPassBuilder declares the targets and resources of a render pass
// whose pass data has type T.
type GraphicsPassBuilder[T any] struct {
	passBuilder
	data *T
}

// AddGraphicsPass appends a render pass. The returned data is owned by the
// graph until the end of Execute and is handed to the execute callback.
func AddGraphicsPass[T any](g *RenderGraph, name string) (*GraphicsPassBuilder[T], *T) {
	data := new(T)
	return &GraphicsPassBuilder[T]{passBuilder: passBuilder{g: g, p: g.addPass(name, passGraphics)}, data: data}, data
}

// UseColor adds tex as the next color target. The pass writes it.
func (b *GraphicsPassBuilder[T]) UseColor(tex TextureHandle) *ColorTargetBuilder {
	b.AccessTexture(tex, rhi.AccessColorAttachmentWrite)
	b.p.colors = append(b.p.colors, colorTarget{texture: tex})
	return &ColorTargetBuilder{b: &b.passBuilder, index: len(b.p.colors) - 1}
}

// UseDepthStencil sets the depth/stencil target. The pass writes it
// unless ReadOnly is set on the returned builder.
func (b *GraphicsPassBuilder[T]) UseDepthStencil(tex TextureHandle) *DepthStencilTargetBuilder {
	b.AccessTexture(tex, rhi.AccessDepthStencilAttachmentWrite)
	b.p.depth = &depthTarget{texture: tex}
	return &DepthStencilTargetBuilder{b: &b.passBuilder}
}

// Execute sets the callback recording the pass.
func (b *GraphicsPassBuilder[T]) Execute(fn func(data *T, ctx *GraphicsPassContext) error) {
	data := b.data
	b.p.run = func(pc *passContext, enc any) error {
		return fn(data, &GraphicsPassContext{passContext: pc, Encoder: enc.(rhi.GraphicsCommandEncoder)})
	}
}

// ColorTargetBuilder configures one color target.
type ColorTargetBuilder struct {
	b     *passBuilder
	index int
}

func (c *ColorTargetBuilder) target() *colorTarget { return &c.b.p.colors[c.index] }

// ClearColor clears the target when the pass begins.
func (c *ColorTargetBuilder) ClearColor(color gputypes.Color) *ColorTargetBuilder {
	c.target().clear = &color
	return c
}

// Level selects the mip level rendered to.
func (c *ColorTargetBuilder) Level(level uint32) *ColorTargetBuilder {
	c.target().level = level
	return c
}

// Layer selects the array layer rendered to.
func (c *ColorTargetBuilder) Layer(layer uint32) *ColorTargetBuilder {
	c.target().layer = layer
	return c
}

// GenerateMipmaps fills the remaining mip levels of the target after the
// pass, each level reduced from the previous one.
func (c *ColorTargetBuilder) GenerateMipmaps(mode rhi.MipmapMode) *ColorTargetBuilder {
	tex := c.target().texture
	if c.b.g.validTexture(tex) {
		c.b.g.textures[tex-1].usage |= rhi.TextureUsageTransferSrc | rhi.TextureUsageTransferDst
	}
	c.b.p.mipmaps = append(c.b.p.mipmaps, mipmapTarget{texture: tex, mode: mode})
	return c
}

// DepthStencilTargetBuilder configures the depth/stencil target.
type DepthStencilTargetBuilder struct {
	b *passBuilder
}

// ClearDepth clears depth when the pass begins.
func (d *DepthStencilTargetBuilder) ClearDepth(depth float32) *DepthStencilTargetBuilder {
	d.b.p.depth.clear = &depth
	return d
}

// ClearStencil clears stencil when the pass begins.
func (d *DepthStencilTargetBuilder) ClearStencil(stencil uint32) *DepthStencilTargetBuilder {
	d.b.p.depth.stencil = &stencil
	return d
}

// ReadOnly binds the target for depth testing without writes.
func (d *DepthStencilTargetBuilder) ReadOnly() *DepthStencilTargetBuilder {
	t := d.b.p.depth
	t.readOnly = true
	for i := range d.b.p.accesses {
		a := &d.b.p.accesses[i]
		if a.kind == kindTexture && a.index == int(t.texture-1) {
			a.access = a.access&^rhi.AccessDepthStencilAttachmentWrite | rhi.AccessDepthStencilAttachmentRead
		}
	}
	return d
}

// =============================================================================
// Compute and ray tracing passes
// =============================================================================

// ComputePassBuilder declares the resources of a compute pass whose pass
// data has type T.
type ComputePassBuilder[T any] struct {
	passBuilder
	data *T
}

// AddComputePass appends a compute pass.
func AddComputePass[T any](g *RenderGraph, name string) (*ComputePassBuilder[T], *T) {
	data := new(T)
	return &ComputePassBuilder[T]{passBuilder: passBuilder{g: g, p: g.addPass(name, passCompute)}, data: data}, data
}

// Execute sets the callback recording the pass.
func (b *ComputePassBuilder[T]) Execute(fn func(data *T, ctx *ComputePassContext) error) {
	data := b.data
	b.p.run = func(pc *passContext, enc any) error {
		return fn(data, &ComputePassContext{passContext: pc, Encoder: enc.(rhi.ComputeCommandEncoder)})
	}
}

// RaytracingPassBuilder declares the resources of a ray tracing pass.
type RaytracingPassBuilder[T any] struct {
	passBuilder
	data *T
}

// AddRaytracingPass appends a ray tracing pass.
func AddRaytracingPass[T any](g *RenderGraph, name string) (*RaytracingPassBuilder[T], *T) {
	data := new(T)
	return &RaytracingPassBuilder[T]{passBuilder: passBuilder{g: g, p: g.addPass(name, passRaytracing)}, data: data}, data
}

// Execute sets the callback recording the pass.
func (b *RaytracingPassBuilder[T]) Execute(fn func(data *T, ctx *RaytracingPassContext) error) {
	data := b.data
	b.p.run = func(pc *passContext, enc any) error {
		return fn(data, &RaytracingPassContext{passContext: pc, Encoder: enc.(rhi.RaytracingCommandEncoder)})
	}
}

// EncoderPassBuilder declares the resources of a pass recording transfer
// or acceleration structure commands directly on the frame encoder.
type EncoderPassBuilder[T any] struct {
	passBuilder
	data *T
}

// AddEncoderPass appends a pass that records outside of any render,
// compute or ray tracing pass.
func AddEncoderPass[T any](g *RenderGraph, name string) (*EncoderPassBuilder[T], *T) {
	data := new(T)
	return &EncoderPassBuilder[T]{passBuilder: passBuilder{g: g, p: g.addPass(name, passEncoder)}, data: data}, data
}

// Execute sets the callback recording the pass.
func (b *EncoderPassBuilder[T]) Execute(fn func(data *T, ctx *EncoderPassContext) error) {
	data := b.data
	b.p.run = func(pc *passContext, enc any) error {
		return fn(data, &EncoderPassContext{passContext: pc, Encoder: enc.(rhi.CommandEncoder)})
	}
}
