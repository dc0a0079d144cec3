package rendergraph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/PepcyCh/bisemutum-engine-sub001/descalloc"
	"github.com/PepcyCh/bisemutum-engine-sub001/resource"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

var (
	// ErrInvalidHandle is returned when a pass uses a handle the graph did
	// not hand out in the current build.
	ErrInvalidHandle = errors.New("rendergraph: invalid handle")

	// ErrNoBindings is returned by ResourceBindingContext.Bind when the
	// graph has no shader visible descriptor allocator.
	ErrNoBindings = errors.New("rendergraph: no gpu descriptor allocator")

	// ErrPass wraps an error returned by a pass callback.
	ErrPass = errors.New("rendergraph: pass failed")
)

// DefaultMaxTransients is the idle transient limit used when
// Config.MaxTransients is zero.
const DefaultMaxTransients = 64

// Config configures a RenderGraph.
type Config struct {
	Device rhi.Device
	// Descriptors provides CPU descriptors for transient resource views.
	// Nil makes the graph create its own allocator.
	Descriptors *descalloc.CpuDescriptorAllocator
	// GpuDescriptors backs ResourceBindingContext.Bind. It may be nil when
	// no pass binds descriptors through the graph.
	GpuDescriptors *descalloc.GpuDescriptorAllocator
	// NumFramesInFlight delays destruction of evicted transients.
	NumFramesInFlight int
	// MaxTransients bounds the number of idle pooled resources. A negative
	// value disables the limit.
	MaxTransients int
	Logger        *slog.Logger
}

// RenderGraph builds and executes one frame of passes. It is not safe for
// concurrent use.
type RenderGraph struct {
	device     rhi.Device
	log        *slog.Logger
	cpu        *descalloc.CpuDescriptorAllocator
	ownCPU     bool
	gpu        *descalloc.GpuDescriptorAllocator
	pool       *transientPool
	backBuffer map[rhi.Texture]*resource.Texture

	buffers    []bufferNode
	textures   []textureNode
	structures []accelNode
	passes     []*passNode
	err        error
}

// New creates a render graph.
func New(cfg Config) *RenderGraph {
	log := cfg.Logger
	if log == nil {
		log = slogger()
	}
	g := &RenderGraph{
		device:     cfg.Device,
		log:        log,
		cpu:        cfg.Descriptors,
		gpu:        cfg.GpuDescriptors,
		backBuffer: make(map[rhi.Texture]*resource.Texture),
	}
	if g.cpu == nil {
		g.cpu = descalloc.NewCpuDescriptorAllocator(cfg.Device, descalloc.CpuAllocatorDesc{
			Type:   rhi.DescriptorHeapResource,
			Logger: log,
		})
		g.ownCPU = true
	}
	limit := cfg.MaxTransients
	switch {
	case limit == 0:
		limit = DefaultMaxTransients
	case limit < 0:
		limit = 0
	}
	g.pool = newTransientPool(cfg.Device, g.cpu, limit, cfg.NumFramesInFlight, log)
	return g
}

// Device returns the device the graph records for.
func (g *RenderGraph) Device() rhi.Device { return g.device }

func (g *RenderGraph) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

// =============================================================================
// Resources
// =============================================================================

// AddBuffer declares a transient buffer. Usages implied by the passes that
// access it are added to desc.Usage.
func (g *RenderGraph) AddBuffer(name string, desc resource.BufferDesc) BufferHandle {
	if desc.Label == "" {
		desc.Label = name
	}
	g.buffers = append(g.buffers, bufferNode{name: name, desc: desc, usage: desc.Usage})
	return BufferHandle(len(g.buffers))
}

// AddTexture declares a transient texture. Usages implied by the passes
// that access it are added to desc.Usage.
func (g *RenderGraph) AddTexture(name string, desc rhi.TextureDesc) TextureHandle {
	if desc.Label == "" {
		desc.Label = name
	}
	g.textures = append(g.textures, textureNode{name: name, desc: desc, usage: desc.Usage})
	return TextureHandle(len(g.textures))
}

// ImportBuffer tracks an external buffer. current is its access when the
// graph starts; AccessNone lets the backend use the state it tracked.
func (g *RenderGraph) ImportBuffer(name string, buf *resource.Buffer, current rhi.ResourceAccessType) BufferHandle {
	g.buffers = append(g.buffers, bufferNode{
		name: name, desc: buf.Desc(), imported: true, buf: buf, access: current,
	})
	return BufferHandle(len(g.buffers))
}

// ImportTexture tracks an external texture.
func (g *RenderGraph) ImportTexture(name string, tex *resource.Texture, current rhi.ResourceAccessType) TextureHandle {
	g.textures = append(g.textures, textureNode{
		name: name, desc: tex.Desc(), imported: true, tex: tex, access: current,
	})
	return TextureHandle(len(g.textures))
}

// ImportBackBuffer tracks the current swapchain image. After the last pass
// the graph transitions it to AccessPresent.
func (g *RenderGraph) ImportBackBuffer(tex rhi.Texture) TextureHandle {
	w, ok := g.backBuffer[tex]
	if !ok {
		w = resource.WrapTexture(g.device, g.cpu, tex)
		g.backBuffer[tex] = w
	}
	g.textures = append(g.textures, textureNode{
		name: "back buffer", desc: tex.Desc(), imported: true, backBuffer: true, tex: w,
	})
	return TextureHandle(len(g.textures))
}

// ImportAccelerationStructure tracks an acceleration structure so passes
// can declare reads of it.
func (g *RenderGraph) ImportAccelerationStructure(name string, as rhi.AccelerationStructure) AccelerationStructureHandle {
	g.structures = append(g.structures, accelNode{name: name, as: as})
	return AccelerationStructureHandle(len(g.structures))
}

// TextureDesc returns the description of a declared texture.
func (g *RenderGraph) TextureDesc(h TextureHandle) (rhi.TextureDesc, bool) {
	if !g.validTexture(h) {
		return rhi.TextureDesc{}, false
	}
	return g.textures[h-1].desc, true
}

func (g *RenderGraph) validBuffer(h BufferHandle) bool {
	return h > 0 && int(h) <= len(g.buffers)
}

func (g *RenderGraph) validTexture(h TextureHandle) bool {
	return h > 0 && int(h) <= len(g.textures)
}

func (g *RenderGraph) validAccel(h AccelerationStructureHandle) bool {
	return h > 0 && int(h) <= len(g.structures)
}

// =============================================================================
// Execution
// =============================================================================

// Execute records every pass into enc in the order they were added, then
// resets the graph for the next build. frame selects per-frame buffer
// regions and GPU descriptor partitions.
func (g *RenderGraph) Execute(enc rhi.CommandEncoder, frame int) error {
	defer g.Reset()
	if g.err != nil {
		return g.err
	}
	g.pool.begin()

	keys, err := g.realize()
	defer g.releaseTransients(keys)
	if err != nil {
		return err
	}

	for _, p := range g.passes {
		if err := g.runPass(enc, p, frame); err != nil {
			return err
		}
	}
	g.finalBarriers(enc)
	g.log.Debug("rendergraph: executed", "passes", len(g.passes),
		"buffers", len(g.buffers), "textures", len(g.textures))
	return nil
}

// realize binds every transient to a pooled resource.
func (g *RenderGraph) realize() ([]transientKey, error) {
	var keys []transientKey
	for i := range g.buffers {
		n := &g.buffers[i]
		if n.imported {
			continue
		}
		desc := n.desc
		desc.Usage |= n.usage
		buf, key, err := g.pool.buffer(desc)
		if err != nil {
			rhi.LogCritical(g.log, "rendergraph: allocate transient buffer", "name", n.name, "err", err)
			return keys, err
		}
		n.buf = buf
		keys = append(keys, transientKey{key: key, res: pooled{buf: buf}})
	}
	for i := range g.textures {
		n := &g.textures[i]
		if n.imported {
			continue
		}
		desc := n.desc
		desc.Usage |= n.usage
		tex, key, err := g.pool.texture(desc)
		if err != nil {
			rhi.LogCritical(g.log, "rendergraph: allocate transient texture", "name", n.name, "err", err)
			return keys, err
		}
		n.tex = tex
		keys = append(keys, transientKey{key: key, res: pooled{tex: tex}})
	}
	return keys, nil
}

type transientKey struct {
	key poolKey
	res pooled
}

func (g *RenderGraph) releaseTransients(keys []transientKey) {
	for _, k := range keys {
		g.pool.release(k.key, k.res)
	}
}

func (g *RenderGraph) runPass(enc rhi.CommandEncoder, p *passNode, frame int) error {
	g.transition(enc, p.accesses)

	// Sub-encoders label themselves with the name passed to Begin.
	ctx := passContext{graph: g, frame: frame}
	var err error
	switch p.kind {
	case passGraphics:
		err = g.runGraphics(enc, p, ctx)
	case passCompute:
		sub := enc.BeginComputePass(p.name)
		err = p.run(&ctx, sub)
		sub.End()
	case passRaytracing:
		sub := enc.BeginRaytracingPass(p.name)
		err = p.run(&ctx, sub)
		sub.End()
	case passEncoder:
		enc.PushLabel(p.name)
		err = p.run(&ctx, enc)
		enc.PopLabel()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPass, p.name, err)
	}
	for _, m := range p.mipmaps {
		g.generateMipmaps(enc, m)
	}
	return nil
}

func (g *RenderGraph) runGraphics(enc rhi.CommandEncoder, p *passNode, ctx passContext) error {
	desc := rhi.RenderPassDesc{Label: p.name}
	for _, c := range p.colors {
		desc.Colors = append(desc.Colors, c.attachment(g.textures[c.texture-1].tex.RHI()))
	}
	if p.depth != nil {
		a := p.depth.attachment(g.textures[p.depth.texture-1].tex.RHI())
		desc.DepthStencil = &a
	}
	sub := enc.BeginRenderPass(desc)
	defer sub.End()
	return p.run(&ctx, sub)
}

// finalBarriers moves the back buffer to its present state.
func (g *RenderGraph) finalBarriers(enc rhi.CommandEncoder) {
	var present []access
	for i, n := range g.textures {
		if n.backBuffer && n.access != rhi.AccessPresent {
			present = append(present, access{kind: kindTexture, index: i, access: rhi.AccessPresent})
		}
	}
	g.transition(enc, present)
}

// Reset discards the passes and resources declared since the last Execute.
func (g *RenderGraph) Reset() {
	clear(g.buffers)
	clear(g.textures)
	clear(g.structures)
	clear(g.passes)
	g.buffers = g.buffers[:0]
	g.textures = g.textures[:0]
	g.structures = g.structures[:0]
	g.passes = g.passes[:0]
	g.err = nil
}

// ReleaseBackBuffers drops the views of imported swapchain images. Call it
// after the swapchain is resized or destroyed.
func (g *RenderGraph) ReleaseBackBuffers() {
	for _, w := range g.backBuffer {
		w.Destroy()
	}
	clear(g.backBuffer)
}

// TransientStats returns transient pool statistics.
func (g *RenderGraph) TransientStats() TransientStats { return g.pool.stats() }

// Close destroys pooled transients and the graph's descriptor views. The
// caller must wait for the device to go idle first.
func (g *RenderGraph) Close() {
	g.pool.destroy()
	g.ReleaseBackBuffers()
	if g.ownCPU {
		g.cpu.Destroy()
	}
}
