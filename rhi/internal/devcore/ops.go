package devcore

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/hostgpu"
)

// The functions below build the host effect of native commands. Encoders
// record the returned closures; they run on the queue worker at submit.
// Objects from another backend are a programming error and panic.

func mustBuffer(b rhi.Buffer) *Buffer {
	hb, err := HostBufferOf(b)
	if err != nil {
		panic(err)
	}
	return hb
}

func mustTexture(t rhi.Texture) *Texture {
	ht, err := HostTextureOf(t)
	if err != nil {
		panic(err)
	}
	return ht
}

func mustAS(as rhi.AccelerationStructure) *AccelerationStructure {
	h, err := HostAccelerationStructureOf(as)
	if err != nil {
		panic(err)
	}
	return h
}

// CopyBufferOp copies between buffers.
func CopyBufferOp(src, dst rhi.Buffer, desc rhi.BufferCopyDesc) func() {
	s, d := mustBuffer(src), mustBuffer(dst)
	return func() { hostgpu.CopyBuffer(s.Mem, d.Mem, desc) }
}

// CopyBufferToTextureOp uploads a buffer region into a texture.
func CopyBufferToTextureOp(src rhi.Buffer, dst rhi.Texture, desc rhi.BufferTextureCopyDesc) func() {
	s, d := mustBuffer(src), mustTexture(dst)
	if err := hostgpu.CheckBufferImageCopy(d.Image, uint64(len(s.Mem)), desc); err != nil {
		panic(fmt.Sprintf("devcore: copy buffer %q to texture %q: %v", s.desc.Label, d.desc.Label, err))
	}
	return func() { hostgpu.CopyBufferToImage(s.Mem, d.Image, desc) }
}

// CopyTextureToBufferOp reads a texture region back into a buffer.
func CopyTextureToBufferOp(src rhi.Texture, dst rhi.Buffer, desc rhi.BufferTextureCopyDesc) func() {
	s, d := mustTexture(src), mustBuffer(dst)
	if err := hostgpu.CheckBufferImageCopy(s.Image, uint64(len(d.Mem)), desc); err != nil {
		panic(fmt.Sprintf("devcore: copy texture %q to buffer %q: %v", s.desc.Label, d.desc.Label, err))
	}
	return func() { hostgpu.CopyImageToBuffer(s.Image, d.Mem, desc) }
}

// CopyTextureOp copies between textures of equal texel size.
func CopyTextureOp(src, dst rhi.Texture, desc rhi.TextureCopyDesc) func() {
	s, d := mustTexture(src), mustTexture(dst)
	if s.Image.Info.BytesPerTexel != d.Image.Info.BytesPerTexel {
		panic(fmt.Sprintf("devcore: copy between %v and %v", s.desc.Format, d.desc.Format))
	}
	return func() { _ = hostgpu.CopyImage(s.Image, d.Image, desc) }
}

// FillBufferOp fills a buffer range with a repeated 32-bit value.
func FillBufferOp(dst rhi.Buffer, offset, size uint64, value uint32) func() {
	d := mustBuffer(dst)
	return func() { hostgpu.FillBuffer(d.Mem, offset, size, value) }
}

// BlitOp performs a scaled copy.
func BlitOp(desc rhi.BlitDesc) func() {
	s, d := mustTexture(desc.Src), mustTexture(desc.Dst)
	return func() { hostgpu.Blit(s.Image, d.Image, desc) }
}

// MipmapOp writes level srcLevel+1 of tex.
func MipmapOp(tex rhi.Texture, srcLevel uint32, mode rhi.MipmapMode) func() {
	t := mustTexture(tex)
	if srcLevel+1 >= t.desc.Levels {
		panic(fmt.Sprintf("devcore: texture %q has no level %d", t.desc.Label, srcLevel+1))
	}
	return func() { hostgpu.Downsample(t.Image, srcLevel, mode) }
}

// LoadOps applies the clear load operations of a render pass.
func LoadOps(desc *rhi.RenderPassDesc) func() {
	var clears []func()
	for _, c := range desc.Colors {
		if c.LoadOp != gputypes.LoadOpClear {
			continue
		}
		t := mustTexture(c.Texture)
		level, layer, color := c.Level, c.Layer, c.ClearColor
		clears = append(clears, func() { hostgpu.ClearColor(t.Image, level, layer, color) })
	}
	if ds := desc.DepthStencil; ds != nil && !ds.ReadOnly {
		clearDepth := ds.DepthLoadOp == gputypes.LoadOpClear
		clearStencil := ds.StencilLoadOp == gputypes.LoadOpClear
		if clearDepth || clearStencil {
			t := mustTexture(ds.Texture)
			level, layer, depth, stencil := ds.Level, ds.Layer, ds.ClearDepth, ds.ClearStencil
			clears = append(clears, func() {
				hostgpu.ClearDepthStencil(t.Image, level, layer, depth, stencil, clearDepth, clearStencil)
			})
		}
	}
	if len(clears) == 0 {
		return nil
	}
	return func() {
		for _, c := range clears {
			c()
		}
	}
}

// BuildBottomLevelOp records the builds of descs. Every destination is
// marked built with its triangle count.
func BuildBottomLevelOp(descs []rhi.BottomLevelBuildDesc) func() {
	type build struct {
		dst  *AccelerationStructure
		tris uint64
	}
	builds := make([]build, len(descs))
	for i := range descs {
		var tris uint64
		for g := range descs[i].Geometries {
			tris += uint64(descs[i].Geometries[g].NumTriangles())
		}
		builds[i] = build{dst: mustAS(descs[i].Dst), tris: tris}
	}
	return func() {
		for _, b := range builds {
			b.dst.MarkBuilt(b.tris)
		}
	}
}

// BuildTopLevelOp records the builds of descs.
func BuildTopLevelOp(descs []rhi.TopLevelBuildDesc) func() {
	dsts := make([]*AccelerationStructure, len(descs))
	counts := make([]uint64, len(descs))
	for i, d := range descs {
		dsts[i] = mustAS(d.Dst)
		counts[i] = uint64(d.NumInstances)
	}
	return func() {
		for i, d := range dsts {
			d.MarkBuilt(counts[i])
		}
	}
}

// EmitOp writes the requested post-build properties of structures.
// structures[i] pairs with emits[i]; EmitNone entries are skipped.
func EmitOp(structures []rhi.AccelerationStructure, emits []rhi.AccelerationStructureEmitData) func() {
	type emit struct {
		as  *AccelerationStructure
		typ rhi.AccelerationStructureEmitType
		dst *Buffer
		off uint64
	}
	var list []emit
	for i, e := range emits {
		if e.Type == rhi.EmitNone || i >= len(structures) {
			continue
		}
		list = append(list, emit{as: mustAS(structures[i]), typ: e.Type, dst: mustBuffer(e.Dst), off: e.DstOffset})
	}
	if len(list) == 0 {
		return nil
	}
	return func() {
		for _, e := range list {
			size := e.as.CurrentSize()
			if e.typ == rhi.EmitCompactedSize {
				size = hostgpu.CompactedSize(size)
			}
			hostgpu.WriteUint64(e.dst.Mem, e.off, size)
		}
	}
}
