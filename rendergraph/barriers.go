package rendergraph

import (
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// transition records one barrier batch moving every resource in accesses
// from its tracked access to the requested one. Resources already in a
// compatible read access are skipped.
func (g *RenderGraph) transition(enc rhi.CommandEncoder, accesses []access) {
	var buffers []rhi.BufferBarrier
	var textures []rhi.TextureBarrier
	for _, a := range accesses {
		switch a.kind {
		case kindBuffer:
			n := &g.buffers[a.index]
			if rhi.NeedsBarrier(n.access, a.access) {
				buffers = append(buffers, rhi.BufferBarrier{
					Buffer:        n.buf.RHI(),
					SrcAccessType: n.access,
					DstAccessType: a.access,
				})
			}
			n.access = a.access
		case kindTexture:
			n := &g.textures[a.index]
			if rhi.NeedsBarrier(n.access, a.access) {
				textures = append(textures, rhi.TextureBarrier{
					Texture:       n.tex.RHI(),
					SrcAccessType: n.access,
					DstAccessType: a.access,
				})
			}
			n.access = a.access
		}
	}
	if len(buffers) == 0 && len(textures) == 0 {
		return
	}
	enc.ResourceBarriers(buffers, textures)
	g.log.Debug("rendergraph: barriers", "buffers", len(buffers), "textures", len(textures))
}

// generateMipmaps fills every level of a texture from level zero. Each
// level is reduced from the one before it; the source level is moved to
// transfer read and the destination to transfer write first.
func (g *RenderGraph) generateMipmaps(enc rhi.CommandEncoder, m mipmapTarget) {
	n := &g.textures[m.texture-1]
	levels := n.desc.Normalized().Levels
	if levels < 2 {
		return
	}
	tex := n.tex.RHI()
	src := n.access
	for level := range levels - 1 {
		enc.ResourceBarriers(nil, []rhi.TextureBarrier{
			{Texture: tex, BaseLevel: level, NumLevels: 1, SrcAccessType: src, DstAccessType: rhi.AccessTransferRead},
			{Texture: tex, BaseLevel: level + 1, NumLevels: 1, DstAccessType: rhi.AccessTransferWrite},
		})
		enc.GenerateMipmapLevel(tex, level, m.mode)
		src = rhi.AccessTransferWrite
	}
	// Levels now differ in state. The next barrier takes its source from
	// the backend's per-level tracking.
	n.access = rhi.AccessNone
}

func textureUsageFor(a rhi.ResourceAccessType) rhi.TextureUsage {
	var u rhi.TextureUsage
	if a.Has(rhi.AccessSampledTextureRead) {
		u |= rhi.TextureUsageSampled
	}
	if a.Any(rhi.AccessStorageRead | rhi.AccessStorageWrite) {
		u |= rhi.TextureUsageStorage
	}
	if a.Any(rhi.AccessColorAttachmentRead | rhi.AccessColorAttachmentWrite) {
		u |= rhi.TextureUsageColorAttachment
	}
	if a.Any(rhi.AccessDepthStencilAttachmentRead | rhi.AccessDepthStencilAttachmentWrite) {
		u |= rhi.TextureUsageDepthStencilAttachment
	}
	if a.Has(rhi.AccessTransferRead) {
		u |= rhi.TextureUsageTransferSrc
	}
	if a.Has(rhi.AccessTransferWrite) {
		u |= rhi.TextureUsageTransferDst
	}
	return u
}

func bufferUsageFor(a rhi.ResourceAccessType) rhi.BufferUsage {
	var u rhi.BufferUsage
	if a.Has(rhi.AccessIndirectRead) {
		u |= rhi.BufferUsageIndirect
	}
	if a.Has(rhi.AccessVertexBufferRead) {
		u |= rhi.BufferUsageVertex
	}
	if a.Has(rhi.AccessIndexBufferRead) {
		u |= rhi.BufferUsageIndex
	}
	if a.Has(rhi.AccessUniformBufferRead) {
		u |= rhi.BufferUsageUniform
	}
	if a.Any(rhi.AccessStorageRead | rhi.AccessStorageWrite) {
		u |= rhi.BufferUsageStorage
	}
	if a.Has(rhi.AccessTransferRead) {
		u |= rhi.BufferUsageTransferSrc
	}
	if a.Has(rhi.AccessTransferWrite) {
		u |= rhi.BufferUsageTransferDst
	}
	if a.Has(rhi.AccessAccelerationStructureBuildRead) {
		u |= rhi.BufferUsageAccelerationStructureBuildInput
	}
	return u
}
