//go:build !(js && wasm)

package vulkan

import (
	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// accessInfo is the Vulkan view of one resource access.
type accessInfo struct {
	Access vk.AccessFlags
	Stages vk.PipelineStageFlags
	Layout vk.ImageLayout
}

const shaderStages = vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit) |
	vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) |
	vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit) |
	vk.PipelineStageFlags(vk.PipelineStageRayTracingShaderBitKhr)

const fragmentTests = vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
	vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)

// accessTable gives the access mask, stages and layout each access bit
// needs on its own.
var accessTable = map[rhi.ResourceAccessType]accessInfo{
	rhi.AccessIndirectRead: {
		vk.AccessFlags(vk.AccessIndirectCommandReadBit),
		vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit),
		vk.ImageLayoutGeneral,
	},
	rhi.AccessVertexBufferRead: {
		vk.AccessFlags(vk.AccessVertexAttributeReadBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		vk.ImageLayoutGeneral,
	},
	rhi.AccessIndexBufferRead: {
		vk.AccessFlags(vk.AccessIndexReadBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		vk.ImageLayoutGeneral,
	},
	rhi.AccessUniformBufferRead: {
		vk.AccessFlags(vk.AccessUniformReadBit),
		shaderStages,
		vk.ImageLayoutGeneral,
	},
	rhi.AccessSampledTextureRead: {
		vk.AccessFlags(vk.AccessShaderReadBit),
		shaderStages,
		vk.ImageLayoutShaderReadOnlyOptimal,
	},
	rhi.AccessStorageRead: {
		vk.AccessFlags(vk.AccessShaderReadBit),
		shaderStages,
		vk.ImageLayoutGeneral,
	},
	rhi.AccessStorageWrite: {
		vk.AccessFlags(vk.AccessShaderWriteBit),
		shaderStages,
		vk.ImageLayoutGeneral,
	},
	rhi.AccessColorAttachmentRead: {
		vk.AccessFlags(vk.AccessColorAttachmentReadBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.ImageLayoutColorAttachmentOptimal,
	},
	rhi.AccessColorAttachmentWrite: {
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.ImageLayoutColorAttachmentOptimal,
	},
	rhi.AccessDepthStencilAttachmentRead: {
		vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit),
		fragmentTests,
		vk.ImageLayoutDepthStencilReadOnlyOptimal,
	},
	rhi.AccessDepthStencilAttachmentWrite: {
		vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		fragmentTests,
		vk.ImageLayoutDepthStencilAttachmentOptimal,
	},
	rhi.AccessTransferRead: {
		vk.AccessFlags(vk.AccessTransferReadBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.ImageLayoutTransferSrcOptimal,
	},
	rhi.AccessTransferWrite: {
		vk.AccessFlags(vk.AccessTransferWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.ImageLayoutTransferDstOptimal,
	},
	rhi.AccessHostRead: {
		vk.AccessFlags(vk.AccessHostReadBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		vk.ImageLayoutGeneral,
	},
	rhi.AccessHostWrite: {
		vk.AccessFlags(vk.AccessHostWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		vk.ImageLayoutGeneral,
	},
	rhi.AccessAccelerationStructureBuildRead: {
		vk.AccessFlags(vk.AccessAccelerationStructureReadBitKhr) | vk.AccessFlags(vk.AccessShaderReadBit),
		vk.PipelineStageFlags(vk.PipelineStageAccelerationStructureBuildBitKhr),
		vk.ImageLayoutGeneral,
	},
	rhi.AccessAccelerationStructureBuildWrite: {
		vk.AccessFlags(vk.AccessAccelerationStructureWriteBitKhr),
		vk.PipelineStageFlags(vk.PipelineStageAccelerationStructureBuildBitKhr),
		vk.ImageLayoutGeneral,
	},
	rhi.AccessAccelerationStructureRead: {
		vk.AccessFlags(vk.AccessAccelerationStructureReadBitKhr),
		shaderStages,
		vk.ImageLayoutGeneral,
	},
	rhi.AccessPresent: {
		0,
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		vk.ImageLayoutPresentSrcKhr,
	},
}

// toVkAccess returns the union of what every bit of a needs. It is a pure
// function of a. isSrc selects the stage used for AccessNone: top of pipe
// as a source, bottom of pipe as a destination.
func toVkAccess(a rhi.ResourceAccessType, isSrc bool) accessInfo {
	if a == rhi.AccessNone {
		stage := vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
		if isSrc {
			stage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		return accessInfo{Stages: stage, Layout: vk.ImageLayoutUndefined}
	}
	var info accessInfo
	a.Each(func(bit rhi.ResourceAccessType) {
		e := accessTable[bit]
		info.Access |= e.Access
		info.Stages |= e.Stages
	})
	info.Layout = imageLayout(a)
	return info
}

// toVkBufferAccess maps a buffer access. Buffers have no layout.
func toVkBufferAccess(a rhi.ResourceAccessType, isSrc bool) accessInfo {
	info := toVkAccess(a&rhi.BufferAccessMask, isSrc)
	info.Layout = vk.ImageLayoutUndefined
	return info
}

// toVkImageAccess maps a texture access.
func toVkImageAccess(a rhi.ResourceAccessType, isSrc bool) accessInfo {
	return toVkAccess(a&rhi.TextureAccessMask, isSrc)
}

// imageLayout picks the single layout that serves every bit of a. When
// the bits need different specific layouts the result is GENERAL, except
// for the combinations a read-only depth layout or an attachment layout
// can express.
func imageLayout(a rhi.ResourceAccessType) vk.ImageLayout {
	a &= rhi.TextureAccessMask
	if a == rhi.AccessNone {
		return vk.ImageLayoutUndefined
	}
	switch {
	case a.Has(rhi.AccessDepthStencilAttachmentWrite) &&
		a&^(rhi.AccessDepthStencilAttachmentWrite|rhi.AccessDepthStencilAttachmentRead) == 0:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case a.Has(rhi.AccessDepthStencilAttachmentRead) &&
		a&^(rhi.AccessDepthStencilAttachmentRead|rhi.AccessSampledTextureRead) == 0:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	layout := vk.ImageLayoutUndefined
	same := true
	a.Each(func(bit rhi.ResourceAccessType) {
		l := accessTable[bit].Layout
		if layout == vk.ImageLayoutUndefined {
			layout = l
		} else if l != layout {
			same = false
		}
	})
	if !same {
		return vk.ImageLayoutGeneral
	}
	return layout
}
