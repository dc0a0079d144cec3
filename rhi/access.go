package rhi

import "github.com/PepcyCh/bisemutum-engine-sub001/internal/bitflags"

// ResourceAccessType describes how a resource is about to be used.
//
// It is the single source from which both backends derive native barrier
// parameters: Vulkan image layouts, access masks and pipeline stages, and
// D3D12 resource states. Several bits may be combined; backends produce
// the union of what each bit needs.
type ResourceAccessType uint32

const (
	// AccessNone means "unknown" as a barrier source. The backend then
	// uses the state it tracked for the resource.
	AccessNone ResourceAccessType = 0

	AccessIndirectRead ResourceAccessType = 1 << (iota - 1)
	AccessVertexBufferRead
	AccessIndexBufferRead
	AccessUniformBufferRead
	AccessSampledTextureRead
	AccessStorageRead
	AccessStorageWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessAccelerationStructureBuildRead
	AccessAccelerationStructureBuildWrite
	AccessAccelerationStructureRead
	AccessPresent
)

// accessWriteMask holds every bit that writes.
const accessWriteMask = AccessStorageWrite | AccessColorAttachmentWrite |
	AccessDepthStencilAttachmentWrite | AccessTransferWrite | AccessHostWrite |
	AccessAccelerationStructureBuildWrite

// BufferAccessMask holds the bits meaningful for buffers.
const BufferAccessMask = AccessIndirectRead | AccessVertexBufferRead | AccessIndexBufferRead |
	AccessUniformBufferRead | AccessStorageRead | AccessStorageWrite | AccessTransferRead |
	AccessTransferWrite | AccessHostRead | AccessHostWrite | AccessAccelerationStructureBuildRead |
	AccessAccelerationStructureBuildWrite | AccessAccelerationStructureRead

// TextureAccessMask holds the bits meaningful for textures.
const TextureAccessMask = AccessSampledTextureRead | AccessStorageRead | AccessStorageWrite |
	AccessColorAttachmentRead | AccessColorAttachmentWrite | AccessDepthStencilAttachmentRead |
	AccessDepthStencilAttachmentWrite | AccessTransferRead | AccessTransferWrite | AccessHostRead |
	AccessHostWrite | AccessPresent

var accessNames = map[ResourceAccessType]string{
	AccessIndirectRead:                    "indirect_read",
	AccessVertexBufferRead:                "vertex_buffer_read",
	AccessIndexBufferRead:                 "index_buffer_read",
	AccessUniformBufferRead:               "uniform_buffer_read",
	AccessSampledTextureRead:              "sampled_texture_read",
	AccessStorageRead:                     "storage_read",
	AccessStorageWrite:                    "storage_write",
	AccessColorAttachmentRead:             "color_attachment_read",
	AccessColorAttachmentWrite:            "color_attachment_write",
	AccessDepthStencilAttachmentRead:      "depth_stencil_attachment_read",
	AccessDepthStencilAttachmentWrite:     "depth_stencil_attachment_write",
	AccessTransferRead:                    "transfer_read",
	AccessTransferWrite:                   "transfer_write",
	AccessHostRead:                        "host_read",
	AccessHostWrite:                       "host_write",
	AccessAccelerationStructureBuildRead:  "acceleration_structure_build_read",
	AccessAccelerationStructureBuildWrite: "acceleration_structure_build_write",
	AccessAccelerationStructureRead:       "acceleration_structure_read",
	AccessPresent:                         "present",
}

// Has reports whether all bits of want are set.
func (a ResourceAccessType) Has(want ResourceAccessType) bool { return bitflags.Has(a, want) }

// Any reports whether at least one bit of want is set.
func (a ResourceAccessType) Any(want ResourceAccessType) bool { return bitflags.Any(a, want) }

// IsWrite reports whether the access modifies the resource.
func (a ResourceAccessType) IsWrite() bool { return a.Any(accessWriteMask) }

// Each calls fn for every set bit, lowest first.
func (a ResourceAccessType) Each(fn func(ResourceAccessType)) { bitflags.Each(a, fn) }

func (a ResourceAccessType) String() string { return bitflags.Format(a, accessNames, "none") }

// NeedsBarrier reports whether moving from prev to next requires a
// barrier. Read-to-same-read needs none; anything involving a write or a
// change of access does.
func NeedsBarrier(prev, next ResourceAccessType) bool {
	if prev != next {
		return true
	}
	return prev.IsWrite()
}
