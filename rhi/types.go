package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/bitflags"
)

// Format is a texture format.
type Format = gputypes.TextureFormat

// QueueType identifies a device queue.
type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer

	numQueueTypes
)

// NumQueueTypes is the number of queues a device exposes.
const NumQueueTypes = int(numQueueTypes)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("QueueType(%d)", uint8(q))
	}
}

// MemoryProperty selects where a buffer lives and whether the host can
// reach it.
type MemoryProperty uint8

const (
	// MemoryGpuOnly is device-local memory. Map returns nil.
	MemoryGpuOnly MemoryProperty = iota
	// MemoryCpuToGpu is host-visible memory used for uploads.
	MemoryCpuToGpu
	// MemoryGpuToCpu is host-visible memory used for readback.
	MemoryGpuToCpu
)

func (m MemoryProperty) String() string {
	switch m {
	case MemoryGpuOnly:
		return "gpu_only"
	case MemoryCpuToGpu:
		return "cpu_to_gpu"
	case MemoryGpuToCpu:
		return "gpu_to_cpu"
	default:
		return fmt.Sprintf("MemoryProperty(%d)", uint8(m))
	}
}

// HostVisible reports whether buffers with this property can be mapped.
func (m MemoryProperty) HostVisible() bool { return m != MemoryGpuOnly }

// BufferUsage is a bitmask of buffer usages.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageIndirect
	BufferUsageAccelerationStructure
	BufferUsageAccelerationStructureBuildInput
	BufferUsageShaderBindingTable
)

var bufferUsageNames = map[BufferUsage]string{
	BufferUsageTransferSrc:                     "transfer_src",
	BufferUsageTransferDst:                     "transfer_dst",
	BufferUsageUniform:                         "uniform",
	BufferUsageStorage:                         "storage",
	BufferUsageVertex:                          "vertex",
	BufferUsageIndex:                           "index",
	BufferUsageIndirect:                        "indirect",
	BufferUsageAccelerationStructure:           "acceleration_structure",
	BufferUsageAccelerationStructureBuildInput: "acceleration_structure_build_input",
	BufferUsageShaderBindingTable:              "shader_binding_table",
}

// Contains reports whether all bits of flag are set.
func (u BufferUsage) Contains(flag BufferUsage) bool { return bitflags.Has(u, flag) }

func (u BufferUsage) String() string { return bitflags.Format(u, bufferUsageNames, "none") }

// TextureUsage is a bitmask of texture usages.
type TextureUsage uint32

const (
	TextureUsageTransferSrc TextureUsage = 1 << iota
	TextureUsageTransferDst
	TextureUsageSampled
	TextureUsageStorage
	TextureUsageColorAttachment
	TextureUsageDepthStencilAttachment
)

var textureUsageNames = map[TextureUsage]string{
	TextureUsageTransferSrc:            "transfer_src",
	TextureUsageTransferDst:            "transfer_dst",
	TextureUsageSampled:                "sampled",
	TextureUsageStorage:                "storage",
	TextureUsageColorAttachment:        "color_attachment",
	TextureUsageDepthStencilAttachment: "depth_stencil_attachment",
}

// Contains reports whether all bits of flag are set.
func (u TextureUsage) Contains(flag TextureUsage) bool { return bitflags.Has(u, flag) }

func (u TextureUsage) String() string { return bitflags.Format(u, textureUsageNames, "none") }

// ShaderStage is a bitmask of shader stages. The first three bits match
// gputypes.ShaderStage.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageRaygen
	ShaderStageMiss
	ShaderStageClosestHit
	ShaderStageAnyHit
	ShaderStageIntersection
	ShaderStageCallable

	ShaderStageAllGraphics   = ShaderStageVertex | ShaderStageFragment
	ShaderStageAllRaytracing = ShaderStageRaygen | ShaderStageMiss | ShaderStageClosestHit |
		ShaderStageAnyHit | ShaderStageIntersection | ShaderStageCallable
	ShaderStageAll = ShaderStageAllGraphics | ShaderStageCompute | ShaderStageAllRaytracing
)

var shaderStageNames = map[ShaderStage]string{
	ShaderStageVertex:       "vertex",
	ShaderStageFragment:     "fragment",
	ShaderStageCompute:      "compute",
	ShaderStageRaygen:       "raygen",
	ShaderStageMiss:         "miss",
	ShaderStageClosestHit:   "closest_hit",
	ShaderStageAnyHit:       "any_hit",
	ShaderStageIntersection: "intersection",
	ShaderStageCallable:     "callable",
}

// Contains reports whether all bits of flag are set.
func (s ShaderStage) Contains(flag ShaderStage) bool { return bitflags.Has(s, flag) }

func (s ShaderStage) String() string { return bitflags.Format(s, shaderStageNames, "none") }

// ShaderStageFromGPUTypes converts a gputypes stage mask.
func ShaderStageFromGPUTypes(s gputypes.ShaderStage) ShaderStage {
	return ShaderStage(s) & (ShaderStageVertex | ShaderStageFragment | ShaderStageCompute)
}

// Region addresses a box inside one subresource. A zero Extent means the
// whole subresource starting at Offset.
type Region struct {
	Offset gputypes.Origin3D
	Extent gputypes.Extent3D
}

// Resolve clamps r to a subresource of the given extent.
func (r Region) Resolve(level gputypes.Extent3D) Region {
	out := r
	if out.Extent.Width == 0 {
		out.Extent.Width = level.Width - min(r.Offset.X, level.Width)
	}
	if out.Extent.Height == 0 {
		out.Extent.Height = level.Height - min(r.Offset.Y, level.Height)
	}
	if out.Extent.DepthOrArrayLayers == 0 {
		out.Extent.DepthOrArrayLayers = level.DepthOrArrayLayers - min(r.Offset.Z, level.DepthOrArrayLayers)
	}
	return out
}
