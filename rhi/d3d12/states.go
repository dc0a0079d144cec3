package d3d12

import (
	"strings"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// resourceState is D3D12_RESOURCE_STATES.
type resourceState uint32

const (
	stateCommon                  resourceState = 0
	stateVertexAndConstantBuffer resourceState = 0x1
	stateIndexBuffer             resourceState = 0x2
	stateRenderTarget            resourceState = 0x4
	stateUnorderedAccess         resourceState = 0x8
	stateDepthWrite              resourceState = 0x10
	stateDepthRead               resourceState = 0x20
	stateNonPixelShaderResource  resourceState = 0x40
	statePixelShaderResource     resourceState = 0x80
	stateIndirectArgument        resourceState = 0x200
	stateCopyDest                resourceState = 0x400
	stateCopySource              resourceState = 0x800
	stateRaytracingAS            resourceState = 0x400000
	statePresent                 resourceState = 0

	stateAllShaderResource = stateNonPixelShaderResource | statePixelShaderResource
	stateGenericRead       = stateVertexAndConstantBuffer | stateIndexBuffer | stateAllShaderResource |
		stateIndirectArgument | stateCopySource
	// stateWriteMask holds the states that must not be combined with any
	// other state.
	stateWriteMask = stateRenderTarget | stateUnorderedAccess | stateDepthWrite | stateCopyDest
)

var stateNames = []struct {
	state resourceState
	name  string
}{
	{stateVertexAndConstantBuffer, "VERTEX_AND_CONSTANT_BUFFER"},
	{stateIndexBuffer, "INDEX_BUFFER"},
	{stateRenderTarget, "RENDER_TARGET"},
	{stateUnorderedAccess, "UNORDERED_ACCESS"},
	{stateDepthWrite, "DEPTH_WRITE"},
	{stateDepthRead, "DEPTH_READ"},
	{stateNonPixelShaderResource, "NON_PIXEL_SHADER_RESOURCE"},
	{statePixelShaderResource, "PIXEL_SHADER_RESOURCE"},
	{stateIndirectArgument, "INDIRECT_ARGUMENT"},
	{stateCopyDest, "COPY_DEST"},
	{stateCopySource, "COPY_SOURCE"},
	{stateRaytracingAS, "RAYTRACING_ACCELERATION_STRUCTURE"},
}

func (s resourceState) String() string {
	if s == stateCommon {
		return "COMMON"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.state != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// accessStates maps each access bit to the state it needs.
var accessStates = map[rhi.ResourceAccessType]resourceState{
	rhi.AccessIndirectRead:                    stateIndirectArgument,
	rhi.AccessVertexBufferRead:                stateVertexAndConstantBuffer,
	rhi.AccessIndexBufferRead:                 stateIndexBuffer,
	rhi.AccessUniformBufferRead:               stateVertexAndConstantBuffer,
	rhi.AccessSampledTextureRead:              stateAllShaderResource,
	rhi.AccessStorageRead:                     stateUnorderedAccess,
	rhi.AccessStorageWrite:                    stateUnorderedAccess,
	rhi.AccessColorAttachmentRead:             stateRenderTarget,
	rhi.AccessColorAttachmentWrite:            stateRenderTarget,
	rhi.AccessDepthStencilAttachmentRead:      stateDepthRead,
	rhi.AccessDepthStencilAttachmentWrite:     stateDepthWrite,
	rhi.AccessTransferRead:                    stateCopySource,
	rhi.AccessTransferWrite:                   stateCopyDest,
	rhi.AccessHostRead:                        stateCommon,
	rhi.AccessHostWrite:                       stateCommon,
	rhi.AccessAccelerationStructureBuildRead:  stateNonPixelShaderResource,
	rhi.AccessAccelerationStructureBuildWrite: stateUnorderedAccess,
	rhi.AccessAccelerationStructureRead:       stateRaytracingAS,
	rhi.AccessPresent:                         statePresent,
}

// toD3D12State returns the single state serving every bit of a. Read
// states combine; a write state combined with anything else cannot be
// expressed and falls back to COMMON. Depth write implies depth read.
func toD3D12State(a rhi.ResourceAccessType) resourceState {
	var s resourceState
	a.Each(func(bit rhi.ResourceAccessType) {
		s |= accessStates[bit]
	})
	if s&stateDepthWrite != 0 {
		s &^= stateDepthRead
	}
	if w := s & stateWriteMask; w != 0 && s != w {
		return stateCommon
	}
	if w := s & stateWriteMask; w&(w-1) != 0 {
		return stateCommon
	}
	return s
}

// toD3D12BufferState maps a buffer access.
func toD3D12BufferState(a rhi.ResourceAccessType) resourceState {
	return toD3D12State(a & rhi.BufferAccessMask)
}

func toD3D12TextureState(a rhi.ResourceAccessType) resourceState {
	return toD3D12State(a & rhi.TextureAccessMask)
}
