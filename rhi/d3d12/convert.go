package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// dxgiFormat is DXGI_FORMAT.
type dxgiFormat uint32

const (
	dxgiFormatUnknown           dxgiFormat = 0
	dxgiFormatR32G32B32A32Float dxgiFormat = 2
	dxgiFormatR32G32B32A32Uint  dxgiFormat = 3
	dxgiFormatR16G16B16A16Float dxgiFormat = 10
	dxgiFormatR32G32Float       dxgiFormat = 16
	dxgiFormatD32FloatS8X24Uint dxgiFormat = 20
	dxgiFormatR10G10B10A2Unorm  dxgiFormat = 24
	dxgiFormatR8G8B8A8Unorm     dxgiFormat = 28
	dxgiFormatR8G8B8A8UnormSrgb dxgiFormat = 29
	dxgiFormatR16G16Float       dxgiFormat = 34
	dxgiFormatD32Float          dxgiFormat = 40
	dxgiFormatR32Float          dxgiFormat = 41
	dxgiFormatR32Uint           dxgiFormat = 42
	dxgiFormatR32Sint           dxgiFormat = 43
	dxgiFormatD24UnormS8Uint    dxgiFormat = 45
	dxgiFormatR8G8Unorm         dxgiFormat = 49
	dxgiFormatR16Float          dxgiFormat = 54
	dxgiFormatD16Unorm          dxgiFormat = 55
	dxgiFormatR16Uint           dxgiFormat = 57
	dxgiFormatR8Unorm           dxgiFormat = 61
	dxgiFormatR8Uint            dxgiFormat = 62
	dxgiFormatB8G8R8A8Unorm     dxgiFormat = 87
	dxgiFormatB8G8R8A8UnormSrgb dxgiFormat = 91
)

var textureFormatMap = map[rhi.Format]dxgiFormat{
	gputypes.TextureFormatR8Unorm:        dxgiFormatR8Unorm,
	gputypes.TextureFormatR8Uint:         dxgiFormatR8Uint,
	gputypes.TextureFormatRG8Unorm:       dxgiFormatR8G8Unorm,
	gputypes.TextureFormatR16Uint:        dxgiFormatR16Uint,
	gputypes.TextureFormatR16Float:       dxgiFormatR16Float,
	gputypes.TextureFormatRG16Float:      dxgiFormatR16G16Float,
	gputypes.TextureFormatR32Uint:        dxgiFormatR32Uint,
	gputypes.TextureFormatR32Sint:        dxgiFormatR32Sint,
	gputypes.TextureFormatR32Float:       dxgiFormatR32Float,
	gputypes.TextureFormatRGBA8Unorm:     dxgiFormatR8G8B8A8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb: dxgiFormatR8G8B8A8UnormSrgb,
	gputypes.TextureFormatBGRA8Unorm:     dxgiFormatB8G8R8A8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb: dxgiFormatB8G8R8A8UnormSrgb,
	gputypes.TextureFormatRGB10A2Unorm:   dxgiFormatR10G10B10A2Unorm,
	gputypes.TextureFormatRG32Float:      dxgiFormatR32G32Float,
	gputypes.TextureFormatRGBA16Float:    dxgiFormatR16G16B16A16Float,
	gputypes.TextureFormatRGBA32Uint:     dxgiFormatR32G32B32A32Uint,
	gputypes.TextureFormatRGBA32Float:    dxgiFormatR32G32B32A32Float,
	// D3D12 has neither D24 without stencil nor a stencil-only format.
	gputypes.TextureFormatStencil8:             dxgiFormatD24UnormS8Uint,
	gputypes.TextureFormatDepth16Unorm:         dxgiFormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          dxgiFormatD24UnormS8Uint,
	gputypes.TextureFormatDepth24PlusStencil8:  dxgiFormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:         dxgiFormatD32Float,
	gputypes.TextureFormatDepth32FloatStencil8: dxgiFormatD32FloatS8X24Uint,
}

func textureFormatToDXGI(format rhi.Format) dxgiFormat {
	if f, ok := textureFormatMap[format]; ok {
		return f
	}
	return dxgiFormatUnknown
}

// =============================================================================
// Resources
// =============================================================================

// resourceDimension is D3D12_RESOURCE_DIMENSION.
type resourceDimension uint32

const (
	resourceDimensionBuffer    resourceDimension = 1
	resourceDimensionTexture1D resourceDimension = 2
	resourceDimensionTexture2D resourceDimension = 3
	resourceDimensionTexture3D resourceDimension = 4
)

func textureDimensionToD3D12(dim gputypes.TextureDimension) resourceDimension {
	switch dim {
	case gputypes.TextureDimension1D:
		return resourceDimensionTexture1D
	case gputypes.TextureDimension3D:
		return resourceDimensionTexture3D
	default:
		return resourceDimensionTexture2D
	}
}

// resourceFlags is D3D12_RESOURCE_FLAGS.
type resourceFlags uint32

const (
	resourceFlagAllowRenderTarget    resourceFlags = 0x1
	resourceFlagAllowDepthStencil    resourceFlags = 0x2
	resourceFlagAllowUnorderedAccess resourceFlags = 0x4
	resourceFlagDenyShaderResource   resourceFlags = 0x8
	resourceFlagRaytracingAS         resourceFlags = 0x1000
)

func bufferUsageToFlags(usage rhi.BufferUsage) resourceFlags {
	var flags resourceFlags
	if usage.Contains(rhi.BufferUsageStorage) {
		flags |= resourceFlagAllowUnorderedAccess
	}
	if usage.Contains(rhi.BufferUsageAccelerationStructure) {
		flags |= resourceFlagAllowUnorderedAccess | resourceFlagRaytracingAS
	}
	return flags
}

func textureUsageToFlags(usage rhi.TextureUsage) resourceFlags {
	var flags resourceFlags
	if usage.Contains(rhi.TextureUsageColorAttachment) {
		flags |= resourceFlagAllowRenderTarget
	}
	if usage.Contains(rhi.TextureUsageDepthStencilAttachment) {
		flags |= resourceFlagAllowDepthStencil
		if !usage.Contains(rhi.TextureUsageSampled) {
			flags |= resourceFlagDenyShaderResource
		}
	}
	if usage.Contains(rhi.TextureUsageStorage) {
		flags |= resourceFlagAllowUnorderedAccess
	}
	return flags
}

// heapType is D3D12_HEAP_TYPE.
type heapType uint32

const (
	heapTypeDefault  heapType = 1
	heapTypeUpload   heapType = 2
	heapTypeReadback heapType = 3
)

func memoryPropertyToHeapType(m rhi.MemoryProperty) heapType {
	switch m {
	case rhi.MemoryCpuToGpu:
		return heapTypeUpload
	case rhi.MemoryGpuToCpu:
		return heapTypeReadback
	default:
		return heapTypeDefault
	}
}

// initialBufferState is the state a buffer must be created in for its
// heap type.
func initialBufferState(h heapType, usage rhi.BufferUsage) resourceState {
	switch {
	case usage.Contains(rhi.BufferUsageAccelerationStructure):
		return stateRaytracingAS
	case h == heapTypeUpload:
		return stateGenericRead
	case h == heapTypeReadback:
		return stateCopyDest
	default:
		return stateCommon
	}
}

// =============================================================================
// Samplers
// =============================================================================

// filter is D3D12_FILTER.
type filter uint32

func filterToD3D12(desc *rhi.SamplerDesc) filter {
	var f filter
	if desc.MinFilter == gputypes.FilterModeLinear {
		f |= 0x10
	}
	if desc.MagFilter == gputypes.FilterModeLinear {
		f |= 0x04
	}
	if desc.MipmapFilter == gputypes.MipmapFilterModeLinear {
		f |= 0x01
	}
	if desc.MaxAnisotropy > 1 {
		f = 0x55
	}
	if desc.Compare != gputypes.CompareFunctionUndefined {
		f |= 0x80
	}
	return f
}

// textureAddressMode is D3D12_TEXTURE_ADDRESS_MODE.
type textureAddressMode uint32

const (
	textureAddressModeWrap   textureAddressMode = 1
	textureAddressModeMirror textureAddressMode = 2
	textureAddressModeClamp  textureAddressMode = 3
)

func addressModeToD3D12(mode gputypes.AddressMode) textureAddressMode {
	switch mode {
	case gputypes.AddressModeRepeat:
		return textureAddressModeWrap
	case gputypes.AddressModeMirrorRepeat:
		return textureAddressModeMirror
	default:
		return textureAddressModeClamp
	}
}

// comparisonFunc is D3D12_COMPARISON_FUNC.
type comparisonFunc uint32

func compareFunctionToD3D12(fn gputypes.CompareFunction) comparisonFunc {
	if fn == gputypes.CompareFunctionUndefined {
		return 1 // NEVER
	}
	// NEVER..ALWAYS follow the same order in both enums.
	return comparisonFunc(fn)
}

// samplerDesc is D3D12_SAMPLER_DESC.
type samplerDesc struct {
	Filter         filter
	AddressU       textureAddressMode
	AddressV       textureAddressMode
	AddressW       textureAddressMode
	MipLODBias     float32
	MaxAnisotropy  uint32
	ComparisonFunc comparisonFunc
	MinLOD         float32
	MaxLOD         float32
}

func samplerDescToD3D12(desc *rhi.SamplerDesc) samplerDesc {
	return samplerDesc{
		Filter:         filterToD3D12(desc),
		AddressU:       addressModeToD3D12(desc.AddressModeU),
		AddressV:       addressModeToD3D12(desc.AddressModeV),
		AddressW:       addressModeToD3D12(desc.AddressModeW),
		MaxAnisotropy:  uint32(max(desc.MaxAnisotropy, 1)),
		ComparisonFunc: compareFunctionToD3D12(desc.Compare),
		MinLOD:         desc.LodMinClamp,
		MaxLOD:         desc.LodMaxClamp,
	}
}

// =============================================================================
// Root signatures
// =============================================================================

// descriptorRangeType is D3D12_DESCRIPTOR_RANGE_TYPE.
type descriptorRangeType uint32

const (
	descriptorRangeSRV     descriptorRangeType = 0
	descriptorRangeUAV     descriptorRangeType = 1
	descriptorRangeCBV     descriptorRangeType = 2
	descriptorRangeSampler descriptorRangeType = 3
)

func (t descriptorRangeType) String() string {
	return [...]string{"SRV", "UAV", "CBV", "SAMPLER"}[t]
}

func descriptorRangeTypeOf(t rhi.DescriptorType) descriptorRangeType {
	switch t {
	case rhi.DescriptorSampler:
		return descriptorRangeSampler
	case rhi.DescriptorUniformBuffer:
		return descriptorRangeCBV
	case rhi.DescriptorReadWriteStorageBuffer, rhi.DescriptorReadWriteStorageTexture:
		return descriptorRangeUAV
	default:
		return descriptorRangeSRV
	}
}

// shaderVisibility is D3D12_SHADER_VISIBILITY.
type shaderVisibility uint32

const (
	shaderVisibilityAll    shaderVisibility = 0
	shaderVisibilityVertex shaderVisibility = 1
	shaderVisibilityPixel  shaderVisibility = 5
)

func shaderVisibilityOf(stages rhi.ShaderStage) shaderVisibility {
	switch stages {
	case rhi.ShaderStageVertex:
		return shaderVisibilityVertex
	case rhi.ShaderStageFragment:
		return shaderVisibilityPixel
	default:
		return shaderVisibilityAll
	}
}

// =============================================================================
// Fixed-function state
// =============================================================================

// primitiveTopologyType is D3D12_PRIMITIVE_TOPOLOGY_TYPE.
type primitiveTopologyType uint32

const (
	primitiveTopologyTypePoint    primitiveTopologyType = 1
	primitiveTopologyTypeLine     primitiveTopologyType = 2
	primitiveTopologyTypeTriangle primitiveTopologyType = 3
)

func primitiveTopologyTypeOf(topology gputypes.PrimitiveTopology) primitiveTopologyType {
	switch topology {
	case gputypes.PrimitiveTopologyPointList:
		return primitiveTopologyTypePoint
	case gputypes.PrimitiveTopologyLineList, gputypes.PrimitiveTopologyLineStrip:
		return primitiveTopologyTypeLine
	default:
		return primitiveTopologyTypeTriangle
	}
}

// cullMode is D3D12_CULL_MODE.
type cullMode uint32

func cullModeToD3D12(mode gputypes.CullMode) cullMode {
	switch mode {
	case gputypes.CullModeFront:
		return 2
	case gputypes.CullModeBack:
		return 3
	default:
		return 1 // NONE
	}
}
