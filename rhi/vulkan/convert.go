//go:build !(js && wasm)

package vulkan

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// bufferUsageShaderDeviceAddress is VK_BUFFER_USAGE_SHADER_DEVICE_ADDRESS_BIT.
// The vk bindings only carry its KHR alias under a different name.
const bufferUsageShaderDeviceAddress = vk.BufferUsageFlags(0x00020000)

// bufferUsageToVk converts RHI buffer usage flags to Vulkan buffer usage
// flags. Every buffer gets a device address.
func bufferUsageToVk(usage rhi.BufferUsage) vk.BufferUsageFlags {
	flags := bufferUsageShaderDeviceAddress

	if usage.Contains(rhi.BufferUsageTransferSrc) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if usage.Contains(rhi.BufferUsageTransferDst) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if usage.Contains(rhi.BufferUsageUniform) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage.Contains(rhi.BufferUsageStorage) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if usage.Contains(rhi.BufferUsageVertex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if usage.Contains(rhi.BufferUsageIndex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if usage.Contains(rhi.BufferUsageIndirect) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	}
	if usage.Contains(rhi.BufferUsageAccelerationStructure) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureStorageBitKhr)
	}
	if usage.Contains(rhi.BufferUsageAccelerationStructureBuildInput) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureBuildInputReadOnlyBitKhr)
	}
	if usage.Contains(rhi.BufferUsageShaderBindingTable) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageShaderBindingTableBitKhr)
	}
	return flags
}

// textureUsageToVk converts RHI texture usage flags to Vulkan image usage
// flags.
func textureUsageToVk(usage rhi.TextureUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlags

	if usage.Contains(rhi.TextureUsageTransferSrc) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if usage.Contains(rhi.TextureUsageTransferDst) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	if usage.Contains(rhi.TextureUsageSampled) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if usage.Contains(rhi.TextureUsageStorage) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if usage.Contains(rhi.TextureUsageColorAttachment) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if usage.Contains(rhi.TextureUsageDepthStencilAttachment) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	return flags
}

// textureDimensionToVkImageType converts a texture dimension to a Vulkan
// image type.
func textureDimensionToVkImageType(dim gputypes.TextureDimension) vk.ImageType {
	switch dim {
	case gputypes.TextureDimension1D:
		return vk.ImageType1d
	case gputypes.TextureDimension3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

func viewDimensionToVk(dim gputypes.TextureViewDimension) vk.ImageViewType {
	switch dim {
	case gputypes.TextureViewDimension1D:
		return vk.ImageViewType1d
	case gputypes.TextureViewDimension2DArray:
		return vk.ImageViewType2dArray
	case gputypes.TextureViewDimensionCube:
		return vk.ImageViewTypeCube
	case gputypes.TextureViewDimensionCubeArray:
		return vk.ImageViewTypeCubeArray
	case gputypes.TextureViewDimension3D:
		return vk.ImageViewType3d
	default:
		return vk.ImageViewType2d
	}
}

// textureFormatToVk converts a texture format to a Vulkan format.
func textureFormatToVk(format rhi.Format) vk.Format {
	if f, ok := textureFormatMap[format]; ok {
		return f
	}
	return vk.FormatUndefined
}

// textureFormatMap covers every format the host timeline can store.
var textureFormatMap = map[rhi.Format]vk.Format{
	gputypes.TextureFormatR8Unorm:              vk.FormatR8Unorm,
	gputypes.TextureFormatR8Uint:               vk.FormatR8Uint,
	gputypes.TextureFormatRG8Unorm:             vk.FormatR8g8Unorm,
	gputypes.TextureFormatR16Uint:              vk.FormatR16Uint,
	gputypes.TextureFormatR16Float:             vk.FormatR16Sfloat,
	gputypes.TextureFormatRG16Float:            vk.FormatR16g16Sfloat,
	gputypes.TextureFormatR32Uint:              vk.FormatR32Uint,
	gputypes.TextureFormatR32Sint:              vk.FormatR32Sint,
	gputypes.TextureFormatR32Float:             vk.FormatR32Sfloat,
	gputypes.TextureFormatRGBA8Unorm:           vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatBGRA8Unorm:           vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGB10A2Unorm:         vk.FormatA2b10g10r10UnormPack32,
	gputypes.TextureFormatRG32Float:            vk.FormatR32g32Sfloat,
	gputypes.TextureFormatRGBA16Float:          vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Uint:           vk.FormatR32g32b32a32Uint,
	gputypes.TextureFormatRGBA32Float:          vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatStencil8:             vk.FormatS8Uint,
	gputypes.TextureFormatDepth16Unorm:         vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          vk.FormatX8D24UnormPack32,
	gputypes.TextureFormatDepth24PlusStencil8:  vk.FormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:         vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth32FloatStencil8: vk.FormatD32SfloatS8Uint,
}

// aspectMask returns the image aspects of a format.
func aspectMask(format rhi.Format) vk.ImageAspectFlags {
	info, _ := rhi.LookupFormat(format)
	var flags vk.ImageAspectFlags
	if info.Depth {
		flags |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if info.Stencil {
		flags |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if flags == 0 {
		flags = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	return flags
}

// =============================================================================
// Samplers
// =============================================================================

func filterModeToVk(mode gputypes.FilterMode) vk.Filter {
	if mode == gputypes.FilterModeLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func mipmapFilterModeToVk(mode gputypes.MipmapFilterMode) vk.SamplerMipmapMode {
	if mode == gputypes.MipmapFilterModeLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func addressModeToVk(mode gputypes.AddressMode) vk.SamplerAddressMode {
	switch mode {
	case gputypes.AddressModeRepeat:
		return vk.SamplerAddressModeRepeat
	case gputypes.AddressModeMirrorRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	default:
		return vk.SamplerAddressModeClampToEdge
	}
}

func compareFunctionToVk(fn gputypes.CompareFunction) vk.CompareOp {
	switch fn {
	case gputypes.CompareFunctionNever:
		return vk.CompareOpNever
	case gputypes.CompareFunctionLess:
		return vk.CompareOpLess
	case gputypes.CompareFunctionEqual:
		return vk.CompareOpEqual
	case gputypes.CompareFunctionLessEqual:
		return vk.CompareOpLessOrEqual
	case gputypes.CompareFunctionGreater:
		return vk.CompareOpGreater
	case gputypes.CompareFunctionNotEqual:
		return vk.CompareOpNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	default:
		return vk.CompareOpAlways
	}
}

func boolToVk(b bool) vk.Bool32 {
	if b {
		return 1
	}
	return 0
}

// samplerCreateInfo converts a sampler description.
func samplerCreateInfo(desc *rhi.SamplerDesc) vk.SamplerCreateInfo {
	maxLod := desc.LodMaxClamp
	if maxLod == 0 {
		maxLod = 32
	}
	return vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filterModeToVk(desc.MagFilter),
		MinFilter:        filterModeToVk(desc.MinFilter),
		MipmapMode:       mipmapFilterModeToVk(desc.MipmapFilter),
		AddressModeU:     addressModeToVk(desc.AddressModeU),
		AddressModeV:     addressModeToVk(desc.AddressModeV),
		AddressModeW:     addressModeToVk(desc.AddressModeW),
		AnisotropyEnable: boolToVk(desc.MaxAnisotropy > 1),
		MaxAnisotropy:    float32(max(desc.MaxAnisotropy, 1)),
		CompareEnable:    boolToVk(desc.Compare != gputypes.CompareFunctionUndefined),
		CompareOp:        compareFunctionToVk(desc.Compare),
		MinLod:           desc.LodMinClamp,
		MaxLod:           maxLod,
		BorderColor:      vk.BorderColorFloatTransparentBlack,
	}
}

// =============================================================================
// Descriptors and shader stages
// =============================================================================

func descriptorTypeToVk(t rhi.DescriptorType) vk.DescriptorType {
	switch t {
	case rhi.DescriptorSampler:
		return vk.DescriptorTypeSampler
	case rhi.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case rhi.DescriptorReadOnlyStorageBuffer, rhi.DescriptorReadWriteStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case rhi.DescriptorSampledTexture:
		return vk.DescriptorTypeSampledImage
	case rhi.DescriptorReadOnlyStorageTexture, rhi.DescriptorReadWriteStorageTexture:
		return vk.DescriptorTypeStorageImage
	case rhi.DescriptorAccelerationStructure:
		return vk.DescriptorTypeAccelerationStructureKhr
	default:
		return vk.DescriptorTypeSampler
	}
}

// descriptorSize is the size of one descriptor in a descriptor buffer, as
// reported by a typical VK_EXT_descriptor_buffer implementation.
func descriptorSize(t rhi.DescriptorType) uint64 {
	switch t {
	case rhi.DescriptorSampledTexture, rhi.DescriptorReadOnlyStorageTexture,
		rhi.DescriptorReadWriteStorageTexture:
		return 32
	default:
		return 16
	}
}

var shaderStageBits = []struct {
	rhi rhi.ShaderStage
	vk  vk.ShaderStageFlagBits
}{
	{rhi.ShaderStageVertex, vk.ShaderStageVertexBit},
	{rhi.ShaderStageFragment, vk.ShaderStageFragmentBit},
	{rhi.ShaderStageCompute, vk.ShaderStageComputeBit},
	{rhi.ShaderStageRaygen, vk.ShaderStageRaygenBitKhr},
	{rhi.ShaderStageMiss, vk.ShaderStageMissBitKhr},
	{rhi.ShaderStageClosestHit, vk.ShaderStageClosestHitBitKhr},
	{rhi.ShaderStageAnyHit, vk.ShaderStageAnyHitBitKhr},
	{rhi.ShaderStageIntersection, vk.ShaderStageIntersectionBitKhr},
	{rhi.ShaderStageCallable, vk.ShaderStageCallableBitKhr},
}

// shaderStageToVk converts an RHI stage mask to Vulkan stage flags.
func shaderStageToVk(stages rhi.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for _, b := range shaderStageBits {
		if stages.Contains(b.rhi) {
			flags |= vk.ShaderStageFlags(b.vk)
		}
	}
	return flags
}

// queueFamily returns the queue family index of a queue type.
func queueFamily(q rhi.QueueType) uint32 { return uint32(q) }

// =============================================================================
// Fixed-function state
// =============================================================================

func primitiveTopologyToVk(topology gputypes.PrimitiveTopology) vk.PrimitiveTopology {
	switch topology {
	case gputypes.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func cullModeToVk(mode gputypes.CullMode) vk.CullModeFlags {
	switch mode {
	case gputypes.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gputypes.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

func frontFaceToVk(face gputypes.FrontFace) vk.FrontFace {
	if face == gputypes.FrontFaceCW {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func colorWriteMaskToVk(mask gputypes.ColorWriteMask) vk.ColorComponentFlags {
	var flags vk.ColorComponentFlags
	if mask&gputypes.ColorWriteMaskRed != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentRBit)
	}
	if mask&gputypes.ColorWriteMaskGreen != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentGBit)
	}
	if mask&gputypes.ColorWriteMaskBlue != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentBBit)
	}
	if mask&gputypes.ColorWriteMaskAlpha != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentABit)
	}
	return flags
}

func blendFactorToVk(factor gputypes.BlendFactor) vk.BlendFactor {
	switch factor {
	case gputypes.BlendFactorZero:
		return vk.BlendFactorZero
	case gputypes.BlendFactorSrc:
		return vk.BlendFactorSrcColor
	case gputypes.BlendFactorOneMinusSrc:
		return vk.BlendFactorOneMinusSrcColor
	case gputypes.BlendFactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case gputypes.BlendFactorDst:
		return vk.BlendFactorDstColor
	case gputypes.BlendFactorOneMinusDst:
		return vk.BlendFactorOneMinusDstColor
	case gputypes.BlendFactorDstAlpha:
		return vk.BlendFactorDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	default:
		return vk.BlendFactorOne
	}
}

func blendOperationToVk(op gputypes.BlendOperation) vk.BlendOp {
	switch op {
	case gputypes.BlendOperationSubtract:
		return vk.BlendOpSubtract
	case gputypes.BlendOperationReverseSubtract:
		return vk.BlendOpReverseSubtract
	case gputypes.BlendOperationMin:
		return vk.BlendOpMin
	case gputypes.BlendOperationMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

func colorBlendAttachmentToVk(target *gputypes.ColorTargetState) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{ColorWriteMask: colorWriteMaskToVk(target.WriteMask)}
	if b := target.Blend; b != nil {
		state.BlendEnable = 1
		state.SrcColorBlendFactor = blendFactorToVk(b.Color.SrcFactor)
		state.DstColorBlendFactor = blendFactorToVk(b.Color.DstFactor)
		state.ColorBlendOp = blendOperationToVk(b.Color.Operation)
		state.SrcAlphaBlendFactor = blendFactorToVk(b.Alpha.SrcFactor)
		state.DstAlphaBlendFactor = blendFactorToVk(b.Alpha.DstFactor)
		state.AlphaBlendOp = blendOperationToVk(b.Alpha.Operation)
	}
	return state
}
