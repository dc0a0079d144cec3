package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BufferBarrier transitions a buffer range between accesses.
// A zero Size covers the whole buffer.
type BufferBarrier struct {
	Buffer        Buffer
	Offset        uint64
	Size          uint64
	SrcAccessType ResourceAccessType
	DstAccessType ResourceAccessType
	// SrcQueue and DstQueue differ when ownership moves between queues.
	SrcQueue QueueType
	DstQueue QueueType
}

// TextureBarrier transitions texture subresources between accesses.
// Zero NumLevels or NumLayers covers the remaining levels or layers.
type TextureBarrier struct {
	Texture       Texture
	BaseLevel     uint32
	NumLevels     uint32
	BaseLayer     uint32
	NumLayers     uint32
	SrcAccessType ResourceAccessType
	DstAccessType ResourceAccessType
	SrcQueue      QueueType
	DstQueue      QueueType
}

// SubresourceRange resolves the level and layer ranges against desc.
func (b *TextureBarrier) SubresourceRange(desc TextureDesc) (baseLevel, levels, baseLayer, layers uint32) {
	desc = desc.Normalized()
	levels = b.NumLevels
	if levels == 0 {
		levels = desc.Levels - min(b.BaseLevel, desc.Levels)
	}
	layers = b.NumLayers
	if layers == 0 {
		layers = desc.Layers() - min(b.BaseLayer, desc.Layers())
	}
	return b.BaseLevel, levels, b.BaseLayer, layers
}

// ColorAttachment is one render target of a render pass.
type ColorAttachment struct {
	Texture    Texture
	Level      uint32
	Layer      uint32
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor gputypes.Color
}

// DepthStencilAttachment is the depth/stencil target of a render pass.
type DepthStencilAttachment struct {
	Texture        Texture
	Level          uint32
	Layer          uint32
	DepthLoadOp    gputypes.LoadOp
	DepthStoreOp   gputypes.StoreOp
	StencilLoadOp  gputypes.LoadOp
	StencilStoreOp gputypes.StoreOp
	ClearDepth     float32
	ClearStencil   uint32
	ReadOnly       bool
}

// RenderPassDesc describes the targets of a render pass.
type RenderPassDesc struct {
	Label        string
	Colors       []ColorAttachment
	DepthStencil *DepthStencilAttachment
}

// Extent returns the render area, taken from the first attachment.
func (d *RenderPassDesc) Extent() gputypes.Extent3D {
	if len(d.Colors) > 0 && d.Colors[0].Texture != nil {
		return d.Colors[0].Texture.Desc().LevelExtent(d.Colors[0].Level)
	}
	if d.DepthStencil != nil && d.DepthStencil.Texture != nil {
		return d.DepthStencil.Texture.Desc().LevelExtent(d.DepthStencil.Level)
	}
	return gputypes.Extent3D{}
}

// BufferCopyDesc describes a buffer to buffer copy.
type BufferCopyDesc struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferTextureCopyDesc describes a copy between a buffer and one texture
// subresource region. BytesPerRow of zero means tightly packed.
type BufferTextureCopyDesc struct {
	BufferOffset uint64
	BytesPerRow  uint32
	RowsPerImage uint32
	Level        uint32
	Layer        uint32
	Region       Region
}

// TextureCopyDesc describes a texture to texture copy.
type TextureCopyDesc struct {
	SrcLevel  uint32
	SrcLayer  uint32
	SrcOffset gputypes.Origin3D
	DstLevel  uint32
	DstLayer  uint32
	DstOffset gputypes.Origin3D
	// Extent of zero copies the whole source level.
	Extent gputypes.Extent3D
}

// BlitDesc describes a scaled copy between texture regions.
type BlitDesc struct {
	Src       Texture
	SrcLevel  uint32
	SrcLayer  uint32
	SrcRegion Region
	Dst       Texture
	DstLevel  uint32
	DstLayer  uint32
	DstRegion Region
	Filter    gputypes.FilterMode
}

// MipmapMode selects how one mip level is reduced into the next.
type MipmapMode uint8

const (
	MipmapAverage MipmapMode = iota
	MipmapMin
	MipmapMax
)

func (m MipmapMode) String() string {
	switch m {
	case MipmapAverage:
		return "average"
	case MipmapMin:
		return "min"
	case MipmapMax:
		return "max"
	default:
		return fmt.Sprintf("MipmapMode(%d)", uint8(m))
	}
}

// Viewport is a render viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Scissor is a scissor rectangle.
type Scissor struct {
	X, Y          int32
	Width, Height uint32
}

// VertexBufferBinding binds one vertex buffer slot.
type VertexBufferBinding struct {
	Buffer Buffer
	Offset uint64
}

// CommandBuffer is a finished recording ready for submission.
type CommandBuffer interface {
	QueueType() QueueType
	// Trace lists the recorded native commands in order.
	Trace() []string
}

// CommandEncoder records commands outside of passes.
//
// While a sub-encoder returned by a Begin method is alive, the encoder is
// invalid; any recording method panics until the sub-encoder's End is
// called.
type CommandEncoder interface {
	QueueType() QueueType
	Valid() bool

	PushLabel(label string)
	PopLabel()

	ResourceBarriers(buffers []BufferBarrier, textures []TextureBarrier)

	CopyBufferToBuffer(src, dst Buffer, desc BufferCopyDesc)
	CopyBufferToTexture(src Buffer, dst Texture, desc BufferTextureCopyDesc)
	CopyTextureToBuffer(src Texture, dst Buffer, desc BufferTextureCopyDesc)
	CopyTextureToTexture(src, dst Texture, desc TextureCopyDesc)
	FillBuffer(dst Buffer, offset, size uint64, value uint32)
	BlitTexture(desc BlitDesc)
	// GenerateMipmapLevel writes level srcLevel+1 of tex from srcLevel.
	GenerateMipmapLevel(tex Texture, srcLevel uint32, mode MipmapMode)

	BuildBottomLevelAccelerationStructure(descs []BottomLevelBuildDesc, emits []AccelerationStructureEmitData)
	BuildTopLevelAccelerationStructure(descs []TopLevelBuildDesc, emits []AccelerationStructureEmitData)

	BeginRenderPass(desc RenderPassDesc) GraphicsCommandEncoder
	BeginComputePass(label string) ComputeCommandEncoder
	BeginRaytracingPass(label string) RaytracingCommandEncoder

	// Finish ends recording. The encoder must not be used afterwards.
	Finish() CommandBuffer
}

// GraphicsCommandEncoder records commands inside a render pass.
type GraphicsCommandEncoder interface {
	SetPipeline(p GraphicsPipeline)
	// SetDescriptors binds groups starting at fromGroupIndex.
	SetDescriptors(fromGroupIndex uint32, handles []DescriptorHandle)
	PushConstants(data []byte)
	SetViewports(viewports []Viewport)
	SetScissors(scissors []Scissor)
	SetVertexBuffers(firstSlot uint32, bindings []VertexBufferBinding)
	SetIndexBuffer(buf Buffer, offset uint64, format gputypes.IndexFormat)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	DrawIndirect(buf Buffer, offset uint64, drawCount, stride uint32)
	// End closes the pass and restores the parent encoder.
	End()
}

// ComputeCommandEncoder records commands inside a compute pass.
type ComputeCommandEncoder interface {
	SetPipeline(p ComputePipeline)
	SetDescriptors(fromGroupIndex uint32, handles []DescriptorHandle)
	PushConstants(data []byte)
	Dispatch(x, y, z uint32)
	DispatchIndirect(buf Buffer, offset uint64)
	End()
}

// ShaderBindingTableRegion addresses one table of an SBT buffer.
type ShaderBindingTableRegion struct {
	Buffer Buffer
	Offset uint64
	Stride uint64
	Size   uint64
}

// ShaderBindingTable groups the four regions used by DispatchRays.
type ShaderBindingTable struct {
	Raygen   ShaderBindingTableRegion
	Miss     ShaderBindingTableRegion
	HitGroup ShaderBindingTableRegion
	Callable ShaderBindingTableRegion
}

// RaytracingCommandEncoder records commands inside a ray tracing pass.
type RaytracingCommandEncoder interface {
	SetPipeline(p RaytracingPipeline)
	SetDescriptors(fromGroupIndex uint32, handles []DescriptorHandle)
	PushConstants(data []byte)
	DispatchRays(sbt ShaderBindingTable, width, height, depth uint32)
	End()
}
