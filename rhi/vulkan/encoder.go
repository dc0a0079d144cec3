//go:build !(js && wasm)

package vulkan

import (
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// barrierBatch is the argument list of one vkCmdPipelineBarrier.
type barrierBatch struct {
	SrcStages vk.PipelineStageFlags
	DstStages vk.PipelineStageFlags
	Memory    []vk.MemoryBarrier
	Buffers   []vk.BufferMemoryBarrier
	Images    []vk.ImageMemoryBarrier
}

// CommandEncoder records into one VkCommandBuffer.
type CommandEncoder struct {
	devcore.Recorder
	dev *Device

	barriers []barrierBatch
}

// CreateCommandEncoder starts recording for queue.
func (d *Device) CreateCommandEncoder(queue rhi.QueueType) rhi.CommandEncoder {
	return &CommandEncoder{Recorder: devcore.NewRecorder(queue), dev: d}
}

func asBuffer(b rhi.Buffer) *Buffer {
	vb, ok := b.(*Buffer)
	if !ok {
		panic(fmt.Sprintf("vulkan: buffer %T was not created by this backend", b))
	}
	return vb
}

func asTexture(t rhi.Texture) *Texture {
	vt, ok := t.(*Texture)
	if !ok {
		panic(fmt.Sprintf("vulkan: texture %T was not created by this backend", t))
	}
	return vt
}

// queueFamilies returns the ownership transfer indices of a barrier.
func queueFamilies(src, dst rhi.QueueType) (uint32, uint32) {
	if src == dst {
		return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
	}
	return queueFamily(src), queueFamily(dst)
}

// PushLabel opens a debug utils label region.
func (e *CommandEncoder) PushLabel(label string) {
	e.Recorder.PushLabel("vkCmdBeginDebugUtilsLabelEXT", label)
}

// PopLabel closes the innermost label region.
func (e *CommandEncoder) PopLabel() {
	e.Recorder.PopLabel("vkCmdEndDebugUtilsLabelEXT")
}

// ResourceBarriers records a single vkCmdPipelineBarrier. A source access
// of AccessNone is replaced by the tracked access of the resource, and
// texture barriers are split where subresources were tracked differently.
func (e *CommandEncoder) ResourceBarriers(buffers []rhi.BufferBarrier, textures []rhi.TextureBarrier) {
	if len(buffers) == 0 && len(textures) == 0 {
		return
	}
	var batch barrierBatch
	for i := range buffers {
		e.bufferBarrier(&buffers[i], &batch)
	}
	for i := range textures {
		e.textureBarrier(&textures[i], &batch)
	}
	e.barriers = append(e.barriers, batch)
	e.Record("vkCmdPipelineBarrier", nil)
}

func (e *CommandEncoder) bufferBarrier(b *rhi.BufferBarrier, batch *barrierBatch) {
	buf := asBuffer(b.Buffer)
	srcAccess := b.SrcAccessType
	if srcAccess == rhi.AccessNone {
		srcAccess = buf.trackedAccess()
	}
	src := toVkBufferAccess(srcAccess, true)
	dst := toVkBufferAccess(b.DstAccessType, false)
	srcFamily, dstFamily := queueFamilies(b.SrcQueue, b.DstQueue)
	size := vk.DeviceSize(vk.WholeSize)
	if b.Size != 0 {
		size = vk.DeviceSize(b.Size)
	}
	batch.SrcStages |= src.Stages
	batch.DstStages |= dst.Stages
	batch.Buffers = append(batch.Buffers, vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       src.Access,
		DstAccessMask:       dst.Access,
		SrcQueueFamilyIndex: srcFamily,
		DstQueueFamilyIndex: dstFamily,
		Buffer:              buf.handle,
		Offset:              vk.DeviceSize(b.Offset),
		Size:                size,
	})
	buf.setAccess(b.DstAccessType)
}

func (e *CommandEncoder) textureBarrier(b *rhi.TextureBarrier, batch *barrierBatch) {
	tex := asTexture(b.Texture)
	baseLevel, levels, baseLayer, layers := b.SubresourceRange(tex.Desc())
	dst := toVkImageAccess(b.DstAccessType, false)
	srcFamily, dstFamily := queueFamilies(b.SrcQueue, b.DstQueue)
	aspect := aspectMask(tex.Desc().Format)
	batch.DstStages |= dst.Stages

	emit := func(srcAccess rhi.ResourceAccessType, level, levelCount, layer, layerCount uint32) {
		src := toVkImageAccess(srcAccess, true)
		batch.SrcStages |= src.Stages
		batch.Images = append(batch.Images, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       src.Access,
			DstAccessMask:       dst.Access,
			OldLayout:           src.Layout,
			NewLayout:           dst.Layout,
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			Image:               tex.handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspect,
				BaseMipLevel:   level,
				LevelCount:     levelCount,
				BaseArrayLayer: layer,
				LayerCount:     layerCount,
			},
		})
	}

	if b.SrcAccessType != rhi.AccessNone {
		emit(b.SrcAccessType, baseLevel, levels, baseLayer, layers)
	} else {
		for layer := baseLayer; layer < baseLayer+layers; layer++ {
			for level := baseLevel; level < baseLevel+levels; {
				state := tex.trackedAccess(level, layer)
				run := uint32(1)
				for level+run < baseLevel+levels && tex.trackedAccess(level+run, layer) == state {
					run++
				}
				emit(state, level, run, layer, 1)
				level += run
			}
		}
	}
	for layer := baseLayer; layer < baseLayer+layers; layer++ {
		for level := baseLevel; level < baseLevel+levels; level++ {
			tex.setAccess(level, layer, b.DstAccessType)
		}
	}
}

// =============================================================================
// Transfer
// =============================================================================

func (e *CommandEncoder) CopyBufferToBuffer(src, dst rhi.Buffer, desc rhi.BufferCopyDesc) {
	e.Record("vkCmdCopyBuffer", devcore.CopyBufferOp(src, dst, desc))
}

func (e *CommandEncoder) CopyBufferToTexture(src rhi.Buffer, dst rhi.Texture, desc rhi.BufferTextureCopyDesc) {
	e.Record("vkCmdCopyBufferToImage", devcore.CopyBufferToTextureOp(src, dst, desc))
}

func (e *CommandEncoder) CopyTextureToBuffer(src rhi.Texture, dst rhi.Buffer, desc rhi.BufferTextureCopyDesc) {
	e.Record("vkCmdCopyImageToBuffer", devcore.CopyTextureToBufferOp(src, dst, desc))
}

func (e *CommandEncoder) CopyTextureToTexture(src, dst rhi.Texture, desc rhi.TextureCopyDesc) {
	e.Record("vkCmdCopyImage", devcore.CopyTextureOp(src, dst, desc))
}

func (e *CommandEncoder) FillBuffer(dst rhi.Buffer, offset, size uint64, value uint32) {
	e.Record("vkCmdFillBuffer", devcore.FillBufferOp(dst, offset, size, value))
}

// BlitTexture records vkCmdBlitImage. Both textures must already be in
// transfer layouts.
func (e *CommandEncoder) BlitTexture(desc rhi.BlitDesc) {
	e.Record("vkCmdBlitImage", devcore.BlitOp(desc))
}

// GenerateMipmapLevel averages with a linear blit. Min and max reductions
// have no blit filter and run as a compute dispatch.
func (e *CommandEncoder) GenerateMipmapLevel(tex rhi.Texture, srcLevel uint32, mode rhi.MipmapMode) {
	name := "vkCmdBlitImage"
	if mode != rhi.MipmapAverage {
		name = "vkCmdDispatch"
	}
	e.Record(name, devcore.MipmapOp(tex, srcLevel, mode))
}

// =============================================================================
// Acceleration structures
// =============================================================================

// BuildBottomLevelAccelerationStructure records one batched build. When
// properties are requested they are written after a build barrier by one
// batched query.
func (e *CommandEncoder) BuildBottomLevelAccelerationStructure(descs []rhi.BottomLevelBuildDesc, emits []rhi.AccelerationStructureEmitData) {
	if len(descs) == 0 {
		return
	}
	e.Record("vkCmdBuildAccelerationStructuresKHR", devcore.BuildBottomLevelOp(descs))
	structures := make([]rhi.AccelerationStructure, len(descs))
	for i := range descs {
		structures[i] = descs[i].Dst
	}
	e.emitProperties(structures, emits)
}

// BuildTopLevelAccelerationStructure records one batched build.
func (e *CommandEncoder) BuildTopLevelAccelerationStructure(descs []rhi.TopLevelBuildDesc, emits []rhi.AccelerationStructureEmitData) {
	if len(descs) == 0 {
		return
	}
	e.Record("vkCmdBuildAccelerationStructuresKHR", devcore.BuildTopLevelOp(descs))
	structures := make([]rhi.AccelerationStructure, len(descs))
	for i := range descs {
		structures[i] = descs[i].Dst
	}
	e.emitProperties(structures, emits)
}

func (e *CommandEncoder) emitProperties(structures []rhi.AccelerationStructure, emits []rhi.AccelerationStructureEmitData) {
	op := devcore.EmitOp(structures, emits)
	if op == nil {
		return
	}
	build := toVkAccess(rhi.AccessAccelerationStructureBuildWrite, true)
	read := toVkAccess(rhi.AccessAccelerationStructureBuildRead, false)
	e.barriers = append(e.barriers, barrierBatch{
		SrcStages: build.Stages,
		DstStages: read.Stages,
		Memory: []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: build.Access,
			DstAccessMask: read.Access,
		}},
	})
	e.Record("vkCmdPipelineBarrier", nil)
	e.Record("vkCmdWriteAccelerationStructuresPropertiesKHR", op)
}

// Finish ends recording.
func (e *CommandEncoder) Finish() rhi.CommandBuffer {
	return e.Recorder.Finish()
}
