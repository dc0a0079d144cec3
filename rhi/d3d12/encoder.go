package d3d12

import (
	"fmt"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// barrierType is D3D12_RESOURCE_BARRIER_TYPE.
type barrierType uint32

const (
	barrierTransition barrierType = 0
	barrierAliasing   barrierType = 1
	barrierUAV        barrierType = 2
)

// resourceBarrier is D3D12_RESOURCE_BARRIER. Resource is the *Buffer or
// *Texture the barrier applies to; nil for a global UAV barrier.
type resourceBarrier struct {
	Type        barrierType
	Resource    any
	Subresource uint32
	StateBefore resourceState
	StateAfter  resourceState
}

// CommandEncoder records into one ID3D12GraphicsCommandList4.
type CommandEncoder struct {
	devcore.Recorder
	dev *Device

	barriers [][]resourceBarrier // one entry per ResourceBarrier call
	heapsSet bool
}

// CreateCommandEncoder starts recording for queue.
func (d *Device) CreateCommandEncoder(queue rhi.QueueType) rhi.CommandEncoder {
	return &CommandEncoder{Recorder: devcore.NewRecorder(queue), dev: d}
}

func asBuffer(b rhi.Buffer) *Buffer {
	db, ok := b.(*Buffer)
	if !ok {
		panic(fmt.Sprintf("d3d12: buffer %T was not created by this backend", b))
	}
	return db
}

func asTexture(t rhi.Texture) *Texture {
	dt, ok := t.(*Texture)
	if !ok {
		panic(fmt.Sprintf("d3d12: texture %T was not created by this backend", t))
	}
	return dt
}

// PushLabel opens a PIX event region.
func (e *CommandEncoder) PushLabel(label string) {
	e.Recorder.PushLabel("BeginEvent", label)
}

// PopLabel closes the innermost event region.
func (e *CommandEncoder) PopLabel() {
	e.Recorder.PopLabel("EndEvent")
}

// transition appends the barrier moving one subresource from before to
// after. Equal states need nothing, except that consecutive unordered
// access still needs a UAV barrier.
func transition(out []resourceBarrier, res any, sub uint32, before, after resourceState) []resourceBarrier {
	if before == after {
		if after&stateUnorderedAccess != 0 {
			return append(out, resourceBarrier{Type: barrierUAV, Resource: res})
		}
		return out
	}
	return append(out, resourceBarrier{
		Type:        barrierTransition,
		Resource:    res,
		Subresource: sub,
		StateBefore: before,
		StateAfter:  after,
	})
}

// ownership resolves the target state of a barrier on this encoder's
// queue. Moving between queues decays to COMMON: the source queue releases
// into it and the destination queue acquires from it.
func (e *CommandEncoder) ownership(srcQueue, dstQueue rhi.QueueType, before, after resourceState) (resourceState, resourceState) {
	if srcQueue == dstQueue {
		return before, after
	}
	switch e.QueueType() {
	case srcQueue:
		return before, stateCommon
	case dstQueue:
		return stateCommon, after
	default:
		panic(fmt.Sprintf("d3d12: barrier from %v to %v recorded on %v", srcQueue, dstQueue, e.QueueType()))
	}
}

// ResourceBarriers records a single ResourceBarrier call. A source access
// of AccessNone is replaced by the tracked state of the resource.
// Textures whose range is in one state over every subresource are
// transitioned with D3D12_RESOURCE_BARRIER_ALL_SUBRESOURCES.
func (e *CommandEncoder) ResourceBarriers(buffers []rhi.BufferBarrier, textures []rhi.TextureBarrier) {
	var batch []resourceBarrier
	for i := range buffers {
		batch = e.bufferBarrier(&buffers[i], batch)
	}
	for i := range textures {
		batch = e.textureBarrier(&textures[i], batch)
	}
	if len(batch) == 0 {
		return
	}
	e.barriers = append(e.barriers, batch)
	e.Record("ResourceBarrier", nil)
}

func (e *CommandEncoder) bufferBarrier(b *rhi.BufferBarrier, out []resourceBarrier) []resourceBarrier {
	buf := asBuffer(b.Buffer)
	if buf.heapType != heapTypeDefault {
		// Upload and readback heaps never leave their initial state.
		return out
	}
	before := buf.currentState()
	if b.SrcAccessType != rhi.AccessNone {
		before = toD3D12BufferState(b.SrcAccessType)
	}
	after := toD3D12BufferState(b.DstAccessType)
	before, after = e.ownership(b.SrcQueue, b.DstQueue, before, after)
	buf.setState(after)
	return transition(out, buf, allSubresources, before, after)
}

func (e *CommandEncoder) textureBarrier(b *rhi.TextureBarrier, out []resourceBarrier) []resourceBarrier {
	tex := asTexture(b.Texture)
	desc := tex.Desc()
	baseLevel, levels, baseLayer, layers := b.SubresourceRange(desc)
	after := toD3D12TextureState(b.DstAccessType)
	whole := baseLevel == 0 && baseLayer == 0 && levels == desc.Levels && layers == desc.Layers()

	if whole {
		before, uniform := tex.uniformState()
		if b.SrcAccessType != rhi.AccessNone {
			before, uniform = toD3D12TextureState(b.SrcAccessType), true
		}
		if uniform {
			from, to := e.ownership(b.SrcQueue, b.DstQueue, before, after)
			out = transition(out, tex, allSubresources, from, to)
			for layer := range layers {
				for level := range levels {
					tex.setState(level, layer, to)
				}
			}
			return out
		}
	}

	for layer := baseLayer; layer < baseLayer+layers; layer++ {
		for level := baseLevel; level < baseLevel+levels; level++ {
			before := tex.currentState(level, layer)
			if b.SrcAccessType != rhi.AccessNone {
				before = toD3D12TextureState(b.SrcAccessType)
			}
			from, to := e.ownership(b.SrcQueue, b.DstQueue, before, after)
			out = transition(out, tex, tex.subresource(level, layer), from, to)
			tex.setState(level, layer, to)
		}
	}
	return out
}

// uavBarrier records a global UAV barrier.
func (e *CommandEncoder) uavBarrier() {
	e.barriers = append(e.barriers, []resourceBarrier{{Type: barrierUAV}})
	e.Record("ResourceBarrier", nil)
}

// =============================================================================
// Transfer
// =============================================================================

func (e *CommandEncoder) CopyBufferToBuffer(src, dst rhi.Buffer, desc rhi.BufferCopyDesc) {
	e.Record("CopyBufferRegion", devcore.CopyBufferOp(src, dst, desc))
}

func (e *CommandEncoder) CopyBufferToTexture(src rhi.Buffer, dst rhi.Texture, desc rhi.BufferTextureCopyDesc) {
	e.Record("CopyTextureRegion", devcore.CopyBufferToTextureOp(src, dst, desc))
}

func (e *CommandEncoder) CopyTextureToBuffer(src rhi.Texture, dst rhi.Buffer, desc rhi.BufferTextureCopyDesc) {
	e.Record("CopyTextureRegion", devcore.CopyTextureToBufferOp(src, dst, desc))
}

func (e *CommandEncoder) CopyTextureToTexture(src, dst rhi.Texture, desc rhi.TextureCopyDesc) {
	e.Record("CopyTextureRegion", devcore.CopyTextureOp(src, dst, desc))
}

// FillBuffer clears through an unordered access view of dst.
func (e *CommandEncoder) FillBuffer(dst rhi.Buffer, offset, size uint64, value uint32) {
	e.Record("ClearUnorderedAccessViewUint", devcore.FillBufferOp(dst, offset, size, value))
}

// BlitTexture has no native equivalent and runs as a compute dispatch
// sampling the source.
func (e *CommandEncoder) BlitTexture(desc rhi.BlitDesc) {
	e.Record("Dispatch", devcore.BlitOp(desc))
}

// GenerateMipmapLevel runs one reduction dispatch for every mode.
func (e *CommandEncoder) GenerateMipmapLevel(tex rhi.Texture, srcLevel uint32, mode rhi.MipmapMode) {
	e.Record("Dispatch", devcore.MipmapOp(tex, srcLevel, mode))
}

// =============================================================================
// Acceleration structures
// =============================================================================

// BuildBottomLevelAccelerationStructure records one build per desc.
// Post-build info is emitted after a UAV barrier.
func (e *CommandEncoder) BuildBottomLevelAccelerationStructure(descs []rhi.BottomLevelBuildDesc, emits []rhi.AccelerationStructureEmitData) {
	if len(descs) == 0 {
		return
	}
	structures := make([]rhi.AccelerationStructure, len(descs))
	for i := range descs {
		structures[i] = descs[i].Dst
		e.Record("BuildRaytracingAccelerationStructure", devcore.BuildBottomLevelOp(descs[i:i+1]))
	}
	e.emitPostbuildInfo(structures, emits)
}

// BuildTopLevelAccelerationStructure records one build per desc.
func (e *CommandEncoder) BuildTopLevelAccelerationStructure(descs []rhi.TopLevelBuildDesc, emits []rhi.AccelerationStructureEmitData) {
	if len(descs) == 0 {
		return
	}
	structures := make([]rhi.AccelerationStructure, len(descs))
	for i := range descs {
		structures[i] = descs[i].Dst
		e.Record("BuildRaytracingAccelerationStructure", devcore.BuildTopLevelOp(descs[i:i+1]))
	}
	e.emitPostbuildInfo(structures, emits)
}

func (e *CommandEncoder) emitPostbuildInfo(structures []rhi.AccelerationStructure, emits []rhi.AccelerationStructureEmitData) {
	op := devcore.EmitOp(structures, emits)
	if op == nil {
		return
	}
	e.uavBarrier()
	e.Record("EmitRaytracingAccelerationStructurePostbuildInfo", op)
}

// Finish closes the command list.
func (e *CommandEncoder) Finish() rhi.CommandBuffer {
	return e.Recorder.Finish()
}
