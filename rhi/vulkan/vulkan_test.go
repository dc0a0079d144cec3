//go:build !(js && wasm)

package vulkan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
	"github.com/hack-pad/hackpadfs/mem"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

func newTestDevice(t *testing.T, desc rhi.DeviceDesc) *Device {
	t.Helper()
	desc.Logger = slog.New(slog.DiscardHandler)
	d, err := New(desc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Destroy() })
	return d
}

// spirv returns a minimal module header followed by seed, which is enough
// for the backend to accept it as SPIR-V.
func spirv(seed byte) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b, spirvMagic)
	binary.LittleEndian.PutUint32(b[4:], 0x00010500)
	b[20] = seed
	return b
}

func submitAndWait(t *testing.T, d *Device, enc rhi.CommandEncoder) {
	t.Helper()
	fence := d.CreateFence()
	if err := d.Queue(enc.QueueType()).Submit([]rhi.CommandBuffer{enc.Finish()}, nil, nil, fence); err != nil {
		t.Fatal(err)
	}
	if !fence.Wait(5 * time.Second) {
		t.Fatal("submission did not complete")
	}
}

func TestRegisteredBackend(t *testing.T) {
	dev, err := rhi.CreateDevice(rhi.DeviceDesc{Backend: rhi.BackendVulkan, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Destroy()
	if dev.Backend() != rhi.BackendVulkan {
		t.Fatalf("Backend() = %v", dev.Backend())
	}
	if _, ok := dev.(*Device); !ok {
		t.Fatalf("CreateDevice returned %T", dev)
	}
	p := dev.Properties()
	if p.ShaderGroupHandleSize != 32 || p.ConstantBufferAlignment != constantBufferAlignment {
		t.Errorf("Properties() = %+v", p)
	}
}

// =============================================================================
// Access mapping
// =============================================================================

func TestImageLayout(t *testing.T) {
	tests := []struct {
		access rhi.ResourceAccessType
		want   vk.ImageLayout
	}{
		{rhi.AccessNone, vk.ImageLayoutUndefined},
		{rhi.AccessColorAttachmentWrite, vk.ImageLayoutColorAttachmentOptimal},
		{rhi.AccessColorAttachmentRead | rhi.AccessColorAttachmentWrite, vk.ImageLayoutColorAttachmentOptimal},
		{rhi.AccessTransferWrite, vk.ImageLayoutTransferDstOptimal},
		{rhi.AccessTransferRead, vk.ImageLayoutTransferSrcOptimal},
		{rhi.AccessSampledTextureRead, vk.ImageLayoutShaderReadOnlyOptimal},
		{rhi.AccessDepthStencilAttachmentRead | rhi.AccessDepthStencilAttachmentWrite, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{rhi.AccessDepthStencilAttachmentRead | rhi.AccessSampledTextureRead, vk.ImageLayoutDepthStencilReadOnlyOptimal},
		{rhi.AccessSampledTextureRead | rhi.AccessStorageWrite, vk.ImageLayoutGeneral},
		{rhi.AccessPresent, vk.ImageLayoutPresentSrcKhr},
	}
	for _, tt := range tests {
		if got := imageLayout(tt.access); got != tt.want {
			t.Errorf("imageLayout(%v) = %v, want %v", tt.access, got, tt.want)
		}
	}
}

func TestAccessIsUnionOfBits(t *testing.T) {
	a := toVkAccess(rhi.AccessVertexBufferRead, false)
	b := toVkAccess(rhi.AccessUniformBufferRead, false)
	both := toVkAccess(rhi.AccessVertexBufferRead|rhi.AccessUniformBufferRead, false)
	if both.Access != a.Access|b.Access || both.Stages != a.Stages|b.Stages {
		t.Errorf("union = %+v, want access %v stages %v", both, a.Access|b.Access, a.Stages|b.Stages)
	}
	if src := toVkAccess(rhi.AccessNone, true); src.Stages != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("none as source = %+v", src)
	}
}

// =============================================================================
// Barriers
// =============================================================================

func TestBarrierFromTrackedState(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	tex, err := d.CreateTexture(rhi.TextureDesc{
		Label:  "mips",
		Extent: gputypes.Extent3D{Width: 8, Height: 8},
		Levels: 3,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  rhi.TextureUsageSampled | rhi.TextureUsageTransferDst,
	})
	if err != nil {
		t.Fatal(err)
	}
	enc := d.CreateCommandEncoder(rhi.QueueGraphics).(*CommandEncoder)
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{
		Texture: tex, NumLevels: 1, DstAccessType: rhi.AccessTransferWrite,
	}})
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{
		Texture: tex, DstAccessType: rhi.AccessSampledTextureRead,
	}})
	enc.Finish()

	if len(enc.barriers) != 2 {
		t.Fatalf("recorded %d barrier batches, want 2", len(enc.barriers))
	}
	images := enc.barriers[1].Images
	if len(images) != 2 {
		t.Fatalf("second batch has %d image barriers, want 2 runs", len(images))
	}
	if images[0].OldLayout != vk.ImageLayoutTransferDstOptimal || images[0].SubresourceRange.LevelCount != 1 {
		t.Errorf("level 0 barrier = %+v", images[0])
	}
	if images[1].OldLayout != vk.ImageLayoutUndefined || images[1].SubresourceRange.BaseMipLevel != 1 ||
		images[1].SubresourceRange.LevelCount != 2 {
		t.Errorf("levels 1-2 barrier = %+v", images[1])
	}
	for _, b := range images {
		if b.NewLayout != vk.ImageLayoutShaderReadOnlyOptimal {
			t.Errorf("new layout = %v", b.NewLayout)
		}
	}
	if got := tex.(*Texture).Layout(2, 0); got != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("tracked layout = %v", got)
	}
}

func TestBarrierQueueOwnership(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	buf, err := d.CreateBuffer(rhi.BufferDesc{Size: 64, Usage: rhi.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	enc := d.CreateCommandEncoder(rhi.QueueGraphics).(*CommandEncoder)
	enc.ResourceBarriers([]rhi.BufferBarrier{
		{Buffer: buf, SrcAccessType: rhi.AccessStorageWrite, DstAccessType: rhi.AccessStorageRead},
		{Buffer: buf, SrcAccessType: rhi.AccessStorageRead, DstAccessType: rhi.AccessStorageRead,
			SrcQueue: rhi.QueueGraphics, DstQueue: rhi.QueueCompute},
	}, nil)
	enc.Finish()

	got := enc.barriers[0].Buffers
	if got[0].SrcQueueFamilyIndex != vk.QueueFamilyIgnored || got[0].DstQueueFamilyIndex != vk.QueueFamilyIgnored {
		t.Errorf("same queue barrier transfers ownership: %+v", got[0])
	}
	if got[1].SrcQueueFamilyIndex != queueFamily(rhi.QueueGraphics) || got[1].DstQueueFamilyIndex != queueFamily(rhi.QueueCompute) {
		t.Errorf("ownership transfer = %d -> %d", got[1].SrcQueueFamilyIndex, got[1].DstQueueFamilyIndex)
	}
	if got[0].Size != vk.DeviceSize(vk.WholeSize) {
		t.Errorf("zero size barrier covers %d bytes", got[0].Size)
	}
}

// =============================================================================
// Recording and submission
// =============================================================================

func TestRenderPassClearReadback(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	tex, err := d.CreateTexture(rhi.TextureDesc{
		Label:  "target",
		Extent: gputypes.Extent3D{Width: 4, Height: 4},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  rhi.TextureUsageColorAttachment | rhi.TextureUsageTransferSrc,
	})
	if err != nil {
		t.Fatal(err)
	}
	readback, err := d.CreateBuffer(rhi.BufferDesc{
		Size: 4 * 4 * 4, Usage: rhi.BufferUsageTransferDst, MemoryProperty: rhi.MemoryGpuToCpu,
	})
	if err != nil {
		t.Fatal(err)
	}

	enc := d.CreateCommandEncoder(rhi.QueueGraphics)
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessColorAttachmentWrite}})
	pass := enc.BeginRenderPass(rhi.RenderPassDesc{
		Label: "clear",
		Colors: []rhi.ColorAttachment{{
			Texture: tex, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore,
			ClearColor: gputypes.Color{R: 1, A: 1},
		}},
	})
	if enc.Valid() {
		t.Fatal("encoder valid inside a render pass")
	}
	pass.End()
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessTransferRead}})
	enc.CopyTextureToBuffer(tex, readback, rhi.BufferTextureCopyDesc{})
	submitAndWait(t, d, enc)

	want := bytes.Repeat([]byte{255, 0, 0, 255}, 16)
	if got := readback.Map()[:len(want)]; !bytes.Equal(got, want) {
		t.Errorf("readback = %v", got)
	}
	readback.Unmap()
}

func TestCommandTrace(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	tex, _ := d.CreateTexture(rhi.TextureDesc{
		Extent: gputypes.Extent3D{Width: 4, Height: 4},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  rhi.TextureUsageColorAttachment,
	})
	enc := d.CreateCommandEncoder(rhi.QueueGraphics)
	enc.PushLabel("frame")
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessColorAttachmentWrite}})
	pass := enc.BeginRenderPass(rhi.RenderPassDesc{Colors: []rhi.ColorAttachment{{Texture: tex, LoadOp: gputypes.LoadOpLoad}}})
	pass.SetViewports([]rhi.Viewport{{Width: 4, Height: 4, MaxDepth: 1}})
	pass.End()
	cp := enc.BeginComputePass("")
	cp.End()
	enc.PopLabel()
	got := enc.Finish().Trace()
	want := []string{
		"vkCmdBeginDebugUtilsLabelEXT(frame)",
		"vkCmdPipelineBarrier",
		"vkCmdBeginRendering",
		"vkCmdSetViewport",
		"vkCmdEndRendering",
		"vkCmdEndDebugUtilsLabelEXT",
	}
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestViewportFlipsY(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	tex, _ := d.CreateTexture(rhi.TextureDesc{
		Extent: gputypes.Extent3D{Width: 4, Height: 4},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  rhi.TextureUsageColorAttachment,
	})
	enc := d.CreateCommandEncoder(rhi.QueueGraphics)
	pass := enc.BeginRenderPass(rhi.RenderPassDesc{Colors: []rhi.ColorAttachment{{Texture: tex}}}).(*GraphicsEncoder)
	pass.SetViewports([]rhi.Viewport{{X: 0, Y: 10, Width: 100, Height: 50}})
	pass.End()
	enc.Finish()
	if v := pass.viewports[0]; v.Y != 60 || v.Height != -50 {
		t.Errorf("viewport = %+v", v)
	}
}

func TestPassInvalidatesEncoder(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	buf, _ := d.CreateBuffer(rhi.BufferDesc{Size: 16, Usage: rhi.BufferUsageTransferDst})
	enc := d.CreateCommandEncoder(rhi.QueueCompute)
	cp := enc.BeginComputePass("blur")
	func() {
		defer func() {
			if recover() == nil {
				t.Error("FillBuffer inside a compute pass did not panic")
			}
		}()
		enc.FillBuffer(buf, 0, 16, 0)
	}()
	cp.End()
	enc.FillBuffer(buf, 0, 16, 0)
	got := enc.Finish().Trace()
	if len(got) != 3 || got[0] != "vkCmdBeginDebugUtilsLabelEXT(blur)" || got[2] != "vkCmdFillBuffer" {
		t.Errorf("trace = %v", got)
	}
}

// =============================================================================
// Pipelines
// =============================================================================

func computeDesc(seed byte) rhi.ComputePipelineDesc {
	return rhi.ComputePipelineDesc{
		Label: "cs",
		Layout: rhi.PipelineLayoutDesc{
			BindGroups: []rhi.BindGroupLayout{{
				{Type: rhi.DescriptorReadWriteStorageTexture, Visibility: rhi.ShaderStageCompute},
			}},
			PushConstants: &rhi.PushConstantsDesc{Size: 16, Visibility: rhi.ShaderStageCompute},
		},
		Compute: rhi.NewShaderModule(rhi.ShaderStageCompute, "main", spirv(seed)),
	}
}

func TestComputePipelineIsCached(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	p1, err := d.CreateComputePipeline(computeDesc(1))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := d.CreateComputePipeline(computeDesc(1))
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("equal descriptions produced different pipelines")
	}
	p3, err := d.CreateComputePipeline(computeDesc(2))
	if err != nil {
		t.Fatal(err)
	}
	if p3 == p1 {
		t.Error("different shaders share a pipeline")
	}
	if s := d.PipelineCacheStats(); s.Entries != 2 || s.Misses != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPipelineValidation(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})

	bad := computeDesc(1)
	bad.Compute = rhi.NewShaderModule(rhi.ShaderStageCompute, "main", []byte("DXBC not spirv"))
	if _, err := d.CreateComputePipeline(bad); !errors.Is(err, rhi.ErrInvalidDesc) {
		t.Errorf("non SPIR-V binary: err = %v", err)
	}

	dup := computeDesc(1)
	dup.Layout.BindGroups[0] = append(dup.Layout.BindGroups[0], dup.Layout.BindGroups[0][0])
	if _, err := d.CreateComputePipeline(dup); !errors.Is(err, rhi.ErrPipelineLayout) {
		t.Errorf("duplicate binding: err = %v", err)
	}

	big := computeDesc(1)
	big.Layout.PushConstants.Size = 512
	if _, err := d.CreateComputePipeline(big); !errors.Is(err, rhi.ErrPipelineLayout) {
		t.Errorf("oversized push constants: err = %v", err)
	}
}

func TestPipelineLayoutSets(t *testing.T) {
	l, err := newPipelineLayout(&rhi.PipelineLayoutDesc{
		BindGroups: []rhi.BindGroupLayout{
			{{Type: rhi.DescriptorUniformBuffer, Binding: 0, Visibility: rhi.ShaderStageAllGraphics}},
			{{Type: rhi.DescriptorSampledTexture, Binding: 0, Count: 4, Visibility: rhi.ShaderStageFragment}},
		},
		StaticSamplers: []rhi.StaticSampler{{Binding: 0, Visibility: rhi.ShaderStageFragment}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if l.NumSets() != 3 || l.samplerSet != 2 {
		t.Fatalf("sets = %d, sampler set = %d", l.NumSets(), l.samplerSet)
	}
	if b := l.setLayouts[1][0]; b.DescriptorCount != 4 || b.DescriptorType != vk.DescriptorTypeSampledImage {
		t.Errorf("texture binding = %+v", b)
	}
}

func TestShaderHandles(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	module := func(stage rhi.ShaderStage, seed byte) *rhi.ShaderModule {
		return rhi.NewShaderModule(stage, "main", spirv(seed))
	}
	p, err := d.CreateRaytracingPipeline(rhi.RaytracingPipelineDesc{
		Raygen:    module(rhi.ShaderStageRaygen, 1),
		Miss:      []*rhi.ShaderModule{module(rhi.ShaderStageMiss, 2), module(rhi.ShaderStageMiss, 3)},
		HitGroups: []rhi.HitGroup{{ClosestHit: module(rhi.ShaderStageClosestHit, 4)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	all := make([]byte, 4*shaderGroupHandleSize)
	for i, tbl := range []struct {
		t     rhi.ShaderBindingTableType
		index uint32
	}{{rhi.SBTRaygen, 0}, {rhi.SBTMiss, 0}, {rhi.SBTMiss, 1}, {rhi.SBTHitGroup, 0}} {
		if err := p.GetShaderHandle(tbl.t, tbl.index, 1, all[i*shaderGroupHandleSize:]); err != nil {
			t.Fatal(err)
		}
	}
	misses := make([]byte, 2*shaderGroupHandleSize)
	if err := p.GetShaderHandle(rhi.SBTMiss, 0, 2, misses); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(misses, all[shaderGroupHandleSize:3*shaderGroupHandleSize]) {
		t.Error("batched miss handles differ from single lookups")
	}
	if bytes.Equal(all[:shaderGroupHandleSize], all[shaderGroupHandleSize:2*shaderGroupHandleSize]) {
		t.Error("raygen and miss share a handle")
	}
	if err := p.GetShaderHandle(rhi.SBTHitGroup, 1, 1, misses); !errors.Is(err, rhi.ErrInvalidDesc) {
		t.Errorf("out of range hit group: err = %v", err)
	}
}

func TestPipelineCachePersists(t *testing.T) {
	fsys, err := mem.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	desc := rhi.DeviceDesc{FileSystem: rhi.NewHackpadFileSystem(fsys), Logger: slog.New(slog.DiscardHandler)}

	first, err := New(desc)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.InitializePipelineCacheFrom("pipelines.bin"); err != nil {
		t.Fatal(err)
	}
	if _, err := first.CreateComputePipeline(computeDesc(7)); err != nil {
		t.Fatal(err)
	}
	if err := first.Destroy(); err != nil {
		t.Fatal(err)
	}

	second, err := New(desc)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Destroy()
	if err := second.InitializePipelineCacheFrom("pipelines.bin"); err != nil {
		t.Fatal(err)
	}
	if _, err := second.CreateComputePipeline(computeDesc(7)); err != nil {
		t.Fatal(err)
	}
	if s := second.PipelineCacheStats(); s.Entries != 1 || s.Hits != 1 || s.Misses != 0 {
		t.Errorf("stats after reload = %+v", s)
	}
}

// =============================================================================
// Descriptor heaps
// =============================================================================

func TestDescriptorHeapStrategies(t *testing.T) {
	layout := rhi.BindGroupLayout{
		{Type: rhi.DescriptorUniformBuffer},
		{Type: rhi.DescriptorSampledTexture},
	}

	pooled := newTestDevice(t, rhi.DeviceDesc{})
	h, err := pooled.CreateDescriptorHeap(rhi.DescriptorHeapDesc{Size: 8, ShaderVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := h.(*DescriptorPoolHeap); !ok || h.Strategy() != rhi.StrategyDescriptorTable {
		t.Fatalf("visible heap = %T", h)
	}
	if _, err := h.AllocateDescriptorAt(0, layout); err != nil {
		t.Fatal(err)
	}
	if _, err := h.AllocateDescriptorAt(0, layout); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("second set at offset 0: err = %v", err)
	}
	h.FreeDescriptorAt(0)
	if _, err := h.AllocateDescriptorAt(0, layout); err != nil {
		t.Errorf("reallocating a freed set: %v", err)
	}

	cpu, err := pooled.CreateDescriptorHeap(rhi.DescriptorHeapDesc{Size: 8})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cpu.(*DescriptorBufferHeap); !ok || cpu.StartAddress().GPU != 0 {
		t.Errorf("CPU heap = %T at %+v", cpu, cpu.StartAddress())
	}

	buffered := newTestDevice(t, rhi.DeviceDesc{UseDescriptorBuffer: true})
	bh, err := buffered.CreateDescriptorHeap(rhi.DescriptorHeapDesc{Size: 8, ShaderVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	if bh.Strategy() != rhi.StrategyDescriptorBuffer {
		t.Fatalf("strategy = %v", bh.Strategy())
	}
	if _, err := bh.AllocateDescriptorAt(16, layout); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("misaligned group: err = %v", err)
	}
	if _, err := bh.AllocateDescriptorAt(bh.Capacity(), layout); !errors.Is(err, rhi.ErrHeapExhausted) {
		t.Errorf("group past the end: err = %v", err)
	}
}

func TestDescriptorWriteResolvesThroughHeap(t *testing.T) {
	d := newTestDevice(t, rhi.DeviceDesc{})
	heap, err := d.CreateDescriptorHeap(rhi.DescriptorHeapDesc{Size: 4, ShaderVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := d.CreateBuffer(rhi.BufferDesc{Size: 256, Usage: rhi.BufferUsageUniform})
	slot := heap.StartAddress()
	if err := d.CreateBufferDescriptor(buf, rhi.BufferDescriptorDesc{Type: rhi.DescriptorUniformBuffer}, slot); err != nil {
		t.Fatal(err)
	}
	got, ok := d.ResolveDescriptor(rhi.DescriptorHandle{GPU: slot.GPU})
	if !ok || got.Type != rhi.DescriptorUniformBuffer || got.BufferView.Size != 256 {
		t.Errorf("resolved = %+v, %v", got, ok)
	}
}
