package d3d12

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/hack-pad/hackpadfs/mem"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(rhi.DeviceDesc{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Destroy() })
	return d
}

// dxbc returns a container header followed by seed.
func dxbc(seed byte) []byte {
	b := make([]byte, 36)
	copy(b, "DXBC")
	b[32] = seed
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

func newTexture(t *testing.T, d *Device, levels, layers uint32, usage rhi.TextureUsage) *Texture {
	t.Helper()
	tex, err := d.CreateTexture(rhi.TextureDesc{
		Extent: gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: layers},
		Levels: levels,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  usage,
	})
	if err != nil {
		t.Fatal(err)
	}
	return tex.(*Texture)
}

func TestRegisteredBackend(t *testing.T) {
	dev, err := rhi.CreateDevice(rhi.DeviceDesc{Backend: rhi.BackendD3D12, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Destroy()
	if _, ok := dev.(*Device); !ok {
		t.Fatalf("CreateDevice returned %T", dev)
	}
	p := dev.Properties()
	if p.ConstantBufferAlignment != 256 || p.ShaderGroupBaseAlignment != 64 ||
		p.DescriptorHeapStrategy != rhi.StrategyDescriptorBuffer {
		t.Errorf("Properties() = %+v", p)
	}
}

// =============================================================================
// States
// =============================================================================

func TestResourceStates(t *testing.T) {
	tests := []struct {
		access rhi.ResourceAccessType
		want   resourceState
	}{
		{rhi.AccessNone, stateCommon},
		{rhi.AccessColorAttachmentWrite, stateRenderTarget},
		{rhi.AccessSampledTextureRead, stateAllShaderResource},
		{rhi.AccessSampledTextureRead | rhi.AccessTransferRead, stateAllShaderResource | stateCopySource},
		{rhi.AccessDepthStencilAttachmentRead | rhi.AccessDepthStencilAttachmentWrite, stateDepthWrite},
		{rhi.AccessStorageRead | rhi.AccessStorageWrite, stateUnorderedAccess},
		{rhi.AccessTransferWrite | rhi.AccessSampledTextureRead, stateCommon},
		{rhi.AccessPresent, statePresent},
	}
	for _, tt := range tests {
		if got := toD3D12TextureState(tt.access); got != tt.want {
			t.Errorf("toD3D12TextureState(%v) = %v, want %v", tt.access, got, tt.want)
		}
	}
	if got := toD3D12BufferState(rhi.AccessVertexBufferRead | rhi.AccessIndexBufferRead); got != stateVertexAndConstantBuffer|stateIndexBuffer {
		t.Errorf("vertex and index read = %v", got)
	}
}

// =============================================================================
// Barriers
// =============================================================================

func TestWholeTextureTransitionUsesAllSubresources(t *testing.T) {
	d := newTestDevice(t)
	tex := newTexture(t, d, 3, 2, rhi.TextureUsageSampled|rhi.TextureUsageTransferDst)
	enc := d.CreateCommandEncoder(rhi.QueueGraphics).(*CommandEncoder)
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessTransferWrite}})
	enc.Finish()

	if len(enc.barriers) != 1 || len(enc.barriers[0]) != 1 {
		t.Fatalf("barriers = %+v", enc.barriers)
	}
	b := enc.barriers[0][0]
	if b.Subresource != allSubresources || b.StateBefore != stateCommon || b.StateAfter != stateCopyDest {
		t.Errorf("barrier = %+v", b)
	}
	if got := tex.State(2, 1); got != stateCopyDest {
		t.Errorf("tracked state = %v", got)
	}
}

func TestSplitStatesTransitionPerSubresource(t *testing.T) {
	d := newTestDevice(t)
	tex := newTexture(t, d, 3, 1, rhi.TextureUsageSampled|rhi.TextureUsageTransferDst)
	enc := d.CreateCommandEncoder(rhi.QueueGraphics).(*CommandEncoder)
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, NumLevels: 1, DstAccessType: rhi.AccessTransferWrite}})
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessSampledTextureRead}})
	enc.Finish()

	if got := enc.barriers[0][0].Subresource; got != 0 {
		t.Errorf("single level barrier subresource = %d", got)
	}
	second := enc.barriers[1]
	if len(second) != 3 {
		t.Fatalf("second call has %d barriers, want one per subresource", len(second))
	}
	if second[0].StateBefore != stateCopyDest || second[1].StateBefore != stateCommon {
		t.Errorf("barriers = %+v", second)
	}
	for i, b := range second {
		if b.Subresource != uint32(i) || b.StateAfter != stateAllShaderResource {
			t.Errorf("barrier %d = %+v", i, b)
		}
	}
}

func TestUnorderedAccessBarrier(t *testing.T) {
	d := newTestDevice(t)
	buf, _ := d.CreateBuffer(rhi.BufferDesc{Size: 64, Usage: rhi.BufferUsageStorage})
	enc := d.CreateCommandEncoder(rhi.QueueCompute).(*CommandEncoder)
	enc.ResourceBarriers([]rhi.BufferBarrier{{Buffer: buf, DstAccessType: rhi.AccessStorageWrite}}, nil)
	enc.ResourceBarriers([]rhi.BufferBarrier{{Buffer: buf, DstAccessType: rhi.AccessStorageRead}}, nil)
	enc.ResourceBarriers([]rhi.BufferBarrier{{Buffer: buf, DstAccessType: rhi.AccessIndirectRead}}, nil)
	enc.ResourceBarriers([]rhi.BufferBarrier{{Buffer: buf, DstAccessType: rhi.AccessIndirectRead}}, nil)
	enc.Finish()

	if len(enc.barriers) != 3 {
		t.Fatalf("recorded %d barrier calls, want 3", len(enc.barriers))
	}
	if b := enc.barriers[0][0]; b.Type != barrierTransition || b.StateAfter != stateUnorderedAccess {
		t.Errorf("first = %+v", b)
	}
	if b := enc.barriers[1][0]; b.Type != barrierUAV {
		t.Errorf("write to read of unordered access = %+v", b)
	}
	if b := enc.barriers[2][0]; b.StateBefore != stateUnorderedAccess || b.StateAfter != stateIndirectArgument {
		t.Errorf("third = %+v", b)
	}
}

func TestQueueOwnershipDecaysToCommon(t *testing.T) {
	d := newTestDevice(t)
	buf, _ := d.CreateBuffer(rhi.BufferDesc{Size: 64, Usage: rhi.BufferUsageStorage})
	barrier := rhi.BufferBarrier{
		Buffer: buf, SrcAccessType: rhi.AccessStorageWrite, DstAccessType: rhi.AccessStorageRead,
		SrcQueue: rhi.QueueCompute, DstQueue: rhi.QueueGraphics,
	}

	release := d.CreateCommandEncoder(rhi.QueueCompute).(*CommandEncoder)
	release.ResourceBarriers([]rhi.BufferBarrier{barrier}, nil)
	release.Finish()
	if b := release.barriers[0][0]; b.StateBefore != stateUnorderedAccess || b.StateAfter != stateCommon {
		t.Errorf("release = %+v", b)
	}

	barrier.SrcAccessType = rhi.AccessNone
	acquire := d.CreateCommandEncoder(rhi.QueueGraphics).(*CommandEncoder)
	acquire.ResourceBarriers([]rhi.BufferBarrier{barrier}, nil)
	acquire.Finish()
	if b := acquire.barriers[0][0]; b.StateBefore != stateCommon || b.StateAfter != stateUnorderedAccess {
		t.Errorf("acquire = %+v", b)
	}
}

func TestUploadBuffersNeedNoBarrier(t *testing.T) {
	d := newTestDevice(t)
	buf, _ := d.CreateBuffer(rhi.BufferDesc{Size: 64, Usage: rhi.BufferUsageTransferSrc, MemoryProperty: rhi.MemoryCpuToGpu})
	enc := d.CreateCommandEncoder(rhi.QueueGraphics).(*CommandEncoder)
	enc.ResourceBarriers([]rhi.BufferBarrier{{Buffer: buf, DstAccessType: rhi.AccessTransferRead}}, nil)
	if got := enc.Finish().Trace(); len(got) != 0 {
		t.Errorf("trace = %v", got)
	}
}

// =============================================================================
// Recording and submission
// =============================================================================

func TestRenderPassClearReadback(t *testing.T) {
	d := newTestDevice(t)
	tex := newTexture(t, d, 1, 1, rhi.TextureUsageColorAttachment|rhi.TextureUsageTransferSrc)
	readback, err := d.CreateBuffer(rhi.BufferDesc{
		Size: 8 * 8 * 4, Usage: rhi.BufferUsageTransferDst, MemoryProperty: rhi.MemoryGpuToCpu,
	})
	if err != nil {
		t.Fatal(err)
	}

	enc := d.CreateCommandEncoder(rhi.QueueGraphics)
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessColorAttachmentWrite}})
	pass := enc.BeginRenderPass(rhi.RenderPassDesc{
		Colors: []rhi.ColorAttachment{{
			Texture: tex, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore,
			ClearColor: gputypes.Color{G: 1, A: 1},
		}},
	})
	pass.End()
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessTransferRead}})
	enc.CopyTextureToBuffer(tex, readback, rhi.BufferTextureCopyDesc{})
	submitAndWait(t, d, enc)

	want := bytes.Repeat([]byte{0, 255, 0, 255}, 64)
	if got := readback.Map()[:len(want)]; !bytes.Equal(got, want) {
		t.Errorf("readback = %v", got)
	}
	readback.Unmap()
}

func TestCommandTrace(t *testing.T) {
	d := newTestDevice(t)
	tex := newTexture(t, d, 1, 1, rhi.TextureUsageColorAttachment)
	enc := d.CreateCommandEncoder(rhi.QueueGraphics)
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{Texture: tex, DstAccessType: rhi.AccessColorAttachmentWrite}})
	pass := enc.BeginRenderPass(rhi.RenderPassDesc{
		Label:  "gbuffer",
		Colors: []rhi.ColorAttachment{{Texture: tex, LoadOp: gputypes.LoadOpLoad}},
	})
	pass.SetViewports([]rhi.Viewport{{Width: 8, Height: 8, MaxDepth: 1}})
	pass.SetScissors([]rhi.Scissor{{Width: 8, Height: 8}})
	pass.End()
	got := enc.Finish().Trace()
	want := []string{
		"ResourceBarrier",
		"BeginEvent(gbuffer)",
		"BeginRenderPass",
		"RSSetViewports",
		"RSSetScissorRects",
		"EndRenderPass",
		"EndEvent",
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

func TestViewportIsNotFlipped(t *testing.T) {
	d := newTestDevice(t)
	tex := newTexture(t, d, 1, 1, rhi.TextureUsageColorAttachment)
	enc := d.CreateCommandEncoder(rhi.QueueGraphics)
	pass := enc.BeginRenderPass(rhi.RenderPassDesc{Colors: []rhi.ColorAttachment{{Texture: tex}}}).(*GraphicsEncoder)
	pass.SetViewports([]rhi.Viewport{{X: 0, Y: 10, Width: 100, Height: 50}})
	pass.SetScissors([]rhi.Scissor{{X: 2, Y: 3, Width: 4, Height: 5}})
	pass.End()
	enc.Finish()
	if v := pass.viewports[0]; v.TopLeftY != 10 || v.Height != 50 {
		t.Errorf("viewport = %+v", v)
	}
	if r := pass.scissors[0]; r != (rect{Left: 2, Top: 3, Right: 6, Bottom: 8}) {
		t.Errorf("scissor = %+v", r)
	}
}

func TestAccelerationStructurePostbuildInfo(t *testing.T) {
	d := newTestDevice(t)
	blas, err := d.CreateAccelerationStructure(rhi.AccelerationStructureDesc{Size: 100})
	if err != nil {
		t.Fatal(err)
	}
	if blas.Desc().Size != accelerationStructureAlignment {
		t.Errorf("size = %d, want rounding to %d", blas.Desc().Size, accelerationStructureAlignment)
	}
	info, _ := d.CreateBuffer(rhi.BufferDesc{Size: 8, Usage: rhi.BufferUsageStorage})

	enc := d.CreateCommandEncoder(rhi.QueueCompute)
	enc.BuildBottomLevelAccelerationStructure([]rhi.BottomLevelBuildDesc{{Dst: blas}}, nil)
	enc.BuildBottomLevelAccelerationStructure([]rhi.BottomLevelBuildDesc{{Dst: blas}},
		[]rhi.AccelerationStructureEmitData{{Type: rhi.EmitCompactedSize, Dst: info}})
	got := enc.Finish().Trace()
	want := []string{
		"BuildRaytracingAccelerationStructure",
		"BuildRaytracingAccelerationStructure",
		"ResourceBarrier",
		"EmitRaytracingAccelerationStructurePostbuildInfo",
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
			PushConstants: &rhi.PushConstantsDesc{Size: 16, Binding: 0, Visibility: rhi.ShaderStageCompute},
		},
		Compute: rhi.NewShaderModule(rhi.ShaderStageCompute, "main", dxbc(seed)),
	}
}

func TestRootSignature(t *testing.T) {
	rs, err := newRootSignature(&rhi.PipelineLayoutDesc{
		BindGroups: []rhi.BindGroupLayout{
			{
				{Type: rhi.DescriptorUniformBuffer, Binding: 0, Visibility: rhi.ShaderStageVertex},
				{Type: rhi.DescriptorSampledTexture, Binding: 0, Count: 4, Visibility: rhi.ShaderStageFragment},
				{Type: rhi.DescriptorReadWriteStorageBuffer, Binding: 0, Visibility: rhi.ShaderStageFragment},
			},
			{{Type: rhi.DescriptorSampler, Binding: 1, Space: 1, Visibility: rhi.ShaderStageFragment}},
		},
		StaticSamplers: []rhi.StaticSampler{{Binding: 0, Space: 1, Visibility: rhi.ShaderStageFragment}},
		PushConstants:  &rhi.PushConstantsDesc{Size: 8, Binding: 1, Visibility: rhi.ShaderStageAllGraphics},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rs.NumTables() != 2 || rs.constantsIndex != 2 || rs.DWords() != 4 {
		t.Fatalf("tables = %d, constants at %d, cost %d", rs.NumTables(), rs.constantsIndex, rs.DWords())
	}
	ranges := rs.Parameters[0].Ranges
	if ranges[0].RangeType != descriptorRangeCBV || ranges[1].RangeType != descriptorRangeSRV ||
		ranges[2].RangeType != descriptorRangeUAV {
		t.Errorf("ranges = %+v", ranges)
	}
	if ranges[1].NumDescriptors != 4 || ranges[2].OffsetInDescriptorsFromTableStart != 5 {
		t.Errorf("texture range = %+v, storage range = %+v", ranges[1], ranges[2])
	}
	if rs.Parameters[0].Visibility != shaderVisibilityAll || rs.Parameters[1].Visibility != shaderVisibilityPixel {
		t.Errorf("visibility = %v, %v", rs.Parameters[0].Visibility, rs.Parameters[1].Visibility)
	}
	if len(rs.StaticSamplers) != 1 || rs.StaticSamplers[0].RegisterSpace != 1 {
		t.Errorf("static samplers = %+v", rs.StaticSamplers)
	}
}

func TestRootSignatureErrors(t *testing.T) {
	tests := map[string]rhi.PipelineLayoutDesc{
		"register conflict": {BindGroups: []rhi.BindGroupLayout{
			{{Type: rhi.DescriptorSampledTexture, Binding: 0, Count: 2}},
			{{Type: rhi.DescriptorReadOnlyStorageBuffer, Binding: 1}},
		}},
		"mixed heap types": {BindGroups: []rhi.BindGroupLayout{
			{{Type: rhi.DescriptorSampler}, {Type: rhi.DescriptorSampledTexture}},
		}},
		"static sampler conflict": {
			BindGroups:     []rhi.BindGroupLayout{{{Type: rhi.DescriptorSampler}}},
			StaticSamplers: []rhi.StaticSampler{{Binding: 0}},
		},
		"too many DWORDs":     {PushConstants: &rhi.PushConstantsDesc{Size: 4 * 65}},
		"unaligned constants": {PushConstants: &rhi.PushConstantsDesc{Size: 6}},
	}
	for name, desc := range tests {
		if _, err := newRootSignature(&desc); !errors.Is(err, rhi.ErrPipelineLayout) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestPipelineValidation(t *testing.T) {
	d := newTestDevice(t)
	if _, err := d.CreateComputePipeline(computeDesc(1)); err != nil {
		t.Fatal(err)
	}
	spirv := computeDesc(1)
	spirv.Compute = rhi.NewShaderModule(rhi.ShaderStageCompute, "main", []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0})
	if _, err := d.CreateComputePipeline(spirv); !errors.Is(err, rhi.ErrInvalidDesc) {
		t.Errorf("non DXBC binary: err = %v", err)
	}
	noStage := computeDesc(2)
	noStage.Compute = nil
	if _, err := d.CreateComputePipeline(noStage); !errors.Is(err, rhi.ErrInvalidDesc) {
		t.Errorf("missing stage: err = %v", err)
	}
}

func TestPipelineCacheRoundTrip(t *testing.T) {
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
	p, err := first.CreateComputePipeline(computeDesc(9))
	if err != nil {
		t.Fatal(err)
	}
	key := p.(*ComputePipeline).CacheKey()
	want, ok := first.Cache.Lookup(key)
	if !ok {
		t.Fatal("pipeline blob not cached")
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
	got, ok := second.Cache.Lookup(key)
	if !ok {
		t.Fatal("blob missing after reload")
	}
	if !bytes.Equal(got, want) {
		t.Error("reloaded blob differs from the saved one")
	}

	other := desc
	other.Adapter = defaultAdapter
	other.Adapter.DeviceID++
	third, err := New(other)
	if err != nil {
		t.Fatal(err)
	}
	defer third.Destroy()
	if err := third.InitializePipelineCacheFrom("pipelines.bin"); err != nil {
		t.Fatal(err)
	}
	if s := third.PipelineCacheStats(); s.Entries != 0 {
		t.Errorf("entries on another GPU = %d, want 0", s.Entries)
	}
}

func TestRootConstantsBound(t *testing.T) {
	d := newTestDevice(t)
	p, err := d.CreateComputePipeline(computeDesc(3))
	if err != nil {
		t.Fatal(err)
	}
	heap, err := d.CreateDescriptorHeap(rhi.DescriptorHeapDesc{Size: 4, ShaderVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	enc := d.CreateCommandEncoder(rhi.QueueCompute)
	cp := enc.BeginComputePass("")
	cp.SetPipeline(p)
	cp.SetDescriptors(0, []rhi.DescriptorHandle{heap.StartAddress()})
	cp.PushConstants(make([]byte, 16))
	func() {
		defer func() {
			if recover() == nil {
				t.Error("oversized root constants did not panic")
			}
		}()
		cp.PushConstants(make([]byte, 20))
	}()
	cp.Dispatch(1, 1, 1)
	cp.End()
	got := enc.Finish().Trace()
	want := []string{
		"SetPipelineState", "SetComputeRootSignature", "SetDescriptorHeaps",
		"SetComputeRootDescriptorTable", "SetComputeRoot32BitConstants", "Dispatch",
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

func TestShaderIdentifiers(t *testing.T) {
	d := newTestDevice(t)
	module := func(stage rhi.ShaderStage, seed byte) *rhi.ShaderModule {
		return rhi.NewShaderModule(stage, "main", dxbc(seed))
	}
	p, err := d.CreateRaytracingPipeline(rhi.RaytracingPipelineDesc{
		Raygen:    module(rhi.ShaderStageRaygen, 1),
		Miss:      []*rhi.ShaderModule{module(rhi.ShaderStageMiss, 2)},
		HitGroups: []rhi.HitGroup{{ClosestHit: module(rhi.ShaderStageClosestHit, 3)}, {AnyHit: module(rhi.ShaderStageAnyHit, 4)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rp := p.(*RaytracingPipeline)
	if got := rp.exports; len(got) != 4 || got[0] != "RayGen" || got[3] != "HitGroup_1" {
		t.Fatalf("exports = %v", got)
	}
	hits := make([]byte, 2*shaderIdentifierSize)
	if err := p.GetShaderHandle(rhi.SBTHitGroup, 0, 2, hits); err != nil {
		t.Fatal(err)
	}
	want, _ := rp.GetShaderIdentifier("HitGroup_1")
	if !bytes.Equal(hits[shaderIdentifierSize:], want[:]) {
		t.Error("second hit group identifier does not match its export")
	}
	if err := p.GetShaderHandle(rhi.SBTMiss, 0, 1, hits[:16]); !errors.Is(err, rhi.ErrInvalidDesc) {
		t.Errorf("short destination: err = %v", err)
	}
}

// =============================================================================
// Descriptor heaps
// =============================================================================

func TestDescriptorHeap(t *testing.T) {
	d := newTestDevice(t)
	h, err := d.CreateDescriptorHeap(rhi.DescriptorHeapDesc{Size: 8, ShaderVisible: true})
	if err != nil {
		t.Fatal(err)
	}
	layout := rhi.BindGroupLayout{{Type: rhi.DescriptorUniformBuffer}, {Type: rhi.DescriptorSampledTexture, Count: 2}}
	got, err := h.AllocateDescriptorAt(2*descriptorIncrement, layout)
	if err != nil {
		t.Fatal(err)
	}
	if got.CPU != h.StartAddress().CPU+2*descriptorIncrement {
		t.Errorf("handle = %+v, start = %+v", got, h.StartAddress())
	}
	if _, err := h.AllocateDescriptorAt(7, layout); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("unaligned offset: err = %v", err)
	}
	if _, err := h.AllocateDescriptorAt(0, rhi.BindGroupLayout{{Type: rhi.DescriptorSampler}}); !errors.Is(err, rhi.ErrInvalidDescriptor) {
		t.Errorf("sampler in resource heap: err = %v", err)
	}
	if _, err := h.AllocateDescriptorAt(6*descriptorIncrement, layout); !errors.Is(err, rhi.ErrHeapExhausted) {
		t.Errorf("table past the end: err = %v", err)
	}

	_, err = d.CreateDescriptorHeap(rhi.DescriptorHeapDesc{Type: rhi.DescriptorHeapSampler, Size: 4096, ShaderVisible: true})
	if !errors.Is(err, rhi.ErrInvalidDesc) {
		t.Errorf("oversized sampler heap: err = %v", err)
	}
}
