package devcore

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/hack-pad/hackpadfs/mem"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	fsys, err := mem.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	props := rhi.DeviceProperties{
		Backend:                 rhi.BackendVulkan,
		Adapter:                 rhi.AdapterIdentity{VendorID: 1, DeviceID: 2},
		ConstantBufferAlignment: 64,
	}
	c := NewCore(props, rhi.DeviceDesc{FileSystem: rhi.NewHackpadFileSystem(fsys)},
		slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sizeOf(t rhi.DescriptorType) uint64 {
	if t.IsTexture() {
		return 32
	}
	return 16
}

// =============================================================================
// Queue and recorder
// =============================================================================

func TestSubmitRunsOpsInOrder(t *testing.T) {
	c := newTestCore(t)
	buf := &Buffer{}
	c.InitBuffer(buf, rhi.BufferDesc{Size: 8, MemoryProperty: rhi.MemoryGpuToCpu}, 0)

	rec := NewRecorder(rhi.QueueTransfer)
	rec.Record("fill", FillBufferOp(buf, 0, 0, 0x01010101))
	rec.Record("fill", FillBufferOp(buf, 4, 4, 0x02020202))
	cb := rec.Finish()

	fence := c.CreateFence()
	if err := c.HostQueue(rhi.QueueTransfer).Submit([]rhi.CommandBuffer{cb}, nil, nil, fence); err != nil {
		t.Fatal(err)
	}
	if !fence.Wait(time.Second) {
		t.Fatal("fence not signaled")
	}
	got := buf.Map()
	want := []byte{1, 1, 1, 1, 2, 2, 2, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
	if tr := cb.Trace(); len(tr) != 2 || tr[0] != "fill" {
		t.Errorf("Trace() = %v", tr)
	}
}

func TestSubmitRejectsOtherQueue(t *testing.T) {
	c := newTestCore(t)
	rec := NewRecorder(rhi.QueueCompute)
	cb := rec.Finish()
	err := c.HostQueue(rhi.QueueGraphics).Submit([]rhi.CommandBuffer{cb}, nil, nil, nil)
	if !errors.Is(err, rhi.ErrQueueMismatch) {
		t.Fatalf("err = %v, want ErrQueueMismatch", err)
	}
}

func TestSemaphoreOrdersQueues(t *testing.T) {
	c := newTestCore(t)
	var mu sync.Mutex
	var order []string
	mark := func(s string) func() {
		return func() {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
	}
	sem := c.CreateSemaphore()

	// The consumer is submitted first but waits on the producer.
	consumer := NewRecorder(rhi.QueueGraphics)
	consumer.Record("consume", mark("consume"))
	if err := c.HostQueue(rhi.QueueGraphics).Submit([]rhi.CommandBuffer{consumer.Finish()},
		[]rhi.Semaphore{sem}, nil, nil); err != nil {
		t.Fatal(err)
	}
	producer := NewRecorder(rhi.QueueCompute)
	producer.Record("produce", mark("produce"))
	if err := c.HostQueue(rhi.QueueCompute).Submit([]rhi.CommandBuffer{producer.Finish()},
		nil, []rhi.Semaphore{sem}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "produce" || order[1] != "consume" {
		t.Fatalf("order = %v", order)
	}
}

func TestRecorderInvalidDuringPass(t *testing.T) {
	rec := NewRecorder(rhi.QueueGraphics)
	rec.BeginPass("begin", nil)
	if rec.Valid() {
		t.Fatal("recorder valid inside a pass")
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("Record inside a pass did not panic")
			}
		}()
		rec.Record("copy", nil)
	}()
	rec.RecordInPass("draw", nil)
	rec.EndPass("end")
	if !rec.Valid() {
		t.Fatal("recorder invalid after EndPass")
	}
	rec.Record("copy", nil)
	got := rec.Finish().Trace()
	want := []string{"begin", "draw", "end", "copy"}
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trace = %v, want %v", got, want)
		}
	}
}

func TestRecorderUnbalancedLabels(t *testing.T) {
	rec := NewRecorder(rhi.QueueGraphics)
	rec.PushLabel("push", "frame")
	defer func() {
		if recover() == nil {
			t.Error("Finish with open label did not panic")
		}
	}()
	rec.Finish()
}

func TestClosedCoreRejectsWork(t *testing.T) {
	c := newTestCore(t)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); !errors.Is(err, rhi.ErrDeviceDestroyed) {
		t.Errorf("second Close = %v", err)
	}
	err := c.HostQueue(rhi.QueueGraphics).Submit(nil, nil, nil, nil)
	if !errors.Is(err, rhi.ErrDeviceDestroyed) {
		t.Errorf("Submit after Close = %v", err)
	}
}

// =============================================================================
// Descriptors
// =============================================================================

func TestDescriptorWriteAndCopy(t *testing.T) {
	c := newTestCore(t)
	buf := &Buffer{}
	c.InitBuffer(buf, rhi.BufferDesc{Size: 256, Usage: rhi.BufferUsageUniform}, 64)

	cpu := &Heap{}
	if err := c.InitHeap(cpu, rhi.DescriptorHeapDesc{Size: 8}, sizeOf); err != nil {
		t.Fatal(err)
	}
	gpu := &Heap{}
	if err := c.InitHeap(gpu, rhi.DescriptorHeapDesc{Size: 8, ShaderVisible: true}, sizeOf); err != nil {
		t.Fatal(err)
	}
	if cpu.StartAddress().GPU != 0 || gpu.StartAddress().GPU == 0 {
		t.Fatal("only shader visible heaps have GPU addresses")
	}

	src := cpu.HandleAt(16)
	view := rhi.BufferDescriptorDesc{Type: rhi.DescriptorUniformBuffer, Offset: 64}
	if err := c.CreateBufferDescriptor(buf, view, src); err != nil {
		t.Fatal(err)
	}
	dst := gpu.HandleAt(0)
	if err := c.CopyDescriptors(dst, []rhi.DescriptorHandle{src}, []rhi.DescriptorType{rhi.DescriptorUniformBuffer}); err != nil {
		t.Fatal(err)
	}
	d, ok := c.ResolveDescriptor(rhi.DescriptorHandle{GPU: dst.GPU})
	if !ok || d.Buffer != buf || d.BufferView.Size != 192 {
		t.Fatalf("resolved %+v, %v", d, ok)
	}
}

func TestDescriptorValidation(t *testing.T) {
	c := newTestCore(t)
	buf := &Buffer{}
	c.InitBuffer(buf, rhi.BufferDesc{Size: 256}, 0)
	samplers := &Heap{}
	if err := c.InitHeap(samplers, rhi.DescriptorHeapDesc{Type: rhi.DescriptorHeapSampler, Size: 4}, sizeOf); err != nil {
		t.Fatal(err)
	}
	resources := &Heap{}
	if err := c.InitHeap(resources, rhi.DescriptorHeapDesc{Size: 4}, sizeOf); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		view rhi.BufferDescriptorDesc
		dst  rhi.DescriptorHandle
		want error
	}{
		{"wrong heap", rhi.BufferDescriptorDesc{Type: rhi.DescriptorReadOnlyStorageBuffer}, samplers.HandleAt(0), rhi.ErrInvalidDescriptor},
		{"misaligned slot", rhi.BufferDescriptorDesc{Type: rhi.DescriptorReadOnlyStorageBuffer}, resources.HandleAt(8), rhi.ErrInvalidDescriptor},
		{"past the end", rhi.BufferDescriptorDesc{Type: rhi.DescriptorReadOnlyStorageBuffer}, resources.HandleAt(128), rhi.ErrInvalidDescriptor},
		{"unaligned uniform", rhi.BufferDescriptorDesc{Type: rhi.DescriptorUniformBuffer, Offset: 16}, resources.HandleAt(0), rhi.ErrInvalidDesc},
		{"view overflow", rhi.BufferDescriptorDesc{Type: rhi.DescriptorReadOnlyStorageBuffer, Offset: 128, Size: 256}, resources.HandleAt(0), rhi.ErrInvalidDesc},
		{"not a buffer view", rhi.BufferDescriptorDesc{Type: rhi.DescriptorSampledTexture}, resources.HandleAt(0), rhi.ErrInvalidDesc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.CreateBufferDescriptor(buf, tt.view, tt.dst)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHeapDestroyDropsDescriptors(t *testing.T) {
	c := newTestCore(t)
	h := &Heap{}
	if err := c.InitHeap(h, rhi.DescriptorHeapDesc{Type: rhi.DescriptorHeapSampler, Size: 4}, sizeOf); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateSamplerDescriptor(NewSampler(rhi.SamplerDesc{}), h.HandleAt(16)); err != nil {
		t.Fatal(err)
	}
	if c.Descriptors.Len() != 1 {
		t.Fatalf("Len() = %d", c.Descriptors.Len())
	}
	h.Destroy()
	if c.Descriptors.Len() != 0 {
		t.Fatalf("Len() after Destroy = %d", c.Descriptors.Len())
	}
}

// =============================================================================
// Resources, pipelines and swapchain
// =============================================================================

func TestBufferPaddingAndMap(t *testing.T) {
	c := newTestCore(t)
	b := &Buffer{}
	c.InitBuffer(b, rhi.BufferDesc{Size: 100, Usage: rhi.BufferUsageUniform}, 256)
	if b.Size() != 256 {
		t.Errorf("Size() = %d, want 256", b.Size())
	}
	if b.Map() != nil {
		t.Error("Map() on gpu_only buffer returned memory")
	}
	owner, off, ok := c.Addr.Lookup(b.GPUAddress() + 10)
	if !ok || owner != b || off != 10 {
		t.Errorf("Lookup = %v, %d, %v", owner, off, ok)
	}
}

func TestObjectCacheReturnsSameObject(t *testing.T) {
	cache := NewObjectCache[*int]()
	key := rhi.PipelineCacheKey{State: 7}
	calls := 0
	create := func() (*int, error) {
		calls++
		v := calls
		return &v, nil
	}
	a, _ := cache.GetOrCreate(key, create)
	b, _ := cache.GetOrCreate(key, create)
	if a != b || calls != 1 {
		t.Fatalf("got %p and %p after %d calls", a, b, calls)
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d, %d", hits, misses)
	}
}

func TestSwapchainPresent(t *testing.T) {
	c := newTestCore(t)
	create := func(desc rhi.TextureDesc) (rhi.Texture, error) {
		tex := &Texture{}
		return tex, c.InitTexture(tex, desc)
	}
	sc, err := c.NewSwapchain(rhi.SwapchainDesc{Width: 4, Height: 4, NumImages: 3}, create)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Desc().Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("default format = %v", sc.Desc().Format)
	}
	sem := c.CreateSemaphore()
	first, err := sc.AcquireNextTexture(sem)
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Present([]rhi.Semaphore{sem}); err != nil {
		t.Fatal(err)
	}
	if err := c.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if sc.LastPresented() != first {
		t.Error("LastPresented() is not the acquired image")
	}
	second, _ := sc.AcquireNextTexture(nil)
	if second == first {
		t.Error("acquire did not advance the ring")
	}
	if err := sc.Resize(8, 2); err != nil {
		t.Fatal(err)
	}
	if sc.LastPresented() != nil || sc.CurrentTexture() != nil {
		t.Error("resize kept stale images")
	}
}

func TestBufferTextureCopyOutOfRangePanicsAtRecord(t *testing.T) {
	c := newTestCore(t)
	tex := &Texture{}
	if err := c.InitTexture(tex, rhi.TextureDesc{
		Label:  "rt",
		Extent: gputypes.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Format: gputypes.TextureFormatRGBA8Unorm,
	}); err != nil {
		t.Fatal(err)
	}
	small := &Buffer{}
	c.InitBuffer(small, rhi.BufferDesc{Label: "small", Size: 32, MemoryProperty: rhi.MemoryGpuToCpu}, 4)
	whole := &Buffer{}
	c.InitBuffer(whole, rhi.BufferDesc{Label: "whole", Size: 64, MemoryProperty: rhi.MemoryGpuToCpu}, 4)

	tests := []struct {
		name string
		buf  *Buffer
		desc rhi.BufferTextureCopyDesc
	}{
		{"buffer too small", small, rhi.BufferTextureCopyDesc{}},
		{"offset past end", whole, rhi.BufferTextureCopyDesc{BufferOffset: 4}},
		{"region outside level", whole, rhi.BufferTextureCopyDesc{Region: rhi.Region{
			Offset: gputypes.Origin3D{X: 2}, Extent: gputypes.Extent3D{Width: 4, Height: 1, DepthOrArrayLayers: 1},
		}}},
		{"missing level", whole, rhi.BufferTextureCopyDesc{Level: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, record := range []func(){
				func() { CopyTextureToBufferOp(tex, tt.buf, tt.desc) },
				func() { CopyBufferToTextureOp(tt.buf, tex, tt.desc) },
			} {
				func() {
					defer func() {
						if recover() == nil {
							t.Error("recording did not panic")
						}
					}()
					record()
				}()
			}
		})
	}

	if op := CopyTextureToBufferOp(tex, whole, rhi.BufferTextureCopyDesc{}); op == nil {
		t.Error("in range copy returned no op")
	}
}
