package descalloc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// Range is a free [Begin, End) byte range inside a chunk.
type Range = interval.Range

// DefaultCpuChunkSize is the number of descriptors in one CPU heap chunk.
const DefaultCpuChunkSize = 1024

// CpuAllocatorDesc configures a CpuDescriptorAllocator.
type CpuAllocatorDesc struct {
	Type rhi.DescriptorHeapType
	// ChunkSize is the descriptor capacity of each heap chunk.
	ChunkSize uint32
	Logger    *slog.Logger
}

type cpuChunk struct {
	heap rhi.DescriptorHeap
	free *interval.Set
}

type cpuAllocation struct {
	chunk  int
	offset uint64
	size   uint64
}

// CpuDescriptorAllocator suballocates non shader visible descriptors. It is
// safe for concurrent use.
type CpuDescriptorAllocator struct {
	device rhi.Device
	desc   CpuAllocatorDesc
	log    *slog.Logger

	mu     sync.Mutex
	chunks []*cpuChunk
	live   map[uint64]cpuAllocation
}

// NewCpuDescriptorAllocator creates an allocator. Chunks are created on
// first use.
func NewCpuDescriptorAllocator(device rhi.Device, desc CpuAllocatorDesc) *CpuDescriptorAllocator {
	if desc.ChunkSize == 0 {
		desc.ChunkSize = DefaultCpuChunkSize
	}
	log := desc.Logger
	if log == nil {
		log = slogger()
	}
	return &CpuDescriptorAllocator{
		device: device,
		desc:   desc,
		log:    log,
		live:   make(map[uint64]cpuAllocation),
	}
}

// Type returns the heap type the allocator serves.
func (a *CpuDescriptorAllocator) Type() rhi.DescriptorHeapType { return a.desc.Type }

// AllocateOne allocates a single descriptor of type t.
func (a *CpuDescriptorAllocator) AllocateOne(t rhi.DescriptorType) (rhi.DescriptorHandle, error) {
	return a.Allocate(rhi.BindGroupLayout{{Type: t}})
}

// Allocate allocates a contiguous range for layout. The first chunk with a
// suitable free interval wins; a new chunk is created when none has one.
func (a *CpuDescriptorAllocator) Allocate(layout rhi.BindGroupLayout) (rhi.DescriptorHandle, error) {
	for _, e := range layout {
		if e.Type.HeapType() != a.desc.Type {
			return rhi.DescriptorHandle{}, fmt.Errorf("%w: %v in %v allocator", ErrHeapType, e.Type, a.desc.Type)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.chunks) == 0 {
		if _, err := a.newChunk(); err != nil {
			return rhi.DescriptorHandle{}, err
		}
	}
	sizeOf := a.chunks[0].heap.SizeOfDescriptor
	_, size := layout.Offsets(sizeOf)
	align := groupAlignment(layout, sizeOf)
	if size == 0 {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: empty layout", rhi.ErrInvalidDesc)
	}
	if size > a.chunks[0].heap.Capacity() {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: %d bytes, chunk holds %d", ErrTooLarge, size, a.chunks[0].heap.Capacity())
	}

	for i, c := range a.chunks {
		if h, ok := a.allocateIn(i, c, layout, size, align); ok {
			return h, nil
		}
	}
	c, err := a.newChunk()
	if err != nil {
		return rhi.DescriptorHandle{}, err
	}
	h, ok := a.allocateIn(len(a.chunks)-1, c, layout, size, align)
	if !ok {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: %d bytes in a fresh chunk", ErrTooLarge, size)
	}
	return h, nil
}

func (a *CpuDescriptorAllocator) allocateIn(index int, c *cpuChunk, layout rhi.BindGroupLayout, size, align uint64) (rhi.DescriptorHandle, bool) {
	offset, ok := c.free.Allocate(size, align)
	if !ok {
		return rhi.DescriptorHandle{}, false
	}
	h, err := c.heap.AllocateDescriptorAt(offset, layout)
	if err != nil {
		c.free.Free(offset, size)
		a.log.Warn("descalloc: heap rejected range", "offset", offset, "size", size, "err", err)
		return rhi.DescriptorHandle{}, false
	}
	a.live[h.CPU] = cpuAllocation{chunk: index, offset: offset, size: size}
	return h, true
}

func (a *CpuDescriptorAllocator) newChunk() (*cpuChunk, error) {
	heap, err := a.device.CreateDescriptorHeap(rhi.DescriptorHeapDesc{
		Label: fmt.Sprintf("cpu %v descriptors #%d", a.desc.Type, len(a.chunks)),
		Type:  a.desc.Type,
		Size:  a.desc.ChunkSize,
	})
	if err != nil {
		rhi.LogCritical(a.log, "descalloc: create cpu descriptor heap", "type", a.desc.Type, "err", err)
		return nil, err
	}
	c := &cpuChunk{heap: heap, free: interval.New(heap.Capacity())}
	a.chunks = append(a.chunks, c)
	a.log.Debug("descalloc: cpu chunk created", "type", a.desc.Type, "chunks", len(a.chunks))
	return c, nil
}

// Free returns the range at h and merges it with its free neighbors.
// Freeing a handle that is not live panics.
func (a *CpuDescriptorAllocator) Free(h rhi.DescriptorHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	alloc, ok := a.live[h.CPU]
	if !ok {
		panic(fmt.Sprintf("descalloc: free of unallocated descriptor %#x", h.CPU))
	}
	delete(a.live, h.CPU)
	c := a.chunks[alloc.chunk]
	c.heap.FreeDescriptorAt(alloc.offset)
	c.free.Free(alloc.offset, alloc.size)
}

// NumChunks returns the number of heap chunks created so far.
func (a *CpuDescriptorAllocator) NumChunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

// FreeRanges returns the free intervals of chunk i.
func (a *CpuDescriptorAllocator) FreeRanges(i int) []Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks[i].free.Ranges()
}

// ChunkCapacity returns the byte size of each chunk, or zero before the
// first allocation.
func (a *CpuDescriptorAllocator) ChunkCapacity() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.chunks) == 0 {
		return 0
	}
	return a.chunks[0].heap.Capacity()
}

// Live returns the number of outstanding allocations.
func (a *CpuDescriptorAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Destroy destroys every chunk. Outstanding handles become invalid.
func (a *CpuDescriptorAllocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.chunks {
		c.heap.Destroy()
	}
	a.chunks = nil
	clear(a.live)
}

func groupAlignment(layout rhi.BindGroupLayout, sizeOf func(rhi.DescriptorType) uint64) uint64 {
	align := uint64(1)
	for _, e := range layout {
		align = max(align, sizeOf(e.Type))
	}
	return align
}
