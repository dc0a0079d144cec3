package descalloc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

const (
	DefaultGpuChunkSize = 256
	DefaultGpuNumChunks = 256
)

// GpuAllocatorDesc configures a GpuDescriptorAllocator.
type GpuAllocatorDesc struct {
	Type rhi.DescriptorHeapType
	// ChunkSize is the descriptor capacity of one chunk.
	ChunkSize uint32
	// NumChunks is the chunk budget. The shader visible heap holds
	// ChunkSize*NumChunks descriptors and never grows.
	NumChunks  uint32
	NumFrames  int
	NumThreads int
	Logger     *slog.Logger
}

func (d GpuAllocatorDesc) withDefaults() GpuAllocatorDesc {
	if d.ChunkSize == 0 {
		d.ChunkSize = DefaultGpuChunkSize
	}
	if d.NumChunks == 0 {
		d.NumChunks = DefaultGpuNumChunks
	}
	d.NumFrames = max(d.NumFrames, 1)
	d.NumThreads = max(d.NumThreads, 1)
	return d
}

type partition struct {
	chunks []int
	cursor uint64
	// sets are the offsets passed to AllocateDescriptorAt, released on
	// reset for table-style heaps.
	sets []uint64
}

// GpuDescriptorAllocator bump-allocates shader visible descriptors per
// (frame, thread). It is safe for concurrent use.
type GpuDescriptorAllocator struct {
	desc       GpuAllocatorDesc
	log        *slog.Logger
	heap       rhi.DescriptorHeap
	chunkBytes uint64

	mu       sync.Mutex
	parts    [][]partition
	recycled []int
	// next is the first chunk never handed out.
	next int
}

// NewGpuDescriptorAllocator creates the shader visible heap.
func NewGpuDescriptorAllocator(device rhi.Device, desc GpuAllocatorDesc) (*GpuDescriptorAllocator, error) {
	desc = desc.withDefaults()
	log := desc.Logger
	if log == nil {
		log = slogger()
	}
	heap, err := device.CreateDescriptorHeap(rhi.DescriptorHeapDesc{
		Label:         fmt.Sprintf("gpu %v descriptors", desc.Type),
		Type:          desc.Type,
		Size:          desc.ChunkSize * desc.NumChunks,
		ShaderVisible: true,
	})
	if err != nil {
		rhi.LogCritical(log, "descalloc: create shader visible heap", "type", desc.Type, "err", err)
		return nil, err
	}
	a := &GpuDescriptorAllocator{
		desc:       desc,
		log:        log,
		heap:       heap,
		chunkBytes: heap.Capacity() / uint64(desc.NumChunks),
		parts:      make([][]partition, desc.NumFrames),
	}
	for i := range a.parts {
		a.parts[i] = make([]partition, desc.NumThreads)
	}
	return a, nil
}

// Heap returns the shader visible heap encoders bind.
func (a *GpuDescriptorAllocator) Heap() rhi.DescriptorHeap { return a.heap }

// ChunkBytes returns the byte size of one chunk.
func (a *GpuDescriptorAllocator) ChunkBytes() uint64 { return a.chunkBytes }

// Allocate returns a range for layout owned by (frame, thread). The range
// stays valid until Reset(frame).
func (a *GpuDescriptorAllocator) Allocate(frame, thread int, layout rhi.BindGroupLayout) (rhi.DescriptorHandle, error) {
	for _, e := range layout {
		if e.Type.HeapType() != a.desc.Type {
			return rhi.DescriptorHandle{}, fmt.Errorf("%w: %v in %v allocator", ErrHeapType, e.Type, a.desc.Type)
		}
	}
	_, size := layout.Offsets(a.heap.SizeOfDescriptor)
	align := groupAlignment(layout, a.heap.SizeOfDescriptor)
	if size == 0 {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: empty layout", rhi.ErrInvalidDesc)
	}
	if size > a.chunkBytes {
		rhi.LogCritical(a.log, "descalloc: descriptor range larger than a chunk", "bytes", size, "chunk", a.chunkBytes)
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: %d bytes, chunk holds %d", ErrTooLarge, size, a.chunkBytes)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p := &a.parts[frame][thread]
	start := interval.AlignUp(p.cursor, align)
	if len(p.chunks) == 0 || start+size > a.chunkBytes {
		chunk, err := a.takeChunk()
		if err != nil {
			rhi.LogCritical(a.log, "descalloc: gpu descriptor chunks exhausted",
				"frame", frame, "thread", thread, "chunks", a.desc.NumChunks)
			return rhi.DescriptorHandle{}, err
		}
		p.chunks = append(p.chunks, chunk)
		start = 0
	}
	offset := uint64(p.chunks[len(p.chunks)-1])*a.chunkBytes + start
	h, err := a.heap.AllocateDescriptorAt(offset, layout)
	if err != nil {
		rhi.LogCritical(a.log, "descalloc: allocate in shader visible heap", "offset", offset, "err", err)
		return rhi.DescriptorHandle{}, err
	}
	p.cursor = start + size
	p.sets = append(p.sets, offset)
	return h, nil
}

func (a *GpuDescriptorAllocator) takeChunk() (int, error) {
	if n := len(a.recycled); n > 0 {
		c := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return c, nil
	}
	if a.next >= int(a.desc.NumChunks) {
		return 0, fmt.Errorf("%w: all %d chunks in use", ErrExhausted, a.desc.NumChunks)
	}
	a.next++
	return a.next - 1, nil
}

// Reset returns every chunk owned by frame to the recycle pool.
func (a *GpuDescriptorAllocator) Reset(frame int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int
	for t := range a.parts[frame] {
		p := &a.parts[frame][t]
		for _, off := range p.sets {
			a.heap.FreeDescriptorAt(off)
		}
		n += len(p.chunks)
		a.recycled = append(a.recycled, p.chunks...)
		p.chunks = p.chunks[:0]
		p.sets = p.sets[:0]
		p.cursor = 0
	}
	a.log.Debug("descalloc: frame reset", "frame", frame, "chunks", n, "recycled", len(a.recycled))
}

// Chunks returns the byte ranges of the chunks owned by (frame, thread).
func (a *GpuDescriptorAllocator) Chunks(frame, thread int) []Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Range
	for _, c := range a.parts[frame][thread].chunks {
		begin := uint64(c) * a.chunkBytes
		out = append(out, Range{Begin: begin, End: begin + a.chunkBytes})
	}
	return out
}

// InUse returns the number of chunks owned by any partition.
func (a *GpuDescriptorAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - len(a.recycled)
}

// Destroy destroys the heap.
func (a *GpuDescriptorAllocator) Destroy() {
	a.heap.Destroy()
}
