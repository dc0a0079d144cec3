package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// ErrInvalidAllocation is returned when freeing a range the suballocator
// does not own.
var ErrInvalidAllocation = errors.New("resource: invalid buffer allocation")

// DefaultBlockSize is the size of a suballocator base buffer.
const DefaultBlockSize = 1 << 20

// BufferSuballocatorDesc configures a BufferSuballocator.
type BufferSuballocatorDesc struct {
	Label string
	// BlockSize is the size of each base buffer. Requests larger than it
	// get a dedicated block.
	BlockSize      uint64
	Usage          rhi.BufferUsage
	MemoryProperty rhi.MemoryProperty
}

// BufferAllocation is a range of a base buffer.
type BufferAllocation struct {
	Buffer rhi.Buffer
	Offset uint64
	Size   uint64
	block  int
}

type bufferBlock struct {
	buf  rhi.Buffer
	free *interval.Set
}

// BufferSuballocator carves aligned ranges out of base buffers. Ranges are
// placed at the lowest free address of the first block that fits, so a
// freed range is reused before the suballocator grows. It is safe for
// concurrent use.
type BufferSuballocator struct {
	device rhi.Device
	desc   BufferSuballocatorDesc

	mu     sync.Mutex
	blocks []*bufferBlock
}

// NewBufferSuballocator creates a suballocator with one base buffer.
func NewBufferSuballocator(device rhi.Device, desc BufferSuballocatorDesc) (*BufferSuballocator, error) {
	if desc.BlockSize == 0 {
		desc.BlockSize = DefaultBlockSize
	}
	s := &BufferSuballocator{device: device, desc: desc}
	if _, err := s.addBlock(desc.BlockSize); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BufferSuballocator) addBlock(size uint64) (*bufferBlock, error) {
	buf, err := s.device.CreateBuffer(rhi.BufferDesc{
		Label:          fmt.Sprintf("%s #%d", s.desc.Label, len(s.blocks)),
		Size:           size,
		Usage:          s.desc.Usage,
		MemoryProperty: s.desc.MemoryProperty,
	})
	if err != nil {
		return nil, fmt.Errorf("resource: create suballocator block: %w", err)
	}
	b := &bufferBlock{buf: buf, free: interval.New(size)}
	s.blocks = append(s.blocks, b)
	return b, nil
}

// Allocate returns a range of size bytes aligned to alignment.
func (s *BufferSuballocator) Allocate(size, alignment uint64) (BufferAllocation, error) {
	if size == 0 {
		return BufferAllocation{}, fmt.Errorf("%w: zero-sized allocation", rhi.ErrInvalidDesc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.blocks {
		if off, ok := b.free.Allocate(size, alignment); ok {
			return BufferAllocation{Buffer: b.buf, Offset: off, Size: size, block: i}, nil
		}
	}
	b, err := s.addBlock(max(size, s.desc.BlockSize))
	if err != nil {
		return BufferAllocation{}, err
	}
	off, _ := b.free.Allocate(size, alignment)
	return BufferAllocation{Buffer: b.buf, Offset: off, Size: size, block: len(s.blocks) - 1}, nil
}

// Free returns a range to its block.
func (s *BufferSuballocator) Free(a BufferAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.block < 0 || a.block >= len(s.blocks) || s.blocks[a.block].buf != a.Buffer || a.Size == 0 {
		return ErrInvalidAllocation
	}
	b := s.blocks[a.block]
	b.free.Free(a.Offset, a.Size)
	return nil
}

// NumBlocks returns the number of base buffers.
func (s *BufferSuballocator) NumBlocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// Destroy destroys every base buffer.
func (s *BufferSuballocator) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		b.buf.Destroy()
	}
	s.blocks = nil
}
