package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

var (
	// ErrDestroyed is returned when a view is requested from a destroyed
	// resource.
	ErrDestroyed = errors.New("resource: destroyed")
	// ErrNotHostVisible is returned when writing a GPU-only buffer.
	ErrNotHostVisible = errors.New("resource: buffer is not host visible")
)

// DescriptorAllocator provides CPU descriptor slots for views.
// *descalloc.CpuDescriptorAllocator implements it.
type DescriptorAllocator interface {
	AllocateOne(t rhi.DescriptorType) (rhi.DescriptorHandle, error)
	Free(h rhi.DescriptorHandle)
}

// viewCache maps structural view keys to descriptor handles.
type viewCache[K comparable] struct {
	mu    sync.Mutex
	alloc DescriptorAllocator
	views map[K]rhi.DescriptorHandle
	dead  bool
}

func (c *viewCache[K]) get(key K, t rhi.DescriptorType, write func(rhi.DescriptorHandle) error) (rhi.DescriptorHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return rhi.DescriptorHandle{}, ErrDestroyed
	}
	if h, ok := c.views[key]; ok {
		return h, nil
	}
	h, err := c.alloc.AllocateOne(t)
	if err != nil {
		return rhi.DescriptorHandle{}, err
	}
	if err := write(h); err != nil {
		c.alloc.Free(h)
		return rhi.DescriptorHandle{}, err
	}
	if c.views == nil {
		c.views = make(map[K]rhi.DescriptorHandle)
	}
	c.views[key] = h
	return h, nil
}

func (c *viewCache[K]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.views)
}

func (c *viewCache[K]) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.views {
		c.alloc.Free(h)
	}
	c.views = nil
	c.dead = true
}

// =============================================================================
// Buffer
// =============================================================================

// BufferDesc describes a buffer. A buffer with Frames > 1 holds one region
// per frame in flight so that per-frame data never races the GPU.
type BufferDesc struct {
	rhi.BufferDesc
	Frames int
}

// BufferView is the cache key of a buffer descriptor.
type BufferView struct {
	Type rhi.DescriptorType
	// Offset is relative to the frame region.
	Offset uint64
	// Size of zero means the rest of the frame region.
	Size            uint64
	StructureStride uint32
	Frame           int
}

// Buffer is an RHI buffer with cached descriptor views.
type Buffer struct {
	device     rhi.Device
	buf        rhi.Buffer
	desc       BufferDesc
	regionSize uint64
	views      viewCache[BufferView]
}

// NewBuffer creates a buffer. desc.Size is the size of one frame region.
func NewBuffer(device rhi.Device, alloc DescriptorAllocator, desc BufferDesc) (*Buffer, error) {
	desc.Frames = max(desc.Frames, 1)
	props := device.Properties()
	region := desc.Size
	if desc.Frames > 1 {
		align := max(props.ConstantBufferAlignment, props.StorageBufferAlignment, 1)
		region = interval.AlignUp(desc.Size, align)
	}
	raw := desc.BufferDesc
	raw.Size = region * uint64(desc.Frames)
	buf, err := device.CreateBuffer(raw)
	if err != nil {
		return nil, fmt.Errorf("resource: create buffer %q: %w", desc.Label, err)
	}
	return &Buffer{
		device:     device,
		buf:        buf,
		desc:       desc,
		regionSize: region,
		views:      viewCache[BufferView]{alloc: alloc},
	}, nil
}

// RHI returns the underlying buffer.
func (b *Buffer) RHI() rhi.Buffer { return b.buf }

// Desc returns the creation description.
func (b *Buffer) Desc() BufferDesc { return b.desc }

// FrameOffset returns the byte offset of frame's region.
func (b *Buffer) FrameOffset(frame int) uint64 {
	return uint64(frame%b.desc.Frames) * b.regionSize
}

// Descriptor returns the descriptor for view, creating it on first use.
func (b *Buffer) Descriptor(view BufferView) (rhi.DescriptorHandle, error) {
	view.Frame %= b.desc.Frames
	return b.views.get(view, view.Type, func(h rhi.DescriptorHandle) error {
		size := view.Size
		if size == 0 {
			size = b.regionSize - min(view.Offset, b.regionSize)
		}
		return b.device.CreateBufferDescriptor(b.buf, rhi.BufferDescriptorDesc{
			Type:            view.Type,
			Offset:          b.FrameOffset(view.Frame) + view.Offset,
			Size:            size,
			StructureStride: view.StructureStride,
		}, h)
	})
}

// Write copies data into frame's region at offset. The buffer must be host
// visible.
func (b *Buffer) Write(frame int, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.regionSize {
		return fmt.Errorf("%w: write [%d, %d) exceeds region of %d bytes", rhi.ErrInvalidDesc,
			offset, offset+uint64(len(data)), b.regionSize)
	}
	mapped := b.buf.Map()
	if mapped == nil {
		return fmt.Errorf("%w: %q is %v", ErrNotHostVisible, b.desc.Label, b.desc.MemoryProperty)
	}
	defer b.buf.Unmap()
	copy(mapped[b.FrameOffset(frame)+offset:], data)
	return nil
}

// NumViews returns the number of cached descriptors.
func (b *Buffer) NumViews() int { return b.views.len() }

// Destroy frees every cached descriptor and the buffer.
func (b *Buffer) Destroy() {
	b.views.release()
	b.buf.Destroy()
}

// =============================================================================
// Texture
// =============================================================================

// Texture is an RHI texture with cached descriptor views.
type Texture struct {
	device rhi.Device
	tex    rhi.Texture
	owned  bool
	views  viewCache[rhi.TextureDescriptorDesc]
}

// NewTexture creates a texture.
func NewTexture(device rhi.Device, alloc DescriptorAllocator, desc rhi.TextureDesc) (*Texture, error) {
	tex, err := device.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("resource: create texture %q: %w", desc.Label, err)
	}
	t := WrapTexture(device, alloc, tex)
	t.owned = true
	return t, nil
}

// WrapTexture wraps a texture owned elsewhere, such as a swapchain image.
// Destroy releases the views but not the texture.
func WrapTexture(device rhi.Device, alloc DescriptorAllocator, tex rhi.Texture) *Texture {
	return &Texture{device: device, tex: tex, views: viewCache[rhi.TextureDescriptorDesc]{alloc: alloc}}
}

// RHI returns the underlying texture.
func (t *Texture) RHI() rhi.Texture { return t.tex }

// Desc returns the texture description.
func (t *Texture) Desc() rhi.TextureDesc { return t.tex.Desc() }

// Descriptor returns the descriptor for view, creating it on first use.
// Views that resolve to the same parameters share a descriptor.
func (t *Texture) Descriptor(view rhi.TextureDescriptorDesc) (rhi.DescriptorHandle, error) {
	view = view.Resolve(t.tex.Desc())
	return t.views.get(view, view.Type, func(h rhi.DescriptorHandle) error {
		return t.device.CreateTextureDescriptor(t.tex, view, h)
	})
}

// NumViews returns the number of cached descriptors.
func (t *Texture) NumViews() int { return t.views.len() }

// Destroy frees every cached descriptor and, when owned, the texture.
func (t *Texture) Destroy() {
	t.views.release()
	if t.owned {
		t.tex.Destroy()
	}
}

// =============================================================================
// Sampler
// =============================================================================

// Sampler is an RHI sampler with its descriptor.
type Sampler struct {
	sampler rhi.Sampler
	alloc   DescriptorAllocator
	handle  rhi.DescriptorHandle
}

// NewSampler creates a sampler and writes its descriptor with a slot from
// alloc, which must serve the sampler heap.
func NewSampler(device rhi.Device, alloc DescriptorAllocator, desc rhi.SamplerDesc) (*Sampler, error) {
	s, err := device.CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("resource: create sampler: %w", err)
	}
	h, err := alloc.AllocateOne(rhi.DescriptorSampler)
	if err != nil {
		s.Destroy()
		return nil, err
	}
	if err := device.CreateSamplerDescriptor(s, h); err != nil {
		alloc.Free(h)
		s.Destroy()
		return nil, err
	}
	return &Sampler{sampler: s, alloc: alloc, handle: h}, nil
}

// RHI returns the underlying sampler.
func (s *Sampler) RHI() rhi.Sampler { return s.sampler }

// Descriptor returns the sampler descriptor.
func (s *Sampler) Descriptor() rhi.DescriptorHandle { return s.handle }

// Destroy frees the descriptor and the sampler.
func (s *Sampler) Destroy() {
	s.alloc.Free(s.handle)
	s.sampler.Destroy()
}
