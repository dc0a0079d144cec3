package devcore

import (
	"fmt"
	"sync"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// Descriptor is the decoded content of one descriptor slot.
type Descriptor struct {
	Type        rhi.DescriptorType
	Buffer      *Buffer
	BufferView  rhi.BufferDescriptorDesc
	Texture     *Texture
	TextureView rhi.TextureDescriptorDesc
	Sampler     rhi.SamplerDesc
	AS          *AccelerationStructure
}

// DescriptorTable maps CPU descriptor addresses to their content.
type DescriptorTable struct {
	mu    sync.RWMutex
	slots map[uint64]Descriptor
}

// NewDescriptorTable returns an empty table.
func NewDescriptorTable() *DescriptorTable {
	return &DescriptorTable{slots: make(map[uint64]Descriptor)}
}

// Write stores d at addr.
func (t *DescriptorTable) Write(addr uint64, d Descriptor) {
	t.mu.Lock()
	t.slots[addr] = d
	t.mu.Unlock()
}

// Read returns the descriptor at addr.
func (t *DescriptorTable) Read(addr uint64) (Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.slots[addr]
	return d, ok
}

// Copy duplicates the slot at src into dst. An empty source clears dst.
func (t *DescriptorTable) Copy(dst, src uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.slots[src]; ok {
		t.slots[dst] = d
	} else {
		delete(t.slots, dst)
	}
}

// Clear drops every slot in [base, base+size).
func (t *DescriptorTable) Clear(base, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr := range t.slots {
		if addr >= base && addr < base+size {
			delete(t.slots, addr)
		}
	}
}

// Len returns the number of written slots.
func (t *DescriptorTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

// =============================================================================
// Heap
// =============================================================================

// Heap is the addressable part of a descriptor heap. Backends embed it and
// add their allocation strategy.
type Heap struct {
	desc     rhi.DescriptorHeapDesc
	core     *Core
	capacity uint64
	cpu      uint64
	gpu      uint64
	sizeOf   func(rhi.DescriptorType) uint64
}

// InitHeap reserves CPU and, for shader visible heaps, GPU address ranges
// large enough for desc.Size descriptors of the largest type.
func (c *Core) InitHeap(h *Heap, desc rhi.DescriptorHeapDesc, sizeOf func(rhi.DescriptorType) uint64) error {
	if desc.Size == 0 {
		return fmt.Errorf("%w: descriptor heap %q has zero size", rhi.ErrInvalidDesc, desc.Label)
	}
	var largest uint64
	for t := rhi.DescriptorSampler; t <= rhi.DescriptorAccelerationStructure; t++ {
		if t.HeapType() == desc.Type {
			largest = max(largest, sizeOf(t))
		}
	}
	h.desc = desc
	h.core = c
	h.sizeOf = sizeOf
	h.capacity = uint64(desc.Size) * largest
	h.cpu = c.Addr.Reserve(h.capacity, h)
	if desc.ShaderVisible {
		h.gpu = c.Addr.Reserve(h.capacity, h)
	}
	return nil
}

// HostHeap returns h.
func (h *Heap) HostHeap() *Heap { return h }

// Desc returns the creation description.
func (h *Heap) Desc() rhi.DescriptorHeapDesc { return h.desc }

// Capacity returns the heap size in bytes.
func (h *Heap) Capacity() uint64 { return h.capacity }

// SizeOfDescriptor returns the native size of a descriptor of type t.
func (h *Heap) SizeOfDescriptor(t rhi.DescriptorType) uint64 { return h.sizeOf(t) }

// StartAddress returns the handle of offset zero.
func (h *Heap) StartAddress() rhi.DescriptorHandle {
	return rhi.DescriptorHandle{CPU: h.cpu, GPU: h.gpu}
}

// HandleAt returns the handle of a byte offset.
func (h *Heap) HandleAt(offset uint64) rhi.DescriptorHandle {
	return h.StartAddress().Offset(offset)
}

// CheckRange fails with ErrHeapExhausted when [offset, offset+size) does
// not fit in the heap.
func (h *Heap) CheckRange(offset, size uint64) error {
	if offset+size > h.capacity {
		return fmt.Errorf("%w: %q range [%d, %d) exceeds %d bytes", rhi.ErrHeapExhausted,
			h.desc.Label, offset, offset+size, h.capacity)
	}
	return nil
}

// Destroy releases the address ranges and every descriptor written there.
func (h *Heap) Destroy() {
	if h.core == nil || h.cpu == 0 {
		return
	}
	h.core.Descriptors.Clear(h.cpu, h.capacity)
	h.core.Addr.Release(h.cpu)
	if h.gpu != 0 {
		h.core.Addr.Release(h.gpu)
	}
	h.cpu, h.gpu = 0, 0
}

// resolve maps a handle to its heap and CPU offset. GPU-only handles are
// translated through the heap's shader visible range.
func (c *Core) resolve(handle rhi.DescriptorHandle) (*Heap, uint64, error) {
	addr := handle.CPU
	if addr == 0 {
		addr = handle.GPU
	}
	owner, off, ok := c.Addr.Lookup(addr)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %#x", rhi.ErrInvalidDescriptor, addr)
	}
	h, ok := owner.(*Heap)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %#x is not in a descriptor heap", rhi.ErrInvalidDescriptor, addr)
	}
	return h, off, nil
}

// ResolveDescriptor returns the descriptor a handle points at.
func (c *Core) ResolveDescriptor(handle rhi.DescriptorHandle) (Descriptor, bool) {
	h, off, err := c.resolve(handle)
	if err != nil {
		return Descriptor{}, false
	}
	return c.Descriptors.Read(h.cpu + off)
}

func (c *Core) writeDescriptor(dst rhi.DescriptorHandle, d Descriptor) error {
	h, off, err := c.resolve(dst)
	if err != nil {
		return err
	}
	if h.desc.Type != d.Type.HeapType() {
		return fmt.Errorf("%w: %v descriptor in %v heap %q", rhi.ErrInvalidDescriptor,
			d.Type, h.desc.Type, h.desc.Label)
	}
	size := h.sizeOf(d.Type)
	if off%size != 0 {
		return fmt.Errorf("%w: offset %d not aligned to %d", rhi.ErrInvalidDescriptor, off, size)
	}
	if err := h.CheckRange(off, size); err != nil {
		return err
	}
	c.Descriptors.Write(h.cpu+off, d)
	return nil
}

// =============================================================================
// Descriptor creation
// =============================================================================

// CreateBufferDescriptor writes a buffer view at dst.
func (c *Core) CreateBufferDescriptor(buf rhi.Buffer, view rhi.BufferDescriptorDesc, dst rhi.DescriptorHandle) error {
	b, err := HostBufferOf(buf)
	if err != nil {
		return err
	}
	if !view.Type.IsBuffer() {
		return fmt.Errorf("%w: %v is not a buffer descriptor", rhi.ErrInvalidDesc, view.Type)
	}
	if view.Size == 0 {
		view.Size = b.Size() - min(view.Offset, b.Size())
	}
	if view.Offset+view.Size > b.Size() {
		return fmt.Errorf("%w: view [%d, %d) exceeds buffer %q", rhi.ErrInvalidDesc,
			view.Offset, view.Offset+view.Size, b.desc.Label)
	}
	if view.Type == rhi.DescriptorUniformBuffer {
		if a := c.Props.ConstantBufferAlignment; a > 0 && view.Offset%a != 0 {
			return fmt.Errorf("%w: uniform view offset %d not aligned to %d", rhi.ErrInvalidDesc, view.Offset, a)
		}
	}
	return c.writeDescriptor(dst, Descriptor{Type: view.Type, Buffer: b, BufferView: view})
}

// CreateTextureDescriptor writes a texture view at dst.
func (c *Core) CreateTextureDescriptor(tex rhi.Texture, view rhi.TextureDescriptorDesc, dst rhi.DescriptorHandle) error {
	t, err := HostTextureOf(tex)
	if err != nil {
		return err
	}
	if !view.Type.IsTexture() {
		return fmt.Errorf("%w: %v is not a texture descriptor", rhi.ErrInvalidDesc, view.Type)
	}
	view = view.Resolve(t.desc)
	if view.BaseLevel+view.Levels > t.desc.Levels || view.BaseLayer+view.Layers > t.desc.Layers() {
		return fmt.Errorf("%w: view outside texture %q", rhi.ErrInvalidDesc, t.desc.Label)
	}
	return c.writeDescriptor(dst, Descriptor{Type: view.Type, Texture: t, TextureView: view})
}

// CreateSamplerDescriptor writes a sampler at dst.
func (c *Core) CreateSamplerDescriptor(s rhi.Sampler, dst rhi.DescriptorHandle) error {
	if s == nil {
		return fmt.Errorf("%w: nil sampler", rhi.ErrInvalidDesc)
	}
	return c.writeDescriptor(dst, Descriptor{Type: rhi.DescriptorSampler, Sampler: s.Desc()})
}

// CreateAccelerationStructureDescriptor writes an acceleration structure
// view at dst.
func (c *Core) CreateAccelerationStructureDescriptor(as rhi.AccelerationStructure, dst rhi.DescriptorHandle) error {
	h, err := HostAccelerationStructureOf(as)
	if err != nil {
		return err
	}
	return c.writeDescriptor(dst, Descriptor{Type: rhi.DescriptorAccelerationStructure, AS: h})
}

// CopyDescriptors packs src into the range starting at dst.
func (c *Core) CopyDescriptors(dst rhi.DescriptorHandle, src []rhi.DescriptorHandle, types []rhi.DescriptorType) error {
	if len(src) != len(types) {
		return fmt.Errorf("%w: %d sources for %d types", rhi.ErrInvalidDesc, len(src), len(types))
	}
	h, base, err := c.resolve(dst)
	if err != nil {
		return err
	}
	offsets, total := rhi.PackDescriptors(types, h.sizeOf)
	if err := h.CheckRange(base, total); err != nil {
		return err
	}
	for i, s := range src {
		sh, soff, err := c.resolve(s)
		if err != nil {
			return err
		}
		c.Descriptors.Copy(h.cpu+base+offsets[i], sh.cpu+soff)
	}
	return nil
}
