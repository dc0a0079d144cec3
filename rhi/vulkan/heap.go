//go:build !(js && wasm)

package vulkan

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// descriptorBufferUsage is the usage of a VK_EXT_descriptor_buffer heap:
// RESOURCE_DESCRIPTOR_BUFFER_BIT_EXT or SAMPLER_DESCRIPTOR_BUFFER_BIT_EXT.
func descriptorBufferUsage(t rhi.DescriptorHeapType) vk.BufferUsageFlags {
	if t == rhi.DescriptorHeapSampler {
		return vk.BufferUsageFlags(0x00200000) | bufferUsageShaderDeviceAddress
	}
	return vk.BufferUsageFlags(0x00400000) | bufferUsageShaderDeviceAddress
}

// DescriptorBufferHeap is a descriptor buffer. Allocation is offset
// arithmetic.
type DescriptorBufferHeap struct {
	devcore.Heap
	info vk.BufferCreateInfo
}

// Strategy reports StrategyDescriptorBuffer.
func (h *DescriptorBufferHeap) Strategy() rhi.DescriptorHeapStrategy {
	return rhi.StrategyDescriptorBuffer
}

// AllocateDescriptorAt checks that a group with layout fits at offset.
func (h *DescriptorBufferHeap) AllocateDescriptorAt(offset uint64, layout rhi.BindGroupLayout) (rhi.DescriptorHandle, error) {
	_, total := layout.Offsets(h.SizeOfDescriptor)
	if align := groupAlignment(layout, h.SizeOfDescriptor); offset%align != 0 {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: offset %d not aligned to %d", rhi.ErrInvalidDescriptor, offset, align)
	}
	if err := h.CheckRange(offset, total); err != nil {
		return rhi.DescriptorHandle{}, err
	}
	return h.HandleAt(offset), nil
}

// FreeDescriptorAt is a no-op.
func (h *DescriptorBufferHeap) FreeDescriptorAt(uint64) {}

// poolSet is one descriptor set allocated from a pool heap.
type poolSet struct {
	handle   vk.DescriptorSet
	bindings []vk.DescriptorSetLayoutBinding
}

// DescriptorPoolHeap allocates fixed-layout descriptor sets from a
// VkDescriptorPool. Each set occupies the heap range its layout packs to.
type DescriptorPoolHeap struct {
	devcore.Heap
	poolSizes []vk.DescriptorPoolSize
	maxSets   int

	mu      sync.Mutex
	sets    map[uint64]poolSet
	nextSet uintptr
}

// Strategy reports StrategyDescriptorTable.
func (h *DescriptorPoolHeap) Strategy() rhi.DescriptorHeapStrategy {
	return rhi.StrategyDescriptorTable
}

// AllocateDescriptorAt allocates a set for layout at offset.
func (h *DescriptorPoolHeap) AllocateDescriptorAt(offset uint64, layout rhi.BindGroupLayout) (rhi.DescriptorHandle, error) {
	_, total := layout.Offsets(h.SizeOfDescriptor)
	if err := h.CheckRange(offset, total); err != nil {
		return rhi.DescriptorHandle{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sets[offset]; ok {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: set already allocated at %d", rhi.ErrInvalidDescriptor, offset)
	}
	if len(h.sets) >= h.maxSets {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: pool %q has %d sets", rhi.ErrHeapExhausted, h.Desc().Label, h.maxSets)
	}
	h.nextSet++
	h.sets[offset] = poolSet{handle: vk.DescriptorSet(h.nextSet), bindings: setLayoutBindings(layout)}
	return h.HandleAt(offset), nil
}

// FreeDescriptorAt returns the set at offset to the pool.
func (h *DescriptorPoolHeap) FreeDescriptorAt(offset uint64) {
	h.mu.Lock()
	delete(h.sets, offset)
	h.mu.Unlock()
}

func (h *DescriptorPoolHeap) set(offset uint64) (poolSet, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sets[offset]
	return s, ok
}

func groupAlignment(layout rhi.BindGroupLayout, sizeOf func(rhi.DescriptorType) uint64) uint64 {
	align := uint64(1)
	for _, e := range layout {
		align = max(align, sizeOf(e.Type))
	}
	return align
}

// CreateDescriptorHeap creates a heap. Shader visible heaps follow the
// device strategy; CPU-only heaps are always plain host memory.
func (d *Device) CreateDescriptorHeap(desc rhi.DescriptorHeapDesc) (rhi.DescriptorHeap, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	if !desc.ShaderVisible || d.strategy == rhi.StrategyDescriptorBuffer {
		h := &DescriptorBufferHeap{}
		if err := d.InitHeap(&h.Heap, desc, descriptorSize); err != nil {
			return nil, err
		}
		h.info = vk.BufferCreateInfo{
			SType:       vk.StructureTypeBufferCreateInfo,
			Size:        vk.DeviceSize(h.Capacity()),
			Usage:       descriptorBufferUsage(desc.Type),
			SharingMode: vk.SharingModeExclusive,
		}
		return h, nil
	}
	h := &DescriptorPoolHeap{maxSets: int(desc.Size), sets: make(map[uint64]poolSet)}
	if err := d.InitHeap(&h.Heap, desc, descriptorSize); err != nil {
		return nil, err
	}
	for t := rhi.DescriptorSampler; t <= rhi.DescriptorAccelerationStructure; t++ {
		if t.HeapType() == desc.Type {
			h.poolSizes = append(h.poolSizes, vk.DescriptorPoolSize{Type: descriptorTypeToVk(t), DescriptorCount: desc.Size})
		}
	}
	return h, nil
}
