package d3d12

import (
	"fmt"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// descriptorHeapType is D3D12_DESCRIPTOR_HEAP_TYPE.
type descriptorHeapType uint32

const (
	descriptorHeapTypeCBVSRVUAV descriptorHeapType = 0
	descriptorHeapTypeSampler   descriptorHeapType = 1
)

const (
	// descriptorIncrement is the handle increment size reported for every
	// heap type.
	descriptorIncrement = 32

	maxShaderVisibleSamplers  = 2048
	maxShaderVisibleResources = 1_000_000
)

func descriptorSize(rhi.DescriptorType) uint64 { return descriptorIncrement }

// DescriptorHeap is an ID3D12DescriptorHeap. Handles are the heap start
// plus a multiple of the increment size, so allocation is offset
// arithmetic.
type DescriptorHeap struct {
	devcore.Heap
	heapType descriptorHeapType
}

// Strategy reports StrategyDescriptorBuffer.
func (h *DescriptorHeap) Strategy() rhi.DescriptorHeapStrategy {
	return rhi.StrategyDescriptorBuffer
}

// AllocateDescriptorAt checks that a table for layout fits at offset.
func (h *DescriptorHeap) AllocateDescriptorAt(offset uint64, layout rhi.BindGroupLayout) (rhi.DescriptorHandle, error) {
	if offset%descriptorIncrement != 0 {
		return rhi.DescriptorHandle{}, fmt.Errorf("%w: offset %d is not a multiple of the increment %d",
			rhi.ErrInvalidDescriptor, offset, descriptorIncrement)
	}
	for _, e := range layout {
		if e.Type.HeapType() != h.Desc().Type {
			return rhi.DescriptorHandle{}, fmt.Errorf("%w: %v binding in a %v heap",
				rhi.ErrInvalidDescriptor, e.Type, h.Desc().Type)
		}
	}
	_, total := layout.Offsets(descriptorSize)
	if err := h.CheckRange(offset, total); err != nil {
		return rhi.DescriptorHandle{}, err
	}
	return h.HandleAt(offset), nil
}

// FreeDescriptorAt is a no-op.
func (h *DescriptorHeap) FreeDescriptorAt(uint64) {}

// CreateDescriptorHeap creates a CBV/SRV/UAV or sampler heap.
func (d *Device) CreateDescriptorHeap(desc rhi.DescriptorHeapDesc) (rhi.DescriptorHeap, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	h := &DescriptorHeap{heapType: descriptorHeapTypeCBVSRVUAV}
	limit := uint32(maxShaderVisibleResources)
	if desc.Type == rhi.DescriptorHeapSampler {
		h.heapType = descriptorHeapTypeSampler
		limit = maxShaderVisibleSamplers
	}
	if desc.ShaderVisible && desc.Size > limit {
		return nil, fmt.Errorf("%w: shader visible %v heap of %d descriptors exceeds %d",
			rhi.ErrInvalidDesc, desc.Type, desc.Size, limit)
	}
	if err := d.InitHeap(&h.Heap, desc, descriptorSize); err != nil {
		return nil, err
	}
	return h, nil
}
