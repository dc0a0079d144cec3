package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
)

// DescriptorType is the kind of binding a descriptor represents.
type DescriptorType uint8

const (
	DescriptorNone DescriptorType = iota
	DescriptorSampler
	DescriptorUniformBuffer
	DescriptorReadOnlyStorageBuffer
	DescriptorReadWriteStorageBuffer
	DescriptorSampledTexture
	DescriptorReadOnlyStorageTexture
	DescriptorReadWriteStorageTexture
	DescriptorAccelerationStructure
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorNone:
		return "none"
	case DescriptorSampler:
		return "sampler"
	case DescriptorUniformBuffer:
		return "uniform_buffer"
	case DescriptorReadOnlyStorageBuffer:
		return "read_only_storage_buffer"
	case DescriptorReadWriteStorageBuffer:
		return "read_write_storage_buffer"
	case DescriptorSampledTexture:
		return "sampled_texture"
	case DescriptorReadOnlyStorageTexture:
		return "read_only_storage_texture"
	case DescriptorReadWriteStorageTexture:
		return "read_write_storage_texture"
	case DescriptorAccelerationStructure:
		return "acceleration_structure"
	default:
		return fmt.Sprintf("DescriptorType(%d)", uint8(t))
	}
}

// HeapType returns the heap class a descriptor of type t lives in.
func (t DescriptorType) HeapType() DescriptorHeapType {
	if t == DescriptorSampler {
		return DescriptorHeapSampler
	}
	return DescriptorHeapResource
}

// IsBuffer reports whether t describes a buffer view.
func (t DescriptorType) IsBuffer() bool {
	return t == DescriptorUniformBuffer || t == DescriptorReadOnlyStorageBuffer ||
		t == DescriptorReadWriteStorageBuffer
}

// IsTexture reports whether t describes a texture view.
func (t DescriptorType) IsTexture() bool {
	return t == DescriptorSampledTexture || t == DescriptorReadOnlyStorageTexture ||
		t == DescriptorReadWriteStorageTexture
}

// DescriptorHeapType separates resource descriptors from samplers.
type DescriptorHeapType uint8

const (
	DescriptorHeapResource DescriptorHeapType = iota
	DescriptorHeapSampler
)

func (t DescriptorHeapType) String() string {
	if t == DescriptorHeapSampler {
		return "sampler"
	}
	return "resource"
}

// DescriptorHeapStrategy is how a heap hands out binding ranges.
type DescriptorHeapStrategy uint8

const (
	// StrategyDescriptorBuffer treats the heap as an addressable buffer;
	// allocation is offset arithmetic.
	StrategyDescriptorBuffer DescriptorHeapStrategy = iota
	// StrategyDescriptorTable allocates fixed-layout sets from a pool.
	StrategyDescriptorTable
)

func (s DescriptorHeapStrategy) String() string {
	if s == StrategyDescriptorTable {
		return "descriptor_table"
	}
	return "descriptor_buffer"
}

// DescriptorHandle addresses one descriptor slot. CPU is where the
// descriptor bytes are written; GPU is what shaders see. GPU is zero for
// heaps that are not shader visible.
type DescriptorHandle struct {
	CPU uint64
	GPU uint64
}

// IsValid reports whether h points anywhere.
func (h DescriptorHandle) IsValid() bool { return h.CPU != 0 }

// Offset returns h advanced by n bytes.
func (h DescriptorHandle) Offset(n uint64) DescriptorHandle {
	out := DescriptorHandle{CPU: h.CPU + n}
	if h.GPU != 0 {
		out.GPU = h.GPU + n
	}
	return out
}

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	Label string
	Type  DescriptorHeapType
	// Size is the capacity in descriptors of the largest type.
	Size          uint32
	ShaderVisible bool
}

// DescriptorHeap is a pool of descriptor slots.
type DescriptorHeap interface {
	Desc() DescriptorHeapDesc
	Strategy() DescriptorHeapStrategy
	// SizeOfDescriptor returns the native size of one descriptor of type t.
	// It is also the alignment descriptors of that type need.
	SizeOfDescriptor(t DescriptorType) uint64
	// Capacity returns the heap size in bytes.
	Capacity() uint64
	// StartAddress returns the handle of byte offset zero.
	StartAddress() DescriptorHandle
	// AllocateDescriptorAt makes the range at offset usable for a bind
	// group with the given layout and returns its handle. Table-style heaps
	// allocate a native set from their pool; buffer-style heaps only check
	// alignment and bounds.
	AllocateDescriptorAt(offset uint64, layout BindGroupLayout) (DescriptorHandle, error)
	// FreeDescriptorAt releases a set allocated at offset. It is a no-op for
	// buffer-style heaps.
	FreeDescriptorAt(offset uint64)
	Destroy()
}

// BufferDescriptorDesc describes a buffer view.
type BufferDescriptorDesc struct {
	Type   DescriptorType
	Offset uint64
	// Size of zero means the rest of the buffer.
	Size            uint64
	StructureStride uint32
}

// TextureDescriptorDesc describes a texture view. Zero counts mean
// "remaining levels/layers" and an undefined format means the texture's.
type TextureDescriptorDesc struct {
	Type      DescriptorType
	Format    Format
	ViewType  gputypes.TextureViewDimension
	BaseLevel uint32
	Levels    uint32
	BaseLayer uint32
	Layers    uint32
}

// Resolve fills defaults from the texture description.
func (d TextureDescriptorDesc) Resolve(tex TextureDesc) TextureDescriptorDesc {
	tex = tex.Normalized()
	if d.Format == gputypes.TextureFormatUndefined {
		d.Format = tex.Format
	}
	if d.Levels == 0 {
		d.Levels = tex.Levels - min(d.BaseLevel, tex.Levels)
	}
	if d.Layers == 0 {
		d.Layers = tex.Layers() - min(d.BaseLayer, tex.Layers())
	}
	if d.ViewType == gputypes.TextureViewDimensionUndefined {
		switch {
		case tex.Dimension == gputypes.TextureDimension3D:
			d.ViewType = gputypes.TextureViewDimension3D
		case tex.Dimension == gputypes.TextureDimension1D:
			d.ViewType = gputypes.TextureViewDimension1D
		case d.Layers > 1:
			d.ViewType = gputypes.TextureViewDimension2DArray
		default:
			d.ViewType = gputypes.TextureViewDimension2D
		}
	}
	return d
}

// BindGroupLayoutEntry is one binding of a bind group.
type BindGroupLayoutEntry struct {
	Type       DescriptorType
	Count      uint32 // 0 means 1
	Visibility ShaderStage
	Binding    uint32
	Space      uint32
}

// DescriptorCount returns the entry's array size.
func (e BindGroupLayoutEntry) DescriptorCount() uint32 { return max(e.Count, 1) }

// BindGroupLayout is the ordered list of bindings in one group. The order
// is the order descriptors are laid out in a contiguous heap range.
type BindGroupLayout []BindGroupLayoutEntry

// DescriptorTypes expands the layout into one type per descriptor slot.
func (l BindGroupLayout) DescriptorTypes() []DescriptorType {
	var out []DescriptorType
	for _, e := range l {
		for range e.DescriptorCount() {
			out = append(out, e.Type)
		}
	}
	return out
}

// Offsets returns the byte offset of every descriptor slot and the total
// size of the group, with each slot aligned to its own size.
func (l BindGroupLayout) Offsets(sizeOf func(DescriptorType) uint64) (offsets []uint64, total uint64) {
	return PackDescriptors(l.DescriptorTypes(), sizeOf)
}

// PackDescriptors lays out descriptors of the given types contiguously,
// aligning each to its native size.
func PackDescriptors(types []DescriptorType, sizeOf func(DescriptorType) uint64) ([]uint64, uint64) {
	offsets := make([]uint64, len(types))
	var cursor uint64
	for i, t := range types {
		sz := sizeOf(t)
		cursor = interval.AlignUp(cursor, sz)
		offsets[i] = cursor
		cursor += sz
	}
	return offsets, cursor
}

// StaticSampler is an immutable sampler baked into a pipeline layout.
type StaticSampler struct {
	Binding    uint32
	Space      uint32
	Visibility ShaderStage
	Desc       SamplerDesc
}

// PushConstantsDesc is the optional push constant range of a layout.
type PushConstantsDesc struct {
	Size       uint32
	Visibility ShaderStage
	Binding    uint32
	Space      uint32
}
