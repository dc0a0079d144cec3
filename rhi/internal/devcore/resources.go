package devcore

import (
	"sync"

	"github.com/PepcyCh/bisemutum-engine-sub001/internal/interval"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/hostgpu"
)

// =============================================================================
// Buffer
// =============================================================================

// Buffer is the host memory of a buffer. Backends embed it.
type Buffer struct {
	desc rhi.BufferDesc
	core *Core
	addr uint64

	// Mem is the buffer contents, padded to the backend's alignment.
	Mem []byte

	mu     sync.Mutex
	mapped bool
}

// InitBuffer allocates the memory of b. alignment pads the allocation, as
// backends do for constant buffers.
func (c *Core) InitBuffer(b *Buffer, desc rhi.BufferDesc, alignment uint64) {
	size := desc.Size
	if alignment > 1 {
		size = interval.AlignUp(size, alignment)
	}
	b.desc = desc
	b.core = c
	b.Mem = make([]byte, size)
	b.addr = c.Addr.Reserve(size, b)
}

// HostBuffer returns b. Backends' buffer types inherit it, which lets
// shared code reach the memory of any backend buffer.
func (b *Buffer) HostBuffer() *Buffer { return b }

// Desc returns the creation description.
func (b *Buffer) Desc() rhi.BufferDesc { return b.desc }

// Size returns the padded allocation size.
func (b *Buffer) Size() uint64 { return uint64(len(b.Mem)) }

// Map returns the buffer memory, or nil for device-local buffers.
func (b *Buffer) Map() []byte {
	if !b.desc.MemoryProperty.HostVisible() {
		return nil
	}
	b.mu.Lock()
	b.mapped = true
	b.mu.Unlock()
	return b.Mem
}

// Unmap ends host access.
func (b *Buffer) Unmap() {
	b.mu.Lock()
	b.mapped = false
	b.mu.Unlock()
}

// GPUAddress returns the device address of the first byte.
func (b *Buffer) GPUAddress() uint64 { return b.addr }

// Destroy releases the address range.
func (b *Buffer) Destroy() {
	if b.core != nil && b.addr != 0 {
		b.core.Addr.Release(b.addr)
		b.addr = 0
	}
}

// HostBufferOf extracts the host memory of an RHI buffer created by any
// backend of this module.
func HostBufferOf(buf rhi.Buffer) (*Buffer, error) {
	hb, ok := buf.(interface{ HostBuffer() *Buffer })
	if !ok {
		return nil, foreign("buffer", buf)
	}
	return hb.HostBuffer(), nil
}

// =============================================================================
// Texture
// =============================================================================

// Texture is the host image of a texture. Backends embed it.
type Texture struct {
	desc  rhi.TextureDesc
	Image *hostgpu.Image
}

// InitTexture allocates the image of t.
func (c *Core) InitTexture(t *Texture, desc rhi.TextureDesc) error {
	desc = desc.Normalized()
	if err := desc.Validate(); err != nil {
		return err
	}
	im, err := hostgpu.NewImage(desc)
	if err != nil {
		return err
	}
	t.desc = desc
	t.Image = im
	return nil
}

// HostTexture returns t.
func (t *Texture) HostTexture() *Texture { return t }

// Desc returns the normalized creation description.
func (t *Texture) Desc() rhi.TextureDesc { return t.desc }

// Destroy drops the image.
func (t *Texture) Destroy() { t.Image = nil }

// HostTextureOf extracts the host image of an RHI texture.
func HostTextureOf(tex rhi.Texture) (*Texture, error) {
	ht, ok := tex.(interface{ HostTexture() *Texture })
	if !ok {
		return nil, foreign("texture", tex)
	}
	return ht.HostTexture(), nil
}

// =============================================================================
// Sampler
// =============================================================================

// Sampler stores a sampler description.
type Sampler struct {
	desc rhi.SamplerDesc
}

// NewSampler returns a sampler for desc.
func NewSampler(desc rhi.SamplerDesc) *Sampler { return &Sampler{desc: desc} }

// Desc returns the sampler description.
func (s *Sampler) Desc() rhi.SamplerDesc { return s.desc }

// Destroy is a no-op.
func (s *Sampler) Destroy() {}

// =============================================================================
// Acceleration structure
// =============================================================================

// AccelerationStructure is the host storage of an acceleration structure.
type AccelerationStructure struct {
	desc rhi.AccelerationStructureDesc
	core *Core
	addr uint64

	mu         sync.Mutex
	primitives uint64
	built      bool
}

// InitAccelerationStructure reserves storage for as.
func (c *Core) InitAccelerationStructure(as *AccelerationStructure, desc rhi.AccelerationStructureDesc) {
	as.desc = desc
	as.core = c
	as.addr = c.Addr.Reserve(desc.Size, as)
}

// HostAccelerationStructure returns as.
func (as *AccelerationStructure) HostAccelerationStructure() *AccelerationStructure { return as }

// Desc returns the creation description.
func (as *AccelerationStructure) Desc() rhi.AccelerationStructureDesc { return as.desc }

// GPUAddress returns the device address of the structure.
func (as *AccelerationStructure) GPUAddress() uint64 { return as.addr }

// Destroy releases the address range.
func (as *AccelerationStructure) Destroy() {
	if as.core != nil && as.addr != 0 {
		as.core.Addr.Release(as.addr)
		as.addr = 0
	}
}

// MarkBuilt records a completed build over primitives triangles or
// instances. It runs on the queue timeline.
func (as *AccelerationStructure) MarkBuilt(primitives uint64) {
	as.mu.Lock()
	as.primitives = primitives
	as.built = true
	as.mu.Unlock()
}

// Built reports whether a build has completed and over how many primitives.
func (as *AccelerationStructure) Built() (primitives uint64, ok bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.primitives, as.built
}

// CurrentSize returns the size the structure occupies after its last build.
func (as *AccelerationStructure) CurrentSize() uint64 {
	p, _ := as.Built()
	size, _ := hostgpu.AccelerationStructureSizes(p, as.desc.Type == rhi.AccelerationStructureTopLevel)
	return size
}

// HostAccelerationStructureOf extracts the host storage of an RHI
// acceleration structure.
func HostAccelerationStructureOf(as rhi.AccelerationStructure) (*AccelerationStructure, error) {
	h, ok := as.(interface {
		HostAccelerationStructure() *AccelerationStructure
	})
	if !ok {
		return nil, foreign("acceleration structure", as)
	}
	return h.HostAccelerationStructure(), nil
}

// BuildSizes returns the memory a build needs. A non-zero numInstances
// selects a top level build.
func BuildSizes(geometries []rhi.AccelerationStructureGeometry, numInstances uint32) rhi.AccelerationStructureBuildSizes {
	prims, top := uint64(numInstances), numInstances > 0
	if !top {
		for i := range geometries {
			prims += uint64(geometries[i].NumTriangles())
		}
	}
	size, scratch := hostgpu.AccelerationStructureSizes(prims, top)
	return rhi.AccelerationStructureBuildSizes{StructureSize: size, ScratchSize: scratch}
}
