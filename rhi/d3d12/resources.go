package d3d12

import (
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// allSubresources is D3D12_RESOURCE_BARRIER_ALL_SUBRESOURCES.
const allSubresources = ^uint32(0)

// resourceDesc is D3D12_RESOURCE_DESC.
type resourceDesc struct {
	Dimension        resourceDimension
	Alignment        uint64
	Width            uint64
	Height           uint32
	DepthOrArraySize uint16
	MipLevels        uint16
	Format           dxgiFormat
	Flags            resourceFlags
}

// Buffer is a committed buffer resource.
type Buffer struct {
	devcore.Buffer
	desc     resourceDesc
	heapType heapType

	mu    sync.Mutex
	state resourceState
}

// ResourceDesc returns the native creation parameters.
func (b *Buffer) ResourceDesc() resourceDesc { return b.desc }

func (b *Buffer) currentState() resourceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Buffer) setState(s resourceState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Texture is a committed texture resource with one tracked state per
// subresource.
type Texture struct {
	devcore.Texture
	desc   resourceDesc
	handle uint64

	mu     sync.Mutex
	states []resourceState // by subresource index
}

// ResourceDesc returns the native creation parameters.
func (t *Texture) ResourceDesc() resourceDesc { return t.desc }

// subresource is D3D12CalcSubresource without planes.
func (t *Texture) subresource(level, layer uint32) uint32 {
	return level + layer*t.Desc().Levels
}

func (t *Texture) currentState(level, layer uint32) resourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[t.subresource(level, layer)]
}

func (t *Texture) setState(level, layer uint32, s resourceState) {
	t.mu.Lock()
	t.states[t.subresource(level, layer)] = s
	t.mu.Unlock()
}

// uniformState reports whether every subresource is in the same state.
func (t *Texture) uniformState() (resourceState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.states[1:] {
		if s != t.states[0] {
			return 0, false
		}
	}
	return t.states[0], true
}

// State returns the current state of one subresource.
func (t *Texture) State(level, layer uint32) resourceState {
	return t.currentState(level, layer)
}

// Sampler is a sampler descriptor template.
type Sampler struct {
	*devcore.Sampler
	desc samplerDesc
}

// AccelerationStructure lives in a buffer in the
// RAYTRACING_ACCELERATION_STRUCTURE state.
type AccelerationStructure struct {
	devcore.AccelerationStructure
}

// =============================================================================
// Creation
// =============================================================================

// CreateBuffer creates a committed buffer. Uniform buffers are padded to
// D3D12_CONSTANT_BUFFER_DATA_PLACEMENT_ALIGNMENT.
func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	var align uint64
	if desc.Usage.Contains(rhi.BufferUsageUniform) {
		align = constantBufferAlignment
	}
	b := &Buffer{heapType: memoryPropertyToHeapType(desc.MemoryProperty)}
	d.InitBuffer(&b.Buffer, desc, align)
	b.desc = resourceDesc{
		Dimension:        resourceDimensionBuffer,
		Alignment:        defaultResourcePlacementAlignment,
		Width:            b.Size(),
		Height:           1,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Flags:            bufferUsageToFlags(desc.Usage),
	}
	b.state = initialBufferState(b.heapType, desc.Usage)
	d.Log.Debug("d3d12: buffer created", "label", desc.Label, "size", b.Size(), "state", b.state)
	return b, nil
}

// CreateTexture creates a committed texture in the COMMON state.
func (d *Device) CreateTexture(desc rhi.TextureDesc) (rhi.Texture, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	t := &Texture{}
	if err := d.InitTexture(&t.Texture, desc); err != nil {
		return nil, err
	}
	n := t.Desc()
	t.desc = resourceDesc{
		Dimension:        textureDimensionToD3D12(n.Dimension),
		Alignment:        defaultResourcePlacementAlignment,
		Width:            uint64(n.Extent.Width),
		Height:           n.Extent.Height,
		DepthOrArraySize: uint16(n.Extent.DepthOrArrayLayers),
		MipLevels:        uint16(n.Levels),
		Format:           textureFormatToDXGI(n.Format),
		Flags:            textureUsageToFlags(n.Usage),
	}
	if n.Dimension == gputypes.TextureDimension1D {
		t.desc.Height = 1
	}
	t.states = make([]resourceState, n.Levels*n.Layers())
	t.handle = d.Addr.Reserve(1, t)
	return t, nil
}

// CreateSampler creates a sampler template written into heaps by
// CreateSamplerDescriptor.
func (d *Device) CreateSampler(desc rhi.SamplerDesc) (rhi.Sampler, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	return &Sampler{Sampler: devcore.NewSampler(desc), desc: samplerDescToD3D12(&desc)}, nil
}

// CreateAccelerationStructure creates an acceleration structure. Its size
// is rounded to D3D12_RAYTRACING_ACCELERATION_STRUCTURE_BYTE_ALIGNMENT.
func (d *Device) CreateAccelerationStructure(desc rhi.AccelerationStructureDesc) (rhi.AccelerationStructure, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	desc.Size = (desc.Size + accelerationStructureAlignment - 1) &^ (accelerationStructureAlignment - 1)
	as := &AccelerationStructure{}
	d.InitAccelerationStructure(&as.AccelerationStructure, desc)
	return as, nil
}

// AccelerationStructureBuildSizes returns the prebuild info of a build.
func (d *Device) AccelerationStructureBuildSizes(geometries []rhi.AccelerationStructureGeometry, numInstances uint32) rhi.AccelerationStructureBuildSizes {
	sizes := devcore.BuildSizes(geometries, numInstances)
	sizes.StructureSize = (sizes.StructureSize + accelerationStructureAlignment - 1) &^ (accelerationStructureAlignment - 1)
	return sizes
}
