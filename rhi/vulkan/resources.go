//go:build !(js && wasm)

package vulkan

import (
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// Buffer is a VkBuffer with its tracked access.
type Buffer struct {
	devcore.Buffer
	info   vk.BufferCreateInfo
	handle vk.Buffer

	mu     sync.Mutex
	access rhi.ResourceAccessType
}

// CreateInfo returns the native creation parameters.
func (b *Buffer) CreateInfo() vk.BufferCreateInfo { return b.info }

func (b *Buffer) trackedAccess() rhi.ResourceAccessType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.access
}

func (b *Buffer) setAccess(a rhi.ResourceAccessType) {
	b.mu.Lock()
	b.access = a
	b.mu.Unlock()
}

// Texture is a VkImage with per-subresource tracked access. The layout of
// a subresource is derived from its access.
type Texture struct {
	devcore.Texture
	info   vk.ImageCreateInfo
	handle vk.Image

	mu     sync.Mutex
	states []rhi.ResourceAccessType // layer*levels + level
}

// CreateInfo returns the native creation parameters.
func (t *Texture) CreateInfo() vk.ImageCreateInfo { return t.info }

func (t *Texture) index(level, layer uint32) int {
	return int(layer*t.Desc().Levels + level)
}

func (t *Texture) trackedAccess(level, layer uint32) rhi.ResourceAccessType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[t.index(level, layer)]
}

func (t *Texture) setAccess(level, layer uint32, a rhi.ResourceAccessType) {
	t.mu.Lock()
	t.states[t.index(level, layer)] = a
	t.mu.Unlock()
}

// Layout returns the current layout of one subresource.
func (t *Texture) Layout(level, layer uint32) vk.ImageLayout {
	return imageLayout(t.trackedAccess(level, layer))
}

// Sampler is a VkSampler.
type Sampler struct {
	*devcore.Sampler
	info vk.SamplerCreateInfo
}

// CreateInfo returns the native creation parameters.
func (s *Sampler) CreateInfo() vk.SamplerCreateInfo { return s.info }

// AccelerationStructure is a VkAccelerationStructureKHR.
type AccelerationStructure struct {
	devcore.AccelerationStructure
	handle vk.AccelerationStructureKHR
}

// =============================================================================
// Creation
// =============================================================================

// CreateBuffer allocates a buffer. Uniform buffers are padded to the
// constant buffer alignment.
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
	b := &Buffer{}
	d.InitBuffer(&b.Buffer, desc, align)
	b.info = vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(b.Size()),
		Usage:       bufferUsageToVk(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	b.handle = vk.Buffer(uintptr(b.GPUAddress()))
	d.Log.Debug("vulkan: buffer created", "label", desc.Label, "size", b.Size(), "usage", desc.Usage)
	return b, nil
}

// CreateTexture allocates an image in the undefined layout.
func (d *Device) CreateTexture(desc rhi.TextureDesc) (rhi.Texture, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	t := &Texture{}
	if err := d.InitTexture(&t.Texture, desc); err != nil {
		return nil, err
	}
	n := t.Desc()
	depth, layers := uint32(1), n.Layers()
	if n.Dimension == gputypes.TextureDimension3D {
		depth = n.Extent.DepthOrArrayLayers
	}
	t.info = vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     textureDimensionToVkImageType(n.Dimension),
		Format:        textureFormatToVk(n.Format),
		Extent:        vk.Extent3D{Width: n.Extent.Width, Height: n.Extent.Height, Depth: depth},
		MipLevels:     n.Levels,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         textureUsageToVk(n.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if n.Dimension != gputypes.TextureDimension3D && layers%6 == 0 && n.Extent.Width == n.Extent.Height {
		t.info.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	t.states = make([]rhi.ResourceAccessType, n.Levels*layers)
	t.handle = vk.Image(uintptr(d.Addr.Reserve(1, t)))
	return t, nil
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc rhi.SamplerDesc) (rhi.Sampler, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	return &Sampler{Sampler: devcore.NewSampler(desc), info: samplerCreateInfo(&desc)}, nil
}

// CreateAccelerationStructure creates an acceleration structure of
// desc.Size bytes.
func (d *Device) CreateAccelerationStructure(desc rhi.AccelerationStructureDesc) (rhi.AccelerationStructure, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	as := &AccelerationStructure{}
	d.InitAccelerationStructure(&as.AccelerationStructure, desc)
	as.handle = vk.AccelerationStructureKHR(uintptr(as.GPUAddress()))
	return as, nil
}

// AccelerationStructureBuildSizes returns the memory a build needs. A
// non-zero numInstances selects a top level build.
func (d *Device) AccelerationStructureBuildSizes(geometries []rhi.AccelerationStructureGeometry, numInstances uint32) rhi.AccelerationStructureBuildSizes {
	return devcore.BuildSizes(geometries, numInstances)
}
