package rhi

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label          string
	Size           uint64
	Usage          BufferUsage
	MemoryProperty MemoryProperty
}

// Validate checks the description.
func (d *BufferDesc) Validate() error {
	if d.Size == 0 {
		return fmt.Errorf("%w: buffer %q has zero size", ErrInvalidDesc, d.Label)
	}
	return nil
}

// TextureDesc describes a texture to create.
type TextureDesc struct {
	Label string
	// Extent holds width, height and depth (3D) or array layers (1D/2D).
	Extent    gputypes.Extent3D
	Levels    uint32 // 0 means 1
	Format    Format
	Dimension gputypes.TextureDimension // Undefined means 2D
	Usage     TextureUsage
}

// Normalized returns d with defaults filled in.
func (d TextureDesc) Normalized() TextureDesc {
	if d.Levels == 0 {
		d.Levels = 1
	}
	if d.Dimension == gputypes.TextureDimensionUndefined {
		d.Dimension = gputypes.TextureDimension2D
	}
	if d.Extent.Height == 0 {
		d.Extent.Height = 1
	}
	if d.Extent.DepthOrArrayLayers == 0 {
		d.Extent.DepthOrArrayLayers = 1
	}
	return d
}

// Validate checks the description.
func (d *TextureDesc) Validate() error {
	n := d.Normalized()
	if n.Extent.Width == 0 {
		return fmt.Errorf("%w: texture %q has zero width", ErrInvalidDesc, d.Label)
	}
	if _, ok := LookupFormat(n.Format); !ok {
		return fmt.Errorf("%w: texture %q format %v", ErrUnsupportedFormat, d.Label, n.Format)
	}
	if n.Levels > MaxMipLevels(n.Extent) {
		return fmt.Errorf("%w: texture %q requests %d levels, at most %d", ErrInvalidDesc,
			d.Label, n.Levels, MaxMipLevels(n.Extent))
	}
	return nil
}

// Layers returns the number of array layers.
func (d TextureDesc) Layers() uint32 {
	n := d.Normalized()
	if n.Dimension == gputypes.TextureDimension3D {
		return 1
	}
	return n.Extent.DepthOrArrayLayers
}

// LevelExtent returns the extent of one mip level. For array textures the
// third component is 1.
func (d TextureDesc) LevelExtent(level uint32) gputypes.Extent3D {
	n := d.Normalized()
	depth := uint32(1)
	if n.Dimension == gputypes.TextureDimension3D {
		depth = max(n.Extent.DepthOrArrayLayers>>level, 1)
	}
	return gputypes.Extent3D{
		Width:              max(n.Extent.Width>>level, 1),
		Height:             max(n.Extent.Height>>level, 1),
		DepthOrArrayLayers: depth,
	}
}

// MaxMipLevels returns the length of the full mip chain for e.
func MaxMipLevels(e gputypes.Extent3D) uint32 {
	return uint32(bits.Len32(max(e.Width, e.Height, 1)))
}

// SamplerDesc describes a sampler.
type SamplerDesc = gputypes.SamplerDescriptor

// Buffer is a linear GPU allocation.
type Buffer interface {
	// Desc returns the description the buffer was created with.
	Desc() BufferDesc
	// Size returns the allocated size, which may exceed Desc().Size
	// because of alignment padding.
	Size() uint64
	// Map returns the host view of the buffer memory, or nil when the
	// memory is not host visible.
	Map() []byte
	// Unmap ends host access started by Map.
	Unmap()
	// GPUAddress returns the device address of the first byte.
	GPUAddress() uint64
	Destroy()
}

// Texture is an image allocation with mip levels and array layers.
type Texture interface {
	Desc() TextureDesc
	Destroy()
}

// Sampler is an immutable sampling state object.
type Sampler interface {
	Desc() SamplerDesc
	Destroy()
}

// AccelerationStructureType selects bottom or top level structures.
type AccelerationStructureType uint8

const (
	AccelerationStructureBottomLevel AccelerationStructureType = iota
	AccelerationStructureTopLevel
)

// AccelerationStructureDesc describes an acceleration structure.
type AccelerationStructureDesc struct {
	Label string
	Type  AccelerationStructureType
	Size  uint64
}

// AccelerationStructure is a ray tracing acceleration structure.
type AccelerationStructure interface {
	Desc() AccelerationStructureDesc
	GPUAddress() uint64
	Destroy()
}

// AccelerationStructureGeometry is one triangle geometry of a bottom level
// structure.
type AccelerationStructureGeometry struct {
	VertexBuffer Buffer
	VertexOffset uint64
	VertexStride uint64
	VertexFormat gputypes.VertexFormat
	NumVertices  uint32
	// IndexBuffer may be nil for non-indexed geometry.
	IndexBuffer Buffer
	IndexOffset uint64
	IndexFormat gputypes.IndexFormat
	NumIndices  uint32
	Opaque      bool
}

// NumTriangles returns the number of triangles in g.
func (g *AccelerationStructureGeometry) NumTriangles() uint32 {
	if g.IndexBuffer != nil {
		return g.NumIndices / 3
	}
	return g.NumVertices / 3
}

// BottomLevelBuildDesc describes one bottom level build.
type BottomLevelBuildDesc struct {
	Geometries      []AccelerationStructureGeometry
	Dst             AccelerationStructure
	Scratch         Buffer
	ScratchOffset   uint64
	AllowCompaction bool
}

// TopLevelBuildDesc describes one top level build.
type TopLevelBuildDesc struct {
	Instances       Buffer
	InstancesOffset uint64
	NumInstances    uint32
	Dst             AccelerationStructure
	Scratch         Buffer
	ScratchOffset   uint64
}

// AccelerationStructureEmitType selects a post-build property to query.
type AccelerationStructureEmitType uint8

const (
	EmitNone AccelerationStructureEmitType = iota
	EmitCompactedSize
	EmitCurrentSize
)

// AccelerationStructureEmitData requests a property of a just-built
// structure to be written as a little-endian uint64 into Dst.
type AccelerationStructureEmitData struct {
	Type      AccelerationStructureEmitType
	Dst       Buffer
	DstOffset uint64
}

// AccelerationStructureBuildSizes holds the memory a build needs.
type AccelerationStructureBuildSizes struct {
	StructureSize uint64
	ScratchSize   uint64
}
