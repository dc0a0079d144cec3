package rhi

import (
	"crypto/md5"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// ShaderModule is a compiled shader stage. Binary is backend native:
// SPIR-V for Vulkan, DXIL for D3D12.
type ShaderModule struct {
	Label      string
	Stage      ShaderStage
	EntryPoint string
	Binary     []byte

	digestOnce sync.Once
	digest     [md5.Size]byte
}

// NewShaderModule wraps a compiled binary.
func NewShaderModule(stage ShaderStage, entry string, binary []byte) *ShaderModule {
	return &ShaderModule{Stage: stage, EntryPoint: entry, Binary: binary}
}

// Digest returns the MD5 of the binary. It is computed once.
func (m *ShaderModule) Digest() [md5.Size]byte {
	m.digestOnce.Do(func() {
		m.digest = md5.Sum(m.Binary)
	})
	return m.digest
}

func (m *ShaderModule) String() string {
	return fmt.Sprintf("%v:%s(%d bytes)", m.Stage, m.EntryPoint, len(m.Binary))
}

// PipelineLayoutDesc is the binding interface of a pipeline. The index of a
// group in BindGroups is its binding point.
type PipelineLayoutDesc struct {
	BindGroups     []BindGroupLayout
	StaticSamplers []StaticSampler
	PushConstants  *PushConstantsDesc
}

// VertexAttribute is one vertex shader input.
type VertexAttribute struct {
	Location uint32
	Format   gputypes.VertexFormat
	Offset   uint64
}

// VertexBufferLayout describes one vertex buffer slot.
type VertexBufferLayout struct {
	Stride     uint64
	StepMode   gputypes.VertexStepMode
	Attributes []VertexAttribute
}

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	Label         string
	Layout        PipelineLayoutDesc
	Vertex        *ShaderModule
	Fragment      *ShaderModule
	VertexBuffers []VertexBufferLayout
	Primitive     gputypes.PrimitiveState
	SampleCount   uint32
	DepthStencil  *gputypes.DepthStencilState
	ColorTargets  []gputypes.ColorTargetState
}

// Stages returns the non-nil shader stages in pipeline order.
func (d *GraphicsPipelineDesc) Stages() []*ShaderModule {
	var out []*ShaderModule
	for _, m := range []*ShaderModule{d.Vertex, d.Fragment} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label   string
	Layout  PipelineLayoutDesc
	Compute *ShaderModule
}

// HitGroup is one hit group of a ray tracing pipeline. Unused stages are
// nil; at least ClosestHit or AnyHit must be set.
type HitGroup struct {
	ClosestHit   *ShaderModule
	AnyHit       *ShaderModule
	Intersection *ShaderModule
}

// RaytracingPipelineDesc describes a ray tracing pipeline.
type RaytracingPipelineDesc struct {
	Label             string
	Layout            PipelineLayoutDesc
	Raygen            *ShaderModule
	Miss              []*ShaderModule
	HitGroups         []HitGroup
	Callable          []*ShaderModule
	MaxRecursionDepth uint32
	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
}

// Stages returns every shader module in record order: raygen, misses,
// hit group stages, callables.
func (d *RaytracingPipelineDesc) Stages() []*ShaderModule {
	var out []*ShaderModule
	if d.Raygen != nil {
		out = append(out, d.Raygen)
	}
	out = append(out, d.Miss...)
	for _, g := range d.HitGroups {
		for _, m := range []*ShaderModule{g.ClosestHit, g.AnyHit, g.Intersection} {
			if m != nil {
				out = append(out, m)
			}
		}
	}
	return append(out, d.Callable...)
}

// ShaderBindingTableType selects an SBT table.
type ShaderBindingTableType uint8

const (
	SBTRaygen ShaderBindingTableType = iota
	SBTMiss
	SBTHitGroup
	SBTCallable
)

func (t ShaderBindingTableType) String() string {
	switch t {
	case SBTRaygen:
		return "raygen"
	case SBTMiss:
		return "miss"
	case SBTHitGroup:
		return "hit_group"
	case SBTCallable:
		return "callable"
	default:
		return fmt.Sprintf("ShaderBindingTableType(%d)", uint8(t))
	}
}

// RecordIndex maps a table-local index to the global shader record index:
// raygen is record 0, followed by misses, hit groups and callables.
func (d *RaytracingPipelineDesc) RecordIndex(t ShaderBindingTableType, index uint32) (uint32, error) {
	numMiss := uint32(len(d.Miss))
	numHit := uint32(len(d.HitGroups))
	numCallable := uint32(len(d.Callable))
	var base, count uint32
	switch t {
	case SBTRaygen:
		base, count = 0, 1
	case SBTMiss:
		base, count = 1, numMiss
	case SBTHitGroup:
		base, count = 1+numMiss, numHit
	case SBTCallable:
		base, count = 1+numMiss+numHit, numCallable
	default:
		return 0, fmt.Errorf("%w: sbt type %v", ErrInvalidDesc, t)
	}
	if index >= count {
		return 0, fmt.Errorf("%w: %v record %d out of %d", ErrInvalidDesc, t, index, count)
	}
	return base + index, nil
}

// NumRecords returns the total number of shader records.
func (d *RaytracingPipelineDesc) NumRecords() uint32 {
	return 1 + uint32(len(d.Miss)+len(d.HitGroups)+len(d.Callable))
}

// GraphicsPipeline is an immutable graphics PSO.
type GraphicsPipeline interface {
	Desc() *GraphicsPipelineDesc
	CacheKey() PipelineCacheKey
	Destroy()
}

// ComputePipeline is an immutable compute PSO.
type ComputePipeline interface {
	Desc() *ComputePipelineDesc
	CacheKey() PipelineCacheKey
	Destroy()
}

// RaytracingPipeline is an immutable ray tracing PSO.
type RaytracingPipeline interface {
	Desc() *RaytracingPipelineDesc
	CacheKey() PipelineCacheKey
	// GetShaderHandle writes count shader identifiers of table t starting
	// at fromIndex into dst, each ShaderGroupHandleSize bytes.
	GetShaderHandle(t ShaderBindingTableType, fromIndex, count uint32, dst []byte) error
	Destroy()
}
