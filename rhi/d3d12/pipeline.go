package d3d12

import (
	"bytes"
	"crypto/md5"
	"fmt"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

const (
	// maxRootSignatureDWords is the root signature size limit.
	maxRootSignatureDWords = 64

	shaderIdentifierSize           = 32 // D3D12_SHADER_IDENTIFIER_SIZE_IN_BYTES
	shaderRecordAlignment          = 32 // D3D12_RAYTRACING_SHADER_RECORD_BYTE_ALIGNMENT
	shaderTableAlignment           = 64 // D3D12_RAYTRACING_SHADER_TABLE_BYTE_ALIGNMENT
	accelerationStructureAlignment = 256

	pipelineBlobMagic = "DXPC"
)

// isDXBC reports whether b starts with a DXBC container header.
func isDXBC(b []byte) bool {
	return len(b) >= 32 && bytes.Equal(b[:4], []byte("DXBC"))
}

// =============================================================================
// Root signature
// =============================================================================

// rootParameterType is D3D12_ROOT_PARAMETER_TYPE.
type rootParameterType uint32

const (
	rootParameterDescriptorTable rootParameterType = 0
	rootParameter32BitConstants  rootParameterType = 1
)

// descriptorRange is D3D12_DESCRIPTOR_RANGE1.
type descriptorRange struct {
	RangeType                         descriptorRangeType
	NumDescriptors                    uint32
	BaseShaderRegister                uint32
	RegisterSpace                     uint32
	OffsetInDescriptorsFromTableStart uint32
}

// rootConstants is D3D12_ROOT_CONSTANTS.
type rootConstants struct {
	ShaderRegister uint32
	RegisterSpace  uint32
	Num32BitValues uint32
}

// rootParameter is D3D12_ROOT_PARAMETER1.
type rootParameter struct {
	Type       rootParameterType
	Ranges     []descriptorRange
	Constants  rootConstants
	Visibility shaderVisibility
}

// staticSamplerDesc is D3D12_STATIC_SAMPLER_DESC.
type staticSamplerDesc struct {
	samplerDesc
	ShaderRegister uint32
	RegisterSpace  uint32
	Visibility     shaderVisibility
}

// rootSignature maps bind groups to descriptor tables in group order,
// followed by root constants for push constants.
type rootSignature struct {
	Parameters     []rootParameter
	StaticSamplers []staticSamplerDesc
	constantsIndex int // -1 without push constants
}

// NumTables returns the number of descriptor tables.
func (r *rootSignature) NumTables() int {
	if r.constantsIndex >= 0 {
		return len(r.Parameters) - 1
	}
	return len(r.Parameters)
}

// DWords returns the root signature cost.
func (r *rootSignature) DWords() uint32 {
	var n uint32
	for _, p := range r.Parameters {
		if p.Type == rootParameter32BitConstants {
			n += p.Constants.Num32BitValues
		} else {
			n++
		}
	}
	return n
}

type registerKey struct {
	class descriptorRangeType
	space uint32
	reg   uint32
}

func newRootSignature(desc *rhi.PipelineLayoutDesc) (*rootSignature, error) {
	rs := &rootSignature{constantsIndex: -1}
	used := make(map[registerKey]bool)
	claim := func(class descriptorRangeType, space, base, count uint32) error {
		for r := base; r < base+count; r++ {
			k := registerKey{class, space, r}
			if used[k] {
				return fmt.Errorf("%w: register %v%d space %d bound twice", rhi.ErrPipelineLayout, class, r, space)
			}
			used[k] = true
		}
		return nil
	}

	for gi, group := range desc.BindGroups {
		if len(group) == 0 {
			return nil, fmt.Errorf("%w: group %d is empty", rhi.ErrPipelineLayout, gi)
		}
		heap := group[0].Type.HeapType()
		offsets, _ := group.Offsets(descriptorSize)
		param := rootParameter{Type: rootParameterDescriptorTable}
		var visibility rhi.ShaderStage
		slot := 0
		for _, e := range group {
			if e.Type == rhi.DescriptorNone {
				return nil, fmt.Errorf("%w: group %d binding %d has no type", rhi.ErrPipelineLayout, gi, e.Binding)
			}
			if e.Type.HeapType() != heap {
				return nil, fmt.Errorf("%w: group %d mixes samplers and resources", rhi.ErrPipelineLayout, gi)
			}
			class := descriptorRangeTypeOf(e.Type)
			if err := claim(class, e.Space, e.Binding, e.DescriptorCount()); err != nil {
				return nil, err
			}
			param.Ranges = append(param.Ranges, descriptorRange{
				RangeType:                         class,
				NumDescriptors:                    e.DescriptorCount(),
				BaseShaderRegister:                e.Binding,
				RegisterSpace:                     e.Space,
				OffsetInDescriptorsFromTableStart: uint32(offsets[slot] / descriptorIncrement),
			})
			visibility |= e.Visibility
			slot += int(e.DescriptorCount())
		}
		param.Visibility = shaderVisibilityOf(visibility)
		rs.Parameters = append(rs.Parameters, param)
	}

	for i := range desc.StaticSamplers {
		s := &desc.StaticSamplers[i]
		if err := claim(descriptorRangeSampler, s.Space, s.Binding, 1); err != nil {
			return nil, err
		}
		rs.StaticSamplers = append(rs.StaticSamplers, staticSamplerDesc{
			samplerDesc:    samplerDescToD3D12(&s.Desc),
			ShaderRegister: s.Binding,
			RegisterSpace:  s.Space,
			Visibility:     shaderVisibilityOf(s.Visibility),
		})
	}

	if pc := desc.PushConstants; pc != nil {
		if pc.Size == 0 || pc.Size%4 != 0 {
			return nil, fmt.Errorf("%w: push constant size %d", rhi.ErrPipelineLayout, pc.Size)
		}
		if err := claim(descriptorRangeCBV, pc.Space, pc.Binding, 1); err != nil {
			return nil, err
		}
		rs.constantsIndex = len(rs.Parameters)
		rs.Parameters = append(rs.Parameters, rootParameter{
			Type: rootParameter32BitConstants,
			Constants: rootConstants{
				ShaderRegister: pc.Binding,
				RegisterSpace:  pc.Space,
				Num32BitValues: pc.Size / 4,
			},
			Visibility: shaderVisibilityOf(pc.Visibility),
		})
	}

	if n := rs.DWords(); n > maxRootSignatureDWords {
		return nil, fmt.Errorf("%w: root signature needs %d DWORDs, limit is %d", rhi.ErrPipelineLayout, n, maxRootSignatureDWords)
	}
	return rs, nil
}

// =============================================================================
// Pipelines
// =============================================================================

// GraphicsPipeline is a graphics ID3D12PipelineState.
type GraphicsPipeline struct {
	devcore.PipelineBase[rhi.GraphicsPipelineDesc]
	root       *rootSignature
	handle     uint64
	topology   primitiveTopologyType
	cullMode   cullMode
	rtvFormats []dxgiFormat
	dsvFormat  dxgiFormat
}

// ComputePipeline is a compute ID3D12PipelineState.
type ComputePipeline struct {
	devcore.PipelineBase[rhi.ComputePipelineDesc]
	root   *rootSignature
	handle uint64
}

// RaytracingPipeline is a ray tracing ID3D12StateObject. Shader
// identifiers are looked up by export name.
type RaytracingPipeline struct {
	devcore.PipelineBase[rhi.RaytracingPipelineDesc]
	root        *rootSignature
	handle      uint64
	exports     []string // by record index
	identifiers map[string][shaderIdentifierSize]byte
}

// exportNames names the shader records of desc in record order.
func exportNames(desc *rhi.RaytracingPipelineDesc) []string {
	names := []string{"RayGen"}
	for i := range desc.Miss {
		names = append(names, fmt.Sprintf("Miss_%d", i))
	}
	for i := range desc.HitGroups {
		names = append(names, fmt.Sprintf("HitGroup_%d", i))
	}
	for i := range desc.Callable {
		names = append(names, fmt.Sprintf("Callable_%d", i))
	}
	return names
}

// shaderIdentifier derives the identifier of one export. It depends only
// on the pipeline key and the export name.
func shaderIdentifier(key rhi.PipelineCacheKey, export string) [shaderIdentifierSize]byte {
	var out [shaderIdentifierSize]byte
	first := md5.Sum([]byte(key.String() + "/" + export))
	second := md5.Sum(append(first[:], export...))
	copy(out[:], first[:])
	copy(out[md5.Size:], second[:])
	return out
}

// GetShaderIdentifier is ID3D12StateObjectProperties::GetShaderIdentifier.
func (p *RaytracingPipeline) GetShaderIdentifier(export string) ([shaderIdentifierSize]byte, bool) {
	id, ok := p.identifiers[export]
	return id, ok
}

// GetShaderHandle copies count identifiers of table t starting at
// fromIndex.
func (p *RaytracingPipeline) GetShaderHandle(t rhi.ShaderBindingTableType, fromIndex, count uint32, dst []byte) error {
	if uint64(len(dst)) < uint64(count)*shaderIdentifierSize {
		return fmt.Errorf("%w: %d bytes for %d shader identifiers", rhi.ErrInvalidDesc, len(dst), count)
	}
	for i := range count {
		rec, err := p.Desc().RecordIndex(t, fromIndex+i)
		if err != nil {
			return err
		}
		id, _ := p.GetShaderIdentifier(p.exports[rec])
		copy(dst[i*shaderIdentifierSize:], id[:])
	}
	return nil
}

func (d *Device) rootSignatureFor(label string, desc *rhi.PipelineLayoutDesc) (*rootSignature, error) {
	rs, err := newRootSignature(desc)
	if err != nil {
		rhi.LogCritical(d.Log, "d3d12: root signature creation failed", "pipeline", label, "err", err)
		return nil, err
	}
	return rs, nil
}

func (d *Device) compile(key rhi.PipelineCacheKey, stages []*rhi.ShaderModule) ([]byte, error) {
	if err := devcore.CheckStages(stages, isDXBC, "DXBC"); err != nil {
		return nil, err
	}
	return d.Cache.GetOrCompile(key, func() ([]byte, error) {
		d.Log.Debug("d3d12: creating pipeline state", "key", key.String())
		return devcore.PipelineBlob(pipelineBlobMagic, key, stages), nil
	})
}

// CreateGraphicsPipeline returns the pipeline for desc, creating it on
// first use.
func (d *Device) CreateGraphicsPipeline(desc rhi.GraphicsPipelineDesc) (rhi.GraphicsPipeline, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	key := rhi.GraphicsPipelineCacheKey(&desc)
	p, err := d.graphicsPipelines.GetOrCreate(key, func() (*GraphicsPipeline, error) {
		if desc.Vertex == nil {
			return nil, fmt.Errorf("%w: graphics pipeline %q has no vertex stage", rhi.ErrInvalidDesc, desc.Label)
		}
		if len(desc.ColorTargets) > 8 {
			return nil, fmt.Errorf("%w: %d render targets, at most 8", rhi.ErrInvalidDesc, len(desc.ColorTargets))
		}
		root, err := d.rootSignatureFor(desc.Label, &desc.Layout)
		if err != nil {
			return nil, err
		}
		blob, err := d.compile(key, desc.Stages())
		if err != nil {
			return nil, err
		}
		p := &GraphicsPipeline{
			PipelineBase: devcore.NewPipelineBase(&desc, key, blob),
			root:         root,
			handle:       d.nextPipeline.Add(1),
			topology:     primitiveTopologyTypeOf(desc.Primitive.Topology),
			cullMode:     cullModeToD3D12(desc.Primitive.CullMode),
		}
		for i := range desc.ColorTargets {
			p.rtvFormats = append(p.rtvFormats, textureFormatToDXGI(desc.ColorTargets[i].Format))
		}
		if desc.DepthStencil != nil {
			p.dsvFormat = textureFormatToDXGI(desc.DepthStencil.Format)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateComputePipeline returns the pipeline for desc, creating it on
// first use.
func (d *Device) CreateComputePipeline(desc rhi.ComputePipelineDesc) (rhi.ComputePipeline, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	key := rhi.ComputePipelineCacheKey(&desc)
	p, err := d.computePipelines.GetOrCreate(key, func() (*ComputePipeline, error) {
		if desc.Compute == nil {
			return nil, fmt.Errorf("%w: compute pipeline %q has no compute stage", rhi.ErrInvalidDesc, desc.Label)
		}
		root, err := d.rootSignatureFor(desc.Label, &desc.Layout)
		if err != nil {
			return nil, err
		}
		blob, err := d.compile(key, []*rhi.ShaderModule{desc.Compute})
		if err != nil {
			return nil, err
		}
		return &ComputePipeline{
			PipelineBase: devcore.NewPipelineBase(&desc, key, blob),
			root:         root,
			handle:       d.nextPipeline.Add(1),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateRaytracingPipeline returns the state object for desc, creating it
// on first use.
func (d *Device) CreateRaytracingPipeline(desc rhi.RaytracingPipelineDesc) (rhi.RaytracingPipeline, error) {
	if err := d.Alive(); err != nil {
		return nil, err
	}
	key := rhi.RaytracingPipelineCacheKey(&desc)
	p, err := d.raytracingPipelines.GetOrCreate(key, func() (*RaytracingPipeline, error) {
		if desc.Raygen == nil {
			return nil, fmt.Errorf("%w: ray tracing pipeline %q has no raygen stage", rhi.ErrInvalidDesc, desc.Label)
		}
		for i, g := range desc.HitGroups {
			if g.ClosestHit == nil && g.AnyHit == nil {
				return nil, fmt.Errorf("%w: hit group %d has no hit shader", rhi.ErrInvalidDesc, i)
			}
		}
		root, err := d.rootSignatureFor(desc.Label, &desc.Layout)
		if err != nil {
			return nil, err
		}
		blob, err := d.compile(key, desc.Stages())
		if err != nil {
			return nil, err
		}
		p := &RaytracingPipeline{
			PipelineBase: devcore.NewPipelineBase(&desc, key, blob),
			root:         root,
			handle:       d.nextPipeline.Add(1),
			exports:      exportNames(&desc),
			identifiers:  make(map[string][shaderIdentifierSize]byte),
		}
		for _, name := range p.exports {
			p.identifiers[name] = shaderIdentifier(key, name)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
