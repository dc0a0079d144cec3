//go:build !(js && wasm)

package vulkan

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

const (
	// maxPushConstantsSize is the push constant budget the backend
	// reports, maxPushConstantsSize of common desktop drivers.
	maxPushConstantsSize = 256

	shaderGroupHandleSize      = 32
	shaderGroupHandleAlignment = 32
	shaderGroupBaseAlignment   = 64

	pipelineBlobMagic = "VKPC"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

func isSPIRV(b []byte) bool {
	return len(b) >= 20 && len(b)%4 == 0 && binary.LittleEndian.Uint32(b) == spirvMagic
}

// =============================================================================
// Pipeline layout
// =============================================================================

// pipelineLayout is the native form of a PipelineLayoutDesc: one set
// layout per bind group in declaration order, then an optional set of
// immutable samplers, then an optional push constant range.
type pipelineLayout struct {
	setLayouts        [][]vk.DescriptorSetLayoutBinding
	immutableSamplers []vk.SamplerCreateInfo
	samplerSet        int // -1 without static samplers
	pushConstants     *vk.PushConstantRange
}

func setLayoutBindings(group rhi.BindGroupLayout) []vk.DescriptorSetLayoutBinding {
	out := make([]vk.DescriptorSetLayoutBinding, len(group))
	for i, e := range group {
		out[i] = vk.DescriptorSetLayoutBinding{
			Binding:         e.Binding,
			DescriptorType:  descriptorTypeToVk(e.Type),
			DescriptorCount: e.DescriptorCount(),
			StageFlags:      shaderStageToVk(e.Visibility),
		}
	}
	return out
}

func newPipelineLayout(desc *rhi.PipelineLayoutDesc) (*pipelineLayout, error) {
	l := &pipelineLayout{samplerSet: -1}
	for gi, group := range desc.BindGroups {
		seen := make(map[uint32]bool, len(group))
		for _, e := range group {
			if e.Type == rhi.DescriptorNone {
				return nil, fmt.Errorf("%w: group %d binding %d has no type", rhi.ErrPipelineLayout, gi, e.Binding)
			}
			if seen[e.Binding] {
				return nil, fmt.Errorf("%w: group %d binding %d declared twice", rhi.ErrPipelineLayout, gi, e.Binding)
			}
			seen[e.Binding] = true
		}
		l.setLayouts = append(l.setLayouts, setLayoutBindings(group))
	}
	if len(desc.StaticSamplers) > 0 {
		bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.StaticSamplers))
		for i := range desc.StaticSamplers {
			s := &desc.StaticSamplers[i]
			bindings[i] = vk.DescriptorSetLayoutBinding{
				Binding:         s.Binding,
				DescriptorType:  vk.DescriptorTypeSampler,
				DescriptorCount: 1,
				StageFlags:      shaderStageToVk(s.Visibility),
			}
			l.immutableSamplers = append(l.immutableSamplers, samplerCreateInfo(&s.Desc))
		}
		l.samplerSet = len(l.setLayouts)
		l.setLayouts = append(l.setLayouts, bindings)
	}
	if pc := desc.PushConstants; pc != nil {
		if pc.Size == 0 || pc.Size%4 != 0 || pc.Size > maxPushConstantsSize {
			return nil, fmt.Errorf("%w: push constant size %d", rhi.ErrPipelineLayout, pc.Size)
		}
		l.pushConstants = &vk.PushConstantRange{
			StageFlags: shaderStageToVk(pc.Visibility),
			Size:       pc.Size,
		}
	}
	return l, nil
}

// NumSets returns the number of descriptor set layouts.
func (l *pipelineLayout) NumSets() int { return len(l.setLayouts) }

// =============================================================================
// Pipelines
// =============================================================================

// GraphicsPipeline is a VkPipeline created with dynamic rendering.
type GraphicsPipeline struct {
	devcore.PipelineBase[rhi.GraphicsPipelineDesc]
	layout       *pipelineLayout
	handle       vk.Pipeline
	topology     vk.PrimitiveTopology
	cullMode     vk.CullModeFlags
	frontFace    vk.FrontFace
	colorFormats []vk.Format
	depthFormat  vk.Format
	blend        []vk.PipelineColorBlendAttachmentState
}

// ComputePipeline is a compute VkPipeline.
type ComputePipeline struct {
	devcore.PipelineBase[rhi.ComputePipelineDesc]
	layout *pipelineLayout
	handle vk.Pipeline
}

// RaytracingPipeline is a ray tracing VkPipeline with its shader group
// handles.
type RaytracingPipeline struct {
	devcore.PipelineBase[rhi.RaytracingPipelineDesc]
	layout  *pipelineLayout
	handle  vk.Pipeline
	handles [][shaderGroupHandleSize]byte // by record index
}

// GetShaderHandle copies count handles of table t starting at fromIndex.
func (p *RaytracingPipeline) GetShaderHandle(t rhi.ShaderBindingTableType, fromIndex, count uint32, dst []byte) error {
	if uint64(len(dst)) < uint64(count)*shaderGroupHandleSize {
		return fmt.Errorf("%w: %d bytes for %d shader handles", rhi.ErrInvalidDesc, len(dst), count)
	}
	for i := range count {
		rec, err := p.Desc().RecordIndex(t, fromIndex+i)
		if err != nil {
			return err
		}
		copy(dst[i*shaderGroupHandleSize:], p.handles[rec][:])
	}
	return nil
}

// shaderGroupHandle derives the opaque identifier of one shader group.
// It depends only on the pipeline key and the group index.
func shaderGroupHandle(key rhi.PipelineCacheKey, group uint32) [shaderGroupHandleSize]byte {
	var out [shaderGroupHandleSize]byte
	seed := []byte(key.String())
	for half := range uint32(2) {
		var tail [8]byte
		binary.LittleEndian.PutUint32(tail[:], group)
		binary.LittleEndian.PutUint32(tail[4:], half)
		sum := md5.Sum(append(seed, tail[:]...))
		copy(out[half*md5.Size:], sum[:])
	}
	return out
}

func (d *Device) layoutFor(label string, desc *rhi.PipelineLayoutDesc) (*pipelineLayout, error) {
	l, err := newPipelineLayout(desc)
	if err != nil {
		rhi.LogCritical(d.Log, "vulkan: pipeline layout creation failed", "pipeline", label, "err", err)
		return nil, err
	}
	return l, nil
}

func (d *Device) compile(key rhi.PipelineCacheKey, stages []*rhi.ShaderModule) ([]byte, error) {
	if err := devcore.CheckStages(stages, isSPIRV, "SPIR-V"); err != nil {
		return nil, err
	}
	return d.Cache.GetOrCompile(key, func() ([]byte, error) {
		d.Log.Debug("vulkan: compiling pipeline", "key", key.String())
		return devcore.PipelineBlob(pipelineBlobMagic, key, stages), nil
	})
}

func (d *Device) newPipelineHandle() vk.Pipeline {
	return vk.Pipeline(uintptr(d.nextPipeline.Add(1)))
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
		layout, err := d.layoutFor(desc.Label, &desc.Layout)
		if err != nil {
			return nil, err
		}
		blob, err := d.compile(key, desc.Stages())
		if err != nil {
			return nil, err
		}
		p := &GraphicsPipeline{
			PipelineBase: devcore.NewPipelineBase(&desc, key, blob),
			layout:       layout,
			handle:       d.newPipelineHandle(),
			topology:     primitiveTopologyToVk(desc.Primitive.Topology),
			cullMode:     cullModeToVk(desc.Primitive.CullMode),
			frontFace:    frontFaceToVk(desc.Primitive.FrontFace),
			depthFormat:  vk.FormatUndefined,
		}
		for i := range desc.ColorTargets {
			p.colorFormats = append(p.colorFormats, textureFormatToVk(desc.ColorTargets[i].Format))
			p.blend = append(p.blend, colorBlendAttachmentToVk(&desc.ColorTargets[i]))
		}
		if desc.DepthStencil != nil {
			p.depthFormat = textureFormatToVk(desc.DepthStencil.Format)
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
		layout, err := d.layoutFor(desc.Label, &desc.Layout)
		if err != nil {
			return nil, err
		}
		blob, err := d.compile(key, []*rhi.ShaderModule{desc.Compute})
		if err != nil {
			return nil, err
		}
		return &ComputePipeline{
			PipelineBase: devcore.NewPipelineBase(&desc, key, blob),
			layout:       layout,
			handle:       d.newPipelineHandle(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateRaytracingPipeline returns the pipeline for desc, creating it on
// first use. Shader group handles follow record order.
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
		layout, err := d.layoutFor(desc.Label, &desc.Layout)
		if err != nil {
			return nil, err
		}
		blob, err := d.compile(key, desc.Stages())
		if err != nil {
			return nil, err
		}
		p := &RaytracingPipeline{
			PipelineBase: devcore.NewPipelineBase(&desc, key, blob),
			layout:       layout,
			handle:       d.newPipelineHandle(),
			handles:      make([][shaderGroupHandleSize]byte, desc.NumRecords()),
		}
		for i := range p.handles {
			p.handles[i] = shaderGroupHandle(key, uint32(i))
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
