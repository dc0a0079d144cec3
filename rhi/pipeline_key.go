package rhi

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
)

// PipelineCacheKey identifies a pipeline in the persistent cache: a hash of
// the serialized fixed-function state plus the MD5 of every shader stage.
type PipelineCacheKey struct {
	State  uint64
	Stages [][md5.Size]byte
}

// String renders the key in the form used inside cache files.
func (k PipelineCacheKey) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(k.State, 16))
	for _, s := range k.Stages {
		sb.WriteByte('-')
		sb.WriteString(hex.EncodeToString(s[:]))
	}
	return sb.String()
}

// =============================================================================
// Key computation
// =============================================================================

// GraphicsPipelineCacheKey computes the cache key of desc.
func GraphicsPipelineCacheKey(desc *GraphicsPipelineDesc) PipelineCacheKey {
	h := fnv.New64a()
	hashWriteString(h, "graphics")
	hashLayout(h, &desc.Layout)
	for _, m := range []*ShaderModule{desc.Vertex, desc.Fragment} {
		hashStage(h, m)
	}

	hashWriteUint32(h, uint32(len(desc.VertexBuffers)))
	for i := range desc.VertexBuffers {
		vb := &desc.VertexBuffers[i]
		hashWriteUint64(h, vb.Stride)
		hashWriteUint32(h, uint32(vb.StepMode))
		hashWriteUint32(h, uint32(len(vb.Attributes)))
		for _, a := range vb.Attributes {
			hashWriteUint32(h, a.Location)
			hashWriteUint32(h, uint32(a.Format))
			hashWriteUint64(h, a.Offset)
		}
	}

	hashWriteUint32(h, uint32(desc.Primitive.Topology))
	if desc.Primitive.StripIndexFormat != nil {
		hashWriteUint32(h, uint32(*desc.Primitive.StripIndexFormat))
	} else {
		hashWriteUint32(h, 0)
	}
	hashWriteUint32(h, uint32(desc.Primitive.FrontFace))
	hashWriteUint32(h, uint32(desc.Primitive.CullMode))
	hashWriteBool(h, desc.Primitive.UnclippedDepth)
	hashWriteUint32(h, max(desc.SampleCount, 1))

	hashWriteBool(h, desc.DepthStencil != nil)
	if ds := desc.DepthStencil; ds != nil {
		hashWriteUint32(h, uint32(ds.Format))
		hashWriteBool(h, ds.DepthWriteEnabled)
		hashWriteUint32(h, uint32(ds.DepthCompare))
		for _, f := range []gputypes.StencilFaceState{ds.StencilFront, ds.StencilBack} {
			hashWriteUint32(h, uint32(f.Compare))
			hashWriteUint32(h, uint32(f.FailOp))
			hashWriteUint32(h, uint32(f.DepthFailOp))
			hashWriteUint32(h, uint32(f.PassOp))
		}
		hashWriteUint32(h, ds.StencilReadMask)
		hashWriteUint32(h, ds.StencilWriteMask)
		hashWriteUint32(h, uint32(ds.DepthBias))
		hashWriteUint32(h, math.Float32bits(ds.DepthBiasSlopeScale))
		hashWriteUint32(h, math.Float32bits(ds.DepthBiasClamp))
	}

	hashWriteUint32(h, uint32(len(desc.ColorTargets)))
	for _, ct := range desc.ColorTargets {
		hashWriteUint32(h, uint32(ct.Format))
		hashWriteUint32(h, uint32(ct.WriteMask))
		hashWriteBool(h, ct.Blend != nil)
		if ct.Blend != nil {
			for _, c := range []gputypes.BlendComponent{ct.Blend.Color, ct.Blend.Alpha} {
				hashWriteUint32(h, uint32(c.SrcFactor))
				hashWriteUint32(h, uint32(c.DstFactor))
				hashWriteUint32(h, uint32(c.Operation))
			}
		}
	}
	return PipelineCacheKey{State: h.Sum64(), Stages: stageDigests(desc.Stages())}
}

// ComputePipelineCacheKey computes the cache key of desc.
func ComputePipelineCacheKey(desc *ComputePipelineDesc) PipelineCacheKey {
	h := fnv.New64a()
	hashWriteString(h, "compute")
	hashLayout(h, &desc.Layout)
	hashStage(h, desc.Compute)
	var stages []*ShaderModule
	if desc.Compute != nil {
		stages = append(stages, desc.Compute)
	}
	return PipelineCacheKey{State: h.Sum64(), Stages: stageDigests(stages)}
}

// RaytracingPipelineCacheKey computes the cache key of desc.
func RaytracingPipelineCacheKey(desc *RaytracingPipelineDesc) PipelineCacheKey {
	h := fnv.New64a()
	hashWriteString(h, "raytracing")
	hashLayout(h, &desc.Layout)
	hashStage(h, desc.Raygen)
	hashWriteUint32(h, uint32(len(desc.Miss)))
	for _, m := range desc.Miss {
		hashStage(h, m)
	}
	hashWriteUint32(h, uint32(len(desc.HitGroups)))
	for _, g := range desc.HitGroups {
		hashStage(h, g.ClosestHit)
		hashStage(h, g.AnyHit)
		hashStage(h, g.Intersection)
	}
	hashWriteUint32(h, uint32(len(desc.Callable)))
	for _, m := range desc.Callable {
		hashStage(h, m)
	}
	hashWriteUint32(h, desc.MaxRecursionDepth)
	hashWriteUint32(h, desc.MaxPayloadSize)
	hashWriteUint32(h, desc.MaxAttributeSize)
	return PipelineCacheKey{State: h.Sum64(), Stages: stageDigests(desc.Stages())}
}

func hashLayout(h hash.Hash64, l *PipelineLayoutDesc) {
	hashWriteUint32(h, uint32(len(l.BindGroups)))
	for _, g := range l.BindGroups {
		hashWriteUint32(h, uint32(len(g)))
		for _, e := range g {
			hashWriteUint32(h, uint32(e.Type))
			hashWriteUint32(h, e.DescriptorCount())
			hashWriteUint32(h, uint32(e.Visibility))
			hashWriteUint32(h, e.Binding)
			hashWriteUint32(h, e.Space)
		}
	}
	hashWriteUint32(h, uint32(len(l.StaticSamplers)))
	for _, s := range l.StaticSamplers {
		hashWriteUint32(h, s.Binding)
		hashWriteUint32(h, s.Space)
		hashWriteUint32(h, uint32(s.Visibility))
		hashSampler(h, &s.Desc)
	}
	hashWriteBool(h, l.PushConstants != nil)
	if pc := l.PushConstants; pc != nil {
		hashWriteUint32(h, pc.Size)
		hashWriteUint32(h, uint32(pc.Visibility))
		hashWriteUint32(h, pc.Binding)
		hashWriteUint32(h, pc.Space)
	}
}

func hashSampler(h hash.Hash64, s *SamplerDesc) {
	hashWriteUint32(h, uint32(s.AddressModeU))
	hashWriteUint32(h, uint32(s.AddressModeV))
	hashWriteUint32(h, uint32(s.AddressModeW))
	hashWriteUint32(h, uint32(s.MagFilter))
	hashWriteUint32(h, uint32(s.MinFilter))
	hashWriteUint32(h, uint32(s.MipmapFilter))
	hashWriteUint32(h, math.Float32bits(s.LodMinClamp))
	hashWriteUint32(h, math.Float32bits(s.LodMaxClamp))
	hashWriteUint32(h, uint32(s.Compare))
	hashWriteUint32(h, uint32(s.MaxAnisotropy))
}

// hashStage folds the parts of a stage that are not in its binary digest.
func hashStage(h hash.Hash64, m *ShaderModule) {
	if m == nil {
		hashWriteUint32(h, 0)
		return
	}
	hashWriteUint32(h, uint32(m.Stage))
	hashWriteString(h, m.EntryPoint)
}

func stageDigests(stages []*ShaderModule) [][md5.Size]byte {
	out := make([][md5.Size]byte, len(stages))
	for i, m := range stages {
		out[i] = m.Digest()
	}
	return out
}

// =============================================================================
// Hash helpers
// =============================================================================

func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}

func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
