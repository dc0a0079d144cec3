//go:build !(js && wasm)

package vulkan

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// VK_STRUCTURE_TYPE_RENDERING_ATTACHMENT_INFO (Vulkan 1.3).
const structureTypeRenderingAttachmentInfo = vk.StructureType(1000044001)

func loadOpToVk(op gputypes.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gputypes.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case gputypes.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func storeOpToVk(op gputypes.StoreOp) vk.AttachmentStoreOp {
	if op == gputypes.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func clearColorValue(c gputypes.Color) vk.ClearValue {
	var v vk.ClearValue
	for i, f := range [4]float64{c.R, c.G, c.B, c.A} {
		binary.LittleEndian.PutUint32(v[i*4:], math.Float32bits(float32(f)))
	}
	return v
}

func clearDepthStencilValue(depth float32, stencil uint32) vk.ClearValue {
	var v vk.ClearValue
	binary.LittleEndian.PutUint32(v[0:], math.Float32bits(depth))
	binary.LittleEndian.PutUint32(v[4:], stencil)
	return v
}

// passState is what every pass sub-encoder shares: the parent encoder and
// whether End has run.
type passState struct {
	enc   *CommandEncoder
	ended bool
}

func (p *passState) record(name string, op func()) {
	if p.ended {
		panic(fmt.Sprintf("vulkan: %s recorded after End", name))
	}
	p.enc.RecordInPass(name, op)
}

func (p *passState) end(name string) {
	if p.ended {
		panic("vulkan: pass ended twice")
	}
	p.ended = true
	p.enc.EndPass(name)
}

// bindDescriptors checks a bind against layout and records the native
// command of the device's descriptor strategy.
func (p *passState) bindDescriptors(layout *pipelineLayout, from uint32, handles []rhi.DescriptorHandle) {
	if layout == nil {
		panic("vulkan: SetDescriptors before SetPipeline")
	}
	if int(from)+len(handles) > layout.NumSets() {
		panic(fmt.Sprintf("vulkan: binding sets %d..%d, layout has %d", from, int(from)+len(handles), layout.NumSets()))
	}
	for i, h := range handles {
		if !h.IsValid() || h.GPU == 0 {
			panic(fmt.Sprintf("vulkan: set %d bound to a handle that is not shader visible", int(from)+i))
		}
	}
	if p.enc.dev.strategy == rhi.StrategyDescriptorBuffer {
		p.record("vkCmdSetDescriptorBufferOffsetsEXT", nil)
		return
	}
	p.record("vkCmdBindDescriptorSets", nil)
}

func (p *passState) pushConstants(layout *pipelineLayout, data []byte) {
	if layout == nil {
		panic("vulkan: PushConstants before SetPipeline")
	}
	if layout.pushConstants == nil || uint32(len(data)) > layout.pushConstants.Size {
		panic(fmt.Sprintf("vulkan: %d bytes of push constants exceed the layout range", len(data)))
	}
	p.record("vkCmdPushConstants", nil)
}

// =============================================================================
// Render pass
// =============================================================================

// GraphicsEncoder records a dynamic rendering pass.
type GraphicsEncoder struct {
	passState
	pipeline *GraphicsPipeline
	label    string

	colors    []vk.RenderingAttachmentInfo
	depth     *vk.RenderingAttachmentInfo
	viewports []vk.Viewport
	scissors  []vk.Rect2D
}

// BeginRenderPass records vkCmdBeginRendering. Clear load operations take
// effect when the pass begins.
func (e *CommandEncoder) BeginRenderPass(desc rhi.RenderPassDesc) rhi.GraphicsCommandEncoder {
	g := &GraphicsEncoder{passState: passState{enc: e}, label: desc.Label}
	for i := range desc.Colors {
		c := &desc.Colors[i]
		tex := asTexture(c.Texture)
		if !tex.trackedAccess(c.Level, c.Layer).Has(rhi.AccessColorAttachmentWrite) {
			e.dev.Log.Warn("vulkan: color attachment is not in COLOR_ATTACHMENT_OPTIMAL",
				"pass", desc.Label, "texture", tex.Desc().Label, "access", tex.trackedAccess(c.Level, c.Layer))
		}
		g.colors = append(g.colors, vk.RenderingAttachmentInfo{
			SType:       structureTypeRenderingAttachmentInfo,
			ImageLayout: vk.ImageLayoutColorAttachmentOptimal,
			ResolveMode: vk.ResolveModeNone,
			LoadOp:      loadOpToVk(c.LoadOp),
			StoreOp:     storeOpToVk(c.StoreOp),
			ClearValue:  clearColorValue(c.ClearColor),
		})
	}
	if ds := desc.DepthStencil; ds != nil {
		asTexture(ds.Texture)
		layout := vk.ImageLayoutDepthStencilAttachmentOptimal
		if ds.ReadOnly {
			layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		g.depth = &vk.RenderingAttachmentInfo{
			SType:       structureTypeRenderingAttachmentInfo,
			ImageLayout: layout,
			ResolveMode: vk.ResolveModeNone,
			LoadOp:      loadOpToVk(ds.DepthLoadOp),
			StoreOp:     storeOpToVk(ds.DepthStoreOp),
			ClearValue:  clearDepthStencilValue(ds.ClearDepth, ds.ClearStencil),
		}
	}
	if desc.Label != "" {
		e.PushLabel(desc.Label)
	}
	e.BeginPass("vkCmdBeginRendering", devcore.LoadOps(&desc))
	return g
}

func (g *GraphicsEncoder) SetPipeline(p rhi.GraphicsPipeline) {
	vp, ok := p.(*GraphicsPipeline)
	if !ok {
		panic(fmt.Sprintf("vulkan: pipeline %T was not created by this backend", p))
	}
	g.pipeline = vp
	g.record("vkCmdBindPipeline", nil)
}

func (g *GraphicsEncoder) layout() *pipelineLayout {
	if g.pipeline == nil {
		return nil
	}
	return g.pipeline.layout
}

func (g *GraphicsEncoder) SetDescriptors(fromGroupIndex uint32, handles []rhi.DescriptorHandle) {
	g.bindDescriptors(g.layout(), fromGroupIndex, handles)
}

func (g *GraphicsEncoder) PushConstants(data []byte) {
	g.pushConstants(g.layout(), data)
}

// SetViewports flips Y so that clip space matches the D3D convention.
func (g *GraphicsEncoder) SetViewports(viewports []rhi.Viewport) {
	g.viewports = g.viewports[:0]
	for _, v := range viewports {
		g.viewports = append(g.viewports, vk.Viewport{
			X:        v.X,
			Y:        v.Y + v.Height,
			Width:    v.Width,
			Height:   -v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		})
	}
	g.record("vkCmdSetViewport", nil)
}

func (g *GraphicsEncoder) SetScissors(scissors []rhi.Scissor) {
	g.scissors = g.scissors[:0]
	for _, s := range scissors {
		g.scissors = append(g.scissors, vk.Rect2D{
			Offset: vk.Offset2D{X: s.X, Y: s.Y},
			Extent: vk.Extent2D{Width: s.Width, Height: s.Height},
		})
	}
	g.record("vkCmdSetScissor", nil)
}

func (g *GraphicsEncoder) SetVertexBuffers(firstSlot uint32, bindings []rhi.VertexBufferBinding) {
	for _, b := range bindings {
		asBuffer(b.Buffer)
	}
	g.record("vkCmdBindVertexBuffers", nil)
}

func (g *GraphicsEncoder) SetIndexBuffer(buf rhi.Buffer, offset uint64, format gputypes.IndexFormat) {
	asBuffer(buf)
	g.record("vkCmdBindIndexBuffer", nil)
}

func (g *GraphicsEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	g.record("vkCmdDraw", nil)
}

func (g *GraphicsEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	g.record("vkCmdDrawIndexed", nil)
}

func (g *GraphicsEncoder) DrawIndirect(buf rhi.Buffer, offset uint64, drawCount, stride uint32) {
	asBuffer(buf)
	g.record("vkCmdDrawIndirect", nil)
}

// End records vkCmdEndRendering and restores the parent encoder.
func (g *GraphicsEncoder) End() {
	g.end("vkCmdEndRendering")
	if g.label != "" {
		g.enc.PopLabel()
	}
}

// =============================================================================
// Compute and ray tracing passes
// =============================================================================

// Compute and ray tracing work has no native pass object; a labeled pass
// is wrapped in a debug label region.
func (e *CommandEncoder) beginUnscopedPass(label string) string {
	if label == "" {
		e.BeginPass("", nil)
		return ""
	}
	e.BeginPass("vkCmdBeginDebugUtilsLabelEXT("+label+")", nil)
	return "vkCmdEndDebugUtilsLabelEXT"
}

// ComputeEncoder records compute dispatches.
type ComputeEncoder struct {
	passState
	pipeline *ComputePipeline
	endName  string
}

func (e *CommandEncoder) BeginComputePass(label string) rhi.ComputeCommandEncoder {
	c := &ComputeEncoder{passState: passState{enc: e}}
	c.endName = e.beginUnscopedPass(label)
	return c
}

func (c *ComputeEncoder) SetPipeline(p rhi.ComputePipeline) {
	vp, ok := p.(*ComputePipeline)
	if !ok {
		panic(fmt.Sprintf("vulkan: pipeline %T was not created by this backend", p))
	}
	c.pipeline = vp
	c.record("vkCmdBindPipeline", nil)
}

func (c *ComputeEncoder) layout() *pipelineLayout {
	if c.pipeline == nil {
		return nil
	}
	return c.pipeline.layout
}

func (c *ComputeEncoder) SetDescriptors(fromGroupIndex uint32, handles []rhi.DescriptorHandle) {
	c.bindDescriptors(c.layout(), fromGroupIndex, handles)
}

func (c *ComputeEncoder) PushConstants(data []byte) { c.pushConstants(c.layout(), data) }

func (c *ComputeEncoder) Dispatch(x, y, z uint32) {
	if c.pipeline == nil {
		panic("vulkan: Dispatch before SetPipeline")
	}
	c.record("vkCmdDispatch", nil)
}

func (c *ComputeEncoder) DispatchIndirect(buf rhi.Buffer, offset uint64) {
	asBuffer(buf)
	c.record("vkCmdDispatchIndirect", nil)
}

func (c *ComputeEncoder) End() { c.end(c.endName) }

// RaytracingEncoder records ray dispatches.
type RaytracingEncoder struct {
	passState
	pipeline *RaytracingPipeline
	endName  string
}

func (e *CommandEncoder) BeginRaytracingPass(label string) rhi.RaytracingCommandEncoder {
	r := &RaytracingEncoder{passState: passState{enc: e}}
	r.endName = e.beginUnscopedPass(label)
	return r
}

func (r *RaytracingEncoder) SetPipeline(p rhi.RaytracingPipeline) {
	vp, ok := p.(*RaytracingPipeline)
	if !ok {
		panic(fmt.Sprintf("vulkan: pipeline %T was not created by this backend", p))
	}
	r.pipeline = vp
	r.record("vkCmdBindPipeline", nil)
}

func (r *RaytracingEncoder) layout() *pipelineLayout {
	if r.pipeline == nil {
		return nil
	}
	return r.pipeline.layout
}

func (r *RaytracingEncoder) SetDescriptors(fromGroupIndex uint32, handles []rhi.DescriptorHandle) {
	r.bindDescriptors(r.layout(), fromGroupIndex, handles)
}

func (r *RaytracingEncoder) PushConstants(data []byte) { r.pushConstants(r.layout(), data) }

// DispatchRays records vkCmdTraceRaysKHR. Region strides must be multiples
// of the handle alignment and region starts of the base alignment; the
// raygen region holds exactly one record.
func (r *RaytracingEncoder) DispatchRays(sbt rhi.ShaderBindingTable, width, height, depth uint32) {
	if r.pipeline == nil {
		panic("vulkan: DispatchRays before SetPipeline")
	}
	if sbt.Raygen.Size != sbt.Raygen.Stride {
		panic(fmt.Sprintf("vulkan: raygen region size %d must equal its stride %d", sbt.Raygen.Size, sbt.Raygen.Stride))
	}
	for name, region := range map[string]rhi.ShaderBindingTableRegion{
		"raygen": sbt.Raygen, "miss": sbt.Miss, "hit group": sbt.HitGroup, "callable": sbt.Callable,
	} {
		if region.Buffer == nil || region.Size == 0 {
			continue
		}
		if region.Stride%shaderGroupHandleAlignment != 0 {
			panic(fmt.Sprintf("vulkan: %s stride %d is not a multiple of %d", name, region.Stride, shaderGroupHandleAlignment))
		}
		if (asBuffer(region.Buffer).GPUAddress()+region.Offset)%shaderGroupBaseAlignment != 0 {
			panic(fmt.Sprintf("vulkan: %s region is not aligned to %d", name, shaderGroupBaseAlignment))
		}
	}
	r.record("vkCmdTraceRaysKHR", nil)
}

func (r *RaytracingEncoder) End() { r.end(r.endName) }
