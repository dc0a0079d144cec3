package d3d12

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi/internal/devcore"
)

// beginningAccessType is D3D12_RENDER_PASS_BEGINNING_ACCESS_TYPE.
type beginningAccessType uint32

const (
	beginningAccessDiscard  beginningAccessType = 0
	beginningAccessPreserve beginningAccessType = 1
	beginningAccessClear    beginningAccessType = 2
)

// endingAccessType is D3D12_RENDER_PASS_ENDING_ACCESS_TYPE.
type endingAccessType uint32

const (
	endingAccessDiscard  endingAccessType = 0
	endingAccessPreserve endingAccessType = 1
)

func beginningAccessOf(op gputypes.LoadOp) beginningAccessType {
	switch op {
	case gputypes.LoadOpClear:
		return beginningAccessClear
	case gputypes.LoadOpLoad:
		return beginningAccessPreserve
	default:
		return beginningAccessDiscard
	}
}

func endingAccessOf(op gputypes.StoreOp) endingAccessType {
	if op == gputypes.StoreOpStore {
		return endingAccessPreserve
	}
	return endingAccessDiscard
}

// renderPassRenderTarget is D3D12_RENDER_PASS_RENDER_TARGET_DESC.
type renderPassRenderTarget struct {
	Subresource uint32
	Format      dxgiFormat
	Beginning   beginningAccessType
	Ending      endingAccessType
	ClearColor  [4]float32
}

// renderPassDepthStencil is D3D12_RENDER_PASS_DEPTH_STENCIL_DESC.
type renderPassDepthStencil struct {
	Subresource      uint32
	Format           dxgiFormat
	DepthBeginning   beginningAccessType
	DepthEnding      endingAccessType
	StencilBeginning beginningAccessType
	StencilEnding    endingAccessType
	ClearDepth       float32
	ClearStencil     uint8
}

// viewport is D3D12_VIEWPORT.
type viewport struct {
	TopLeftX, TopLeftY float32
	Width, Height      float32
	MinDepth, MaxDepth float32
}

// rect is D3D12_RECT.
type rect struct {
	Left, Top, Right, Bottom int32
}

func indexFormatToDXGI(f gputypes.IndexFormat) dxgiFormat {
	if f == gputypes.IndexFormatUint16 {
		return dxgiFormatR16Uint
	}
	return dxgiFormatR32Uint
}

// passState is shared by the pass sub-encoders.
type passState struct {
	enc   *CommandEncoder
	ended bool
	// prefix is "Graphics" or "Compute", selecting the root signature
	// slot family of the command list.
	prefix string
}

func (p *passState) record(name string, op func()) {
	if p.ended {
		panic(fmt.Sprintf("d3d12: %s recorded after End", name))
	}
	p.enc.RecordInPass(name, op)
}

func (p *passState) end(name string) {
	if p.ended {
		panic("d3d12: pass ended twice")
	}
	p.ended = true
	p.enc.EndPass(name)
}

// bindTables sets one descriptor table per handle, starting at root
// parameter from.
func (p *passState) bindTables(root *rootSignature, from uint32, handles []rhi.DescriptorHandle) {
	if root == nil {
		panic("d3d12: SetDescriptors before SetPipeline")
	}
	if int(from)+len(handles) > root.NumTables() {
		panic(fmt.Sprintf("d3d12: binding tables %d..%d, root signature has %d", from, int(from)+len(handles), root.NumTables()))
	}
	for i, h := range handles {
		if !h.IsValid() || h.GPU == 0 {
			panic(fmt.Sprintf("d3d12: table %d bound to a handle that is not shader visible", int(from)+i))
		}
	}
	if !p.enc.heapsSet {
		p.record("SetDescriptorHeaps", nil)
		p.enc.heapsSet = true
	}
	for range handles {
		p.record("Set"+p.prefix+"RootDescriptorTable", nil)
	}
}

func (p *passState) rootConstants(root *rootSignature, data []byte) {
	if root == nil {
		panic("d3d12: PushConstants before SetPipeline")
	}
	if root.constantsIndex < 0 {
		panic("d3d12: root signature has no root constants")
	}
	if n := root.Parameters[root.constantsIndex].Constants.Num32BitValues; uint32(len(data)) > n*4 {
		panic(fmt.Sprintf("d3d12: %d bytes of push constants exceed %d root constants", len(data), n))
	}
	p.record("Set"+p.prefix+"Root32BitConstants", nil)
}

// =============================================================================
// Render pass
// =============================================================================

// GraphicsEncoder records between BeginRenderPass and EndRenderPass.
type GraphicsEncoder struct {
	passState
	pipeline *GraphicsPipeline
	label    string

	renderTargets []renderPassRenderTarget
	depthStencil  *renderPassDepthStencil
	indexFormat   dxgiFormat
	viewports     []viewport
	scissors      []rect
}

// BeginRenderPass records ID3D12GraphicsCommandList4::BeginRenderPass.
// Clear accesses take effect when the pass begins.
func (e *CommandEncoder) BeginRenderPass(desc rhi.RenderPassDesc) rhi.GraphicsCommandEncoder {
	g := &GraphicsEncoder{passState: passState{enc: e, prefix: "Graphics"}, label: desc.Label}
	for i := range desc.Colors {
		c := &desc.Colors[i]
		tex := asTexture(c.Texture)
		if s := tex.currentState(c.Level, c.Layer); s != stateRenderTarget {
			e.dev.Log.Warn("d3d12: color attachment is not in RENDER_TARGET",
				"pass", desc.Label, "texture", tex.Desc().Label, "state", s)
		}
		g.renderTargets = append(g.renderTargets, renderPassRenderTarget{
			Subresource: tex.subresource(c.Level, c.Layer),
			Format:      textureFormatToDXGI(tex.Desc().Format),
			Beginning:   beginningAccessOf(c.LoadOp),
			Ending:      endingAccessOf(c.StoreOp),
			ClearColor: [4]float32{
				float32(c.ClearColor.R), float32(c.ClearColor.G),
				float32(c.ClearColor.B), float32(c.ClearColor.A),
			},
		})
	}
	if ds := desc.DepthStencil; ds != nil {
		tex := asTexture(ds.Texture)
		g.depthStencil = &renderPassDepthStencil{
			Subresource:      tex.subresource(ds.Level, ds.Layer),
			Format:           textureFormatToDXGI(tex.Desc().Format),
			DepthBeginning:   beginningAccessOf(ds.DepthLoadOp),
			DepthEnding:      endingAccessOf(ds.DepthStoreOp),
			StencilBeginning: beginningAccessOf(ds.StencilLoadOp),
			StencilEnding:    endingAccessOf(ds.StencilStoreOp),
			ClearDepth:       ds.ClearDepth,
			ClearStencil:     uint8(ds.ClearStencil),
		}
	}
	if desc.Label != "" {
		e.PushLabel(desc.Label)
	}
	e.BeginPass("BeginRenderPass", devcore.LoadOps(&desc))
	return g
}

// SetPipeline sets the pipeline state and its root signature.
func (g *GraphicsEncoder) SetPipeline(p rhi.GraphicsPipeline) {
	dp, ok := p.(*GraphicsPipeline)
	if !ok {
		panic(fmt.Sprintf("d3d12: pipeline %T was not created by this backend", p))
	}
	g.pipeline = dp
	g.record("SetPipelineState", nil)
	g.record("SetGraphicsRootSignature", nil)
	g.record("IASetPrimitiveTopology", nil)
}

func (g *GraphicsEncoder) root() *rootSignature {
	if g.pipeline == nil {
		return nil
	}
	return g.pipeline.root
}

func (g *GraphicsEncoder) SetDescriptors(fromGroupIndex uint32, handles []rhi.DescriptorHandle) {
	g.bindTables(g.root(), fromGroupIndex, handles)
}

func (g *GraphicsEncoder) PushConstants(data []byte) { g.rootConstants(g.root(), data) }

// SetViewports records RSSetViewports. D3D12 viewports are top-left based
// and are passed through unchanged.
func (g *GraphicsEncoder) SetViewports(viewports []rhi.Viewport) {
	g.viewports = g.viewports[:0]
	for _, v := range viewports {
		g.viewports = append(g.viewports, viewport{
			TopLeftX: v.X, TopLeftY: v.Y,
			Width: v.Width, Height: v.Height,
			MinDepth: v.MinDepth, MaxDepth: v.MaxDepth,
		})
	}
	g.record("RSSetViewports", nil)
}

func (g *GraphicsEncoder) SetScissors(scissors []rhi.Scissor) {
	g.scissors = g.scissors[:0]
	for _, s := range scissors {
		g.scissors = append(g.scissors, rect{
			Left: s.X, Top: s.Y,
			Right: s.X + int32(s.Width), Bottom: s.Y + int32(s.Height),
		})
	}
	g.record("RSSetScissorRects", nil)
}

func (g *GraphicsEncoder) SetVertexBuffers(firstSlot uint32, bindings []rhi.VertexBufferBinding) {
	for _, b := range bindings {
		asBuffer(b.Buffer)
	}
	g.record("IASetVertexBuffers", nil)
}

func (g *GraphicsEncoder) SetIndexBuffer(buf rhi.Buffer, offset uint64, format gputypes.IndexFormat) {
	asBuffer(buf)
	g.indexFormat = indexFormatToDXGI(format)
	g.record("IASetIndexBuffer", nil)
}

func (g *GraphicsEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	g.record("DrawInstanced", nil)
}

func (g *GraphicsEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	g.record("DrawIndexedInstanced", nil)
}

// DrawIndirect records ExecuteIndirect with a draw command signature.
func (g *GraphicsEncoder) DrawIndirect(buf rhi.Buffer, offset uint64, drawCount, stride uint32) {
	asBuffer(buf)
	g.record("ExecuteIndirect", nil)
}

// End records EndRenderPass and restores the parent encoder.
func (g *GraphicsEncoder) End() {
	g.end("EndRenderPass")
	if g.label != "" {
		g.enc.PopLabel()
	}
}

// =============================================================================
// Compute and ray tracing passes
// =============================================================================

// beginUnscopedPass opens a pass with no native pass object. Labeled
// passes are wrapped in an event region.
func (e *CommandEncoder) beginUnscopedPass(label string) string {
	if label == "" {
		e.BeginPass("", nil)
		return ""
	}
	e.BeginPass("BeginEvent("+label+")", nil)
	return "EndEvent"
}

// ComputeEncoder records compute dispatches.
type ComputeEncoder struct {
	passState
	pipeline *ComputePipeline
	endName  string
}

func (e *CommandEncoder) BeginComputePass(label string) rhi.ComputeCommandEncoder {
	c := &ComputeEncoder{passState: passState{enc: e, prefix: "Compute"}}
	c.endName = e.beginUnscopedPass(label)
	return c
}

func (c *ComputeEncoder) SetPipeline(p rhi.ComputePipeline) {
	dp, ok := p.(*ComputePipeline)
	if !ok {
		panic(fmt.Sprintf("d3d12: pipeline %T was not created by this backend", p))
	}
	c.pipeline = dp
	c.record("SetPipelineState", nil)
	c.record("SetComputeRootSignature", nil)
}

func (c *ComputeEncoder) root() *rootSignature {
	if c.pipeline == nil {
		return nil
	}
	return c.pipeline.root
}

func (c *ComputeEncoder) SetDescriptors(fromGroupIndex uint32, handles []rhi.DescriptorHandle) {
	c.bindTables(c.root(), fromGroupIndex, handles)
}

func (c *ComputeEncoder) PushConstants(data []byte) { c.rootConstants(c.root(), data) }

func (c *ComputeEncoder) Dispatch(x, y, z uint32) {
	if c.pipeline == nil {
		panic("d3d12: Dispatch before SetPipeline")
	}
	c.record("Dispatch", nil)
}

// DispatchIndirect records ExecuteIndirect with a dispatch command
// signature.
func (c *ComputeEncoder) DispatchIndirect(buf rhi.Buffer, offset uint64) {
	asBuffer(buf)
	c.record("ExecuteIndirect", nil)
}

func (c *ComputeEncoder) End() { c.end(c.endName) }

// RaytracingEncoder records ray dispatches.
type RaytracingEncoder struct {
	passState
	pipeline *RaytracingPipeline
	endName  string
}

func (e *CommandEncoder) BeginRaytracingPass(label string) rhi.RaytracingCommandEncoder {
	r := &RaytracingEncoder{passState: passState{enc: e, prefix: "Compute"}}
	r.endName = e.beginUnscopedPass(label)
	return r
}

// SetPipeline sets the state object. Ray tracing shares the compute root
// signature slot.
func (r *RaytracingEncoder) SetPipeline(p rhi.RaytracingPipeline) {
	dp, ok := p.(*RaytracingPipeline)
	if !ok {
		panic(fmt.Sprintf("d3d12: pipeline %T was not created by this backend", p))
	}
	r.pipeline = dp
	r.record("SetPipelineState1", nil)
	r.record("SetComputeRootSignature", nil)
}

func (r *RaytracingEncoder) root() *rootSignature {
	if r.pipeline == nil {
		return nil
	}
	return r.pipeline.root
}

func (r *RaytracingEncoder) SetDescriptors(fromGroupIndex uint32, handles []rhi.DescriptorHandle) {
	r.bindTables(r.root(), fromGroupIndex, handles)
}

func (r *RaytracingEncoder) PushConstants(data []byte) { r.rootConstants(r.root(), data) }

// DispatchRays records DispatchRays. Table strides must be multiples of
// the record alignment and table starts of the table alignment. The ray
// generation record is a single record.
func (r *RaytracingEncoder) DispatchRays(sbt rhi.ShaderBindingTable, width, height, depth uint32) {
	if r.pipeline == nil {
		panic("d3d12: DispatchRays before SetPipeline")
	}
	if sbt.Raygen.Size != sbt.Raygen.Stride {
		panic(fmt.Sprintf("d3d12: raygen record size %d must equal its stride %d", sbt.Raygen.Size, sbt.Raygen.Stride))
	}
	for name, table := range map[string]rhi.ShaderBindingTableRegion{
		"raygen": sbt.Raygen, "miss": sbt.Miss, "hit group": sbt.HitGroup, "callable": sbt.Callable,
	} {
		if table.Buffer == nil || table.Size == 0 {
			continue
		}
		if table.Stride%shaderRecordAlignment != 0 {
			panic(fmt.Sprintf("d3d12: %s stride %d is not a multiple of %d", name, table.Stride, shaderRecordAlignment))
		}
		if (asBuffer(table.Buffer).GPUAddress()+table.Offset)%shaderTableAlignment != 0 {
			panic(fmt.Sprintf("d3d12: %s table is not aligned to %d", name, shaderTableAlignment))
		}
	}
	r.record("DispatchRays", nil)
}

func (r *RaytracingEncoder) End() { r.end(r.endName) }
