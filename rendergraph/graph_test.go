package rendergraph

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PepcyCh/bisemutum-engine-sub001/descalloc"
	"github.com/PepcyCh/bisemutum-engine-sub001/resource"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	_ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/d3d12"
	_ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/vulkan"
)

func forEachBackend(t *testing.T, fn func(t *testing.T, d rhi.Device)) {
	for _, b := range []rhi.Backend{rhi.BackendVulkan, rhi.BackendD3D12} {
		t.Run(b.String(), func(t *testing.T) {
			d, err := rhi.CreateDevice(rhi.DeviceDesc{Backend: b, Logger: slog.New(slog.DiscardHandler)})
			require.NoError(t, err)
			t.Cleanup(func() { _ = d.Destroy() })
			fn(t, d)
		})
	}
}

func newGraph(t *testing.T, d rhi.Device, cfg Config) *RenderGraph {
	cfg.Device = d
	g := New(cfg)
	t.Cleanup(func() {
		_ = d.WaitIdle()
		g.Close()
	})
	return g
}

// recordingEncoder forwards to a real encoder and logs the calls the graph
// makes on it.
type recordingEncoder struct {
	rhi.CommandEncoder
	events   []string
	textures []rhi.TextureBarrier
}

func (e *recordingEncoder) ResourceBarriers(buffers []rhi.BufferBarrier, textures []rhi.TextureBarrier) {
	e.events = append(e.events, "barrier")
	e.textures = append(e.textures, textures...)
	e.CommandEncoder.ResourceBarriers(buffers, textures)
}

func (e *recordingEncoder) BeginRenderPass(desc rhi.RenderPassDesc) rhi.GraphicsCommandEncoder {
	e.events = append(e.events, "render:"+desc.Label)
	return e.CommandEncoder.BeginRenderPass(desc)
}

func (e *recordingEncoder) BeginComputePass(label string) rhi.ComputeCommandEncoder {
	e.events = append(e.events, "compute:"+label)
	return e.CommandEncoder.BeginComputePass(label)
}

func (e *recordingEncoder) BlitTexture(desc rhi.BlitDesc) {
	e.events = append(e.events, "blit")
	e.CommandEncoder.BlitTexture(desc)
}

func (e *recordingEncoder) GenerateMipmapLevel(tex rhi.Texture, srcLevel uint32, mode rhi.MipmapMode) {
	e.events = append(e.events, "mip")
	e.CommandEncoder.GenerateMipmapLevel(tex, srcLevel, mode)
}

func submit(t *testing.T, d rhi.Device, cmd rhi.CommandBuffer) {
	t.Helper()
	fence := d.CreateFence()
	defer fence.Destroy()
	require.NoError(t, d.Queue(rhi.QueueGraphics).Submit([]rhi.CommandBuffer{cmd}, nil, nil, fence))
	require.True(t, fence.Wait(5*time.Second))
}

// readBack copies one level of tex, currently in access current, into
// host memory.
func readBack(t *testing.T, d rhi.Device, tex rhi.Texture, level uint32, current rhi.ResourceAccessType) []byte {
	t.Helper()
	e := tex.Desc().LevelExtent(level)
	size := uint64(e.Width) * uint64(e.Height) * 4
	buf, err := d.CreateBuffer(rhi.BufferDesc{
		Label:          "readback",
		Size:           size,
		Usage:          rhi.BufferUsageTransferDst,
		MemoryProperty: rhi.MemoryGpuToCpu,
	})
	require.NoError(t, err)
	defer buf.Destroy()

	enc := d.CreateCommandEncoder(rhi.QueueGraphics)
	enc.ResourceBarriers(nil, []rhi.TextureBarrier{{
		Texture: tex, BaseLevel: level, NumLevels: 1,
		SrcAccessType: current, DstAccessType: rhi.AccessTransferRead,
	}})
	enc.CopyTextureToBuffer(tex, buf, rhi.BufferTextureCopyDesc{Level: level})
	submit(t, d, enc.Finish())

	out := slices.Clone(buf.Map()[:size])
	buf.Unmap()
	return out
}

func uniform(t *testing.T, px []byte, want [4]byte) {
	t.Helper()
	for i := 0; i < len(px); i += 4 {
		if [4]byte(px[i:i+4]) != want {
			t.Fatalf("texel %d = %v, want %v", i/4, px[i:i+4], want)
		}
	}
}

func indexOf(events []string, prefix string, from int) int {
	for i := from; i < len(events); i++ {
		if strings.HasPrefix(events[i], prefix) {
			return i
		}
	}
	return -1
}

// =============================================================================

func TestClearThenBlitToBackBuffer(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		sc, err := d.CreateSwapchain(rhi.SwapchainDesc{Width: 1024, Height: 1024, NumImages: 2})
		require.NoError(t, err)
		defer sc.Destroy()
		backBuffer, err := sc.AcquireNextTexture(nil)
		require.NoError(t, err)

		g := newGraph(t, d, Config{NumFramesInFlight: 2})
		color := g.AddTexture("color", rhi.TextureDesc{
			Extent: gputypes.Extent3D{Width: 1024, Height: 1024, DepthOrArrayLayers: 1},
			Format: gputypes.TextureFormatRGBA8Unorm,
		})
		bb := g.ImportBackBuffer(backBuffer)

		b, _ := AddGraphicsPass[struct{}](g, "clear")
		b.UseColor(color).ClearColor(gputypes.Color{R: 0, G: 0, B: 0, A: 1})
		g.AddBlitPass("present blit", color, bb, BlitOptions{})

		enc := &recordingEncoder{CommandEncoder: d.CreateCommandEncoder(rhi.QueueGraphics)}
		require.NoError(t, g.Execute(enc, 0))

		// transition, clear, transition, blit, present transition
		first := indexOf(enc.events, "barrier", 0)
		render := indexOf(enc.events, "render:clear", 0)
		second := indexOf(enc.events, "barrier", render)
		blit := indexOf(enc.events, "blit", 0)
		last := indexOf(enc.events, "barrier", blit)
		require.True(t, first >= 0 && first < render, "events %v", enc.events)
		require.True(t, second > render && second < blit, "events %v", enc.events)
		require.Greater(t, last, blit, "events %v", enc.events)

		require.Equal(t, rhi.AccessColorAttachmentWrite, enc.textures[0].DstAccessType)
		var toRead bool
		for _, tb := range enc.textures {
			if tb.SrcAccessType == rhi.AccessColorAttachmentWrite && tb.DstAccessType == rhi.AccessTransferRead {
				toRead = true
			}
		}
		assert.True(t, toRead, "color target moves from attachment write to transfer read")
		lastBarrier := enc.textures[len(enc.textures)-1]
		assert.Equal(t, backBuffer, lastBarrier.Texture)
		assert.Equal(t, rhi.AccessPresent, lastBarrier.DstAccessType)

		cmd := enc.Finish()
		trace := cmd.Trace()
		var begin, dispatch string
		if d.Backend() == rhi.BackendVulkan {
			begin, dispatch = "vkCmdBeginRendering", "vkCmdBlitImage"
		} else {
			begin, dispatch = "BeginRenderPass", "Dispatch"
		}
		bi := slices.Index(trace, begin)
		di := slices.Index(trace, dispatch)
		require.True(t, bi >= 0 && di > bi, "trace %v", trace)

		submit(t, d, cmd)
		uniform(t, readBack(t, d, backBuffer, 0, rhi.AccessPresent), [4]byte{0, 0, 0, 255})
	})
}

func TestBarrierBetweenWriterAndReader(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{})
		tex := g.AddTexture("target", rhi.TextureDesc{
			Extent: gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 1},
			Format: gputypes.TextureFormatRGBA8Unorm,
		})

		w, _ := AddComputePass[struct{}](g, "write")
		w.WriteTexture(tex)
		r, _ := AddComputePass[struct{}](g, "read")
		r.ReadTexture(tex)
		r2, _ := AddComputePass[struct{}](g, "read again")
		r2.ReadTexture(tex)

		enc := &recordingEncoder{CommandEncoder: d.CreateCommandEncoder(rhi.QueueGraphics)}
		require.NoError(t, g.Execute(enc, 0))
		enc.Finish()

		assert.Equal(t, []string{
			"barrier", "compute:write",
			"barrier", "compute:read",
			"compute:read again",
		}, enc.events)
		require.Len(t, enc.textures, 2)
		assert.Equal(t, rhi.AccessStorageWrite, enc.textures[1].SrcAccessType)
		assert.Equal(t, rhi.AccessSampledTextureRead, enc.textures[1].DstAccessType)
	})
}

func TestPassDataIsHandedToExecute(t *testing.T) {
	type blurData struct {
		src, dst TextureHandle
		radius   int
	}
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{})
		desc := rhi.TextureDesc{
			Extent: gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 1},
			Format: gputypes.TextureFormatRGBA8Unorm,
		}
		src := g.AddTexture("src", desc)
		dst := g.AddTexture("dst", desc)

		b, data := AddComputePass[blurData](g, "blur")
		data.src = b.ReadTexture(src)
		data.dst = b.WriteTexture(dst)
		data.radius = 3

		var seen *blurData
		var dstUsage rhi.TextureUsage
		b.Execute(func(d *blurData, ctx *ComputePassContext) error {
			seen = d
			dstUsage = ctx.Texture(d.dst).Desc().Usage
			assert.Equal(t, 1, ctx.Frame())
			assert.NotNil(t, ctx.Encoder)
			return nil
		})

		enc := d.CreateCommandEncoder(rhi.QueueGraphics)
		require.NoError(t, g.Execute(enc, 1))
		enc.Finish()

		require.Same(t, data, seen)
		assert.Equal(t, 3, seen.radius)
		assert.True(t, dstUsage.Contains(rhi.TextureUsageStorage), "usage derived from the write")
	})
}

func TestBlitPassIsATransferCopy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{})
		desc := rhi.TextureDesc{
			Extent: gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 1},
			Format: gputypes.TextureFormatRGBA8Unorm,
		}
		src := g.AddTexture("src", desc)
		dst := g.AddTexture("dst", desc)

		clear, _ := AddGraphicsPass[struct{}](g, "clear")
		clear.UseColor(src).ClearColor(gputypes.Color{R: 1, A: 1})
		g.AddBlitPass("copy", src, dst, BlitOptions{})

		var srcUsage, dstUsage rhi.TextureUsage
		inspect, _ := AddEncoderPass[struct{}](g, "inspect")
		inspect.Execute(func(_ *struct{}, ctx *EncoderPassContext) error {
			srcUsage = ctx.Texture(src).Desc().Usage
			dstUsage = ctx.Texture(dst).Desc().Usage
			return nil
		})

		enc := &recordingEncoder{CommandEncoder: d.CreateCommandEncoder(rhi.QueueGraphics)}
		require.NoError(t, g.Execute(enc, 0))
		enc.Finish()

		assert.True(t, srcUsage.Contains(rhi.TextureUsageTransferSrc))
		assert.False(t, srcUsage.Contains(rhi.TextureUsageSampled), "blit source is not sampled")
		assert.True(t, dstUsage.Contains(rhi.TextureUsageTransferDst))
		assert.False(t, dstUsage.Contains(rhi.TextureUsageColorAttachment), "blit target is not drawn into")

		var dstAccess []rhi.ResourceAccessType
		for _, tb := range enc.textures {
			if tb.Texture == nil {
				continue
			}
			if tb.Texture.Desc().Label == "dst" {
				dstAccess = append(dstAccess, tb.DstAccessType)
			}
		}
		assert.Equal(t, []rhi.ResourceAccessType{rhi.AccessTransferWrite}, dstAccess)
	})
}

func TestPassErrorIsWrapped(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{})
		boom := errors.New("boom")
		b, _ := AddComputePass[struct{}](g, "failing")
		b.Execute(func(*struct{}, *ComputePassContext) error { return boom })

		enc := d.CreateCommandEncoder(rhi.QueueGraphics)
		err := g.Execute(enc, 0)
		assert.ErrorIs(t, err, ErrPass)
		assert.ErrorIs(t, err, boom)
		assert.True(t, enc.Valid(), "compute pass ended after the error")
		enc.Finish()
	})
}

func TestInvalidHandle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{})
		b, _ := AddComputePass[struct{}](g, "stale")
		b.ReadTexture(TextureHandle(7))

		enc := d.CreateCommandEncoder(rhi.QueueGraphics)
		assert.ErrorIs(t, g.Execute(enc, 0), ErrInvalidHandle)
		enc.Finish()

		// The failure does not leak into the next build.
		enc = d.CreateCommandEncoder(rhi.QueueGraphics)
		assert.NoError(t, g.Execute(enc, 0))
		enc.Finish()
	})
}

func TestTransientsAreReused(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{NumFramesInFlight: 2})
		var textures []*resource.Texture
		for frame := range 3 {
			tex := g.AddTexture("scratch", rhi.TextureDesc{
				Extent: gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 1},
				Format: gputypes.TextureFormatRGBA8Unorm,
			})
			b, _ := AddComputePass[struct{}](g, "fill")
			b.WriteTexture(tex)
			b.Execute(func(_ *struct{}, ctx *ComputePassContext) error {
				textures = append(textures, ctx.Texture(tex))
				return nil
			})
			enc := d.CreateCommandEncoder(rhi.QueueGraphics)
			require.NoError(t, g.Execute(enc, frame%2))
			enc.Finish()
		}

		s := g.TransientStats()
		assert.Equal(t, uint64(1), s.Created)
		assert.Equal(t, uint64(2), s.Reused)
		assert.Equal(t, 1, s.Idle)
		require.Len(t, textures, 3)
		assert.Same(t, textures[0], textures[2])
	})
}

func TestGenerateMipmaps(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{})
		tex := g.AddTexture("mipped", rhi.TextureDesc{
			Extent: gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
			Levels: 4,
			Format: gputypes.TextureFormatRGBA8Unorm,
		})
		b, _ := AddGraphicsPass[struct{}](g, "base")
		b.UseColor(tex).ClearColor(gputypes.Color{R: 1, A: 1}).GenerateMipmaps(rhi.MipmapAverage)

		var target rhi.Texture
		after, _ := AddEncoderPass[struct{}](g, "capture")
		after.ReadTexture(tex, rhi.AccessTransferRead)
		after.Execute(func(_ *struct{}, ctx *EncoderPassContext) error {
			target = ctx.Texture(tex).RHI()
			return nil
		})

		enc := &recordingEncoder{CommandEncoder: d.CreateCommandEncoder(rhi.QueueGraphics)}
		require.NoError(t, g.Execute(enc, 0))
		cmd := enc.Finish()

		mips := 0
		for _, e := range enc.events {
			if e == "mip" {
				mips++
			}
		}
		assert.Equal(t, 3, mips)
		assert.Less(t, indexOf(enc.events, "render:base", 0), indexOf(enc.events, "mip", 0))

		submit(t, d, cmd)
		uniform(t, readBack(t, d, target, 3, rhi.AccessNone), [4]byte{255, 0, 0, 255})
	})
}

func TestBindCopiesIntoFrameRange(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		gpu, err := descalloc.NewGpuDescriptorAllocator(d, descalloc.GpuAllocatorDesc{
			Type: rhi.DescriptorHeapResource, ChunkSize: 16, NumChunks: 4, NumFrames: 2,
		})
		require.NoError(t, err)
		defer gpu.Destroy()

		g := newGraph(t, d, Config{GpuDescriptors: gpu})
		tex := g.AddTexture("input", rhi.TextureDesc{
			Extent: gputypes.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
			Format: gputypes.TextureFormatRGBA8Unorm,
		})
		layout := rhi.BindGroupLayout{{Type: rhi.DescriptorSampledTexture, Visibility: rhi.ShaderStageCompute}}

		var bound rhi.DescriptorHandle
		b, _ := AddComputePass[struct{}](g, "bind")
		b.ReadTexture(tex)
		b.Execute(func(_ *struct{}, ctx *ComputePassContext) error {
			h, err := ctx.Texture(tex).Descriptor(rhi.TextureDescriptorDesc{Type: rhi.DescriptorSampledTexture})
			if err != nil {
				return err
			}
			bound, err = ctx.Bindings().Bind(layout, []rhi.DescriptorHandle{h})
			return err
		})

		enc := d.CreateCommandEncoder(rhi.QueueGraphics)
		require.NoError(t, g.Execute(enc, 1))
		enc.Finish()

		assert.True(t, bound.IsValid())
		assert.Len(t, gpu.Chunks(1, 0), 1)
		assert.Empty(t, gpu.Chunks(0, 0))
	})
}

func TestBindWithoutGpuAllocator(t *testing.T) {
	forEachBackend(t, func(t *testing.T, d rhi.Device) {
		g := newGraph(t, d, Config{})
		b, _ := AddComputePass[struct{}](g, "bind")
		b.Execute(func(_ *struct{}, ctx *ComputePassContext) error {
			_, err := ctx.Bindings().Bind(nil, nil)
			return err
		})
		enc := d.CreateCommandEncoder(rhi.QueueGraphics)
		assert.ErrorIs(t, g.Execute(enc, 0), ErrNoBindings)
		enc.Finish()
	})
}
