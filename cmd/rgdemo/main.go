// Command rgdemo renders one frame through the render graph and writes the
// presented back buffer to a PNG file.
//
// The frame clears a transient texture and blits it to the swapchain
// image, optionally downsampling a mip chain on the way:
//
//	rgdemo -backend d3d12 -size 512 -color 0.2,0.4,0.8,1 -output frame.png
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"

	bisemutum "github.com/PepcyCh/bisemutum-engine-sub001"
	"github.com/PepcyCh/bisemutum-engine-sub001/graphics"
	"github.com/PepcyCh/bisemutum-engine-sub001/rendergraph"
	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
	_ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/d3d12"
	_ "github.com/PepcyCh/bisemutum-engine-sub001/rhi/vulkan"
)

func main() {
	var (
		backend = flag.String("backend", "", "backend: vulkan or d3d12 (default: preferred)")
		config  = flag.String("config", "", "TOML config file")
		size    = flag.Uint("size", 1024, "back buffer width and height")
		color   = flag.String("color", "0,0,0,1", "clear color as r,g,b,a")
		mips    = flag.Bool("mips", false, "generate a mip chain and blit from level 1")
		output  = flag.String("output", "frame.png", "output file")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		bisemutum.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := graphics.DefaultConfig()
	if *config != "" {
		var err error
		cfg, err = graphics.LoadConfig(rhi.DirFileSystem("."), *config)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	cfg.Swapchain.Width, cfg.Swapchain.Height = uint32(*size), uint32(*size)
	cfg.Swapchain.Format = "RGBA8Unorm"

	clearColor, err := parseColor(*color)
	if err != nil {
		log.Fatalf("Invalid -color: %v", err)
	}

	m, err := graphics.NewManager(cfg,
		graphics.WithLogger(bisemutum.Logger()),
		graphics.WithFileSystem(rhi.DirFileSystem(".")))
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Printf("Close: %v", err)
		}
	}()

	if err := renderFrame(m, clearColor, *mips); err != nil {
		log.Fatalf("Frame failed: %v", err)
	}
	img, err := readBackBuffer(m)
	if err != nil {
		log.Fatalf("Readback failed: %v", err)
	}
	if err := savePNG(*output, img); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Frame saved to %s (%dx%d, %s)\n", *output, *size, *size, m.Device().Backend())
}

func renderFrame(m *graphics.Manager, clearColor gputypes.Color, mips bool) error {
	if err := m.BeginFrame(); err != nil {
		return err
	}
	g := m.Graph()
	sc := m.Swapchain().Desc()

	desc := rhi.TextureDesc{
		Extent: gputypes.Extent3D{Width: sc.Width, Height: sc.Height, DepthOrArrayLayers: 1},
		Format: gputypes.TextureFormatRGBA8Unorm,
	}
	if mips {
		desc.Levels = 4
	}
	color := g.AddTexture("color", desc)
	bb := g.ImportBackBuffer(m.BackBuffer())

	b, _ := rendergraph.AddGraphicsPass[struct{}](g, "clear")
	target := b.UseColor(color).ClearColor(clearColor)
	opts := rendergraph.BlitOptions{Filter: gputypes.FilterModeLinear}
	if mips {
		target.GenerateMipmaps(rhi.MipmapAverage)
		opts.SrcLevel = 1
	}
	g.AddBlitPass("blit to back buffer", color, bb, opts)

	if err := m.RenderFrame(); err != nil {
		return err
	}
	return m.EndFrame()
}

func readBackBuffer(m *graphics.Manager) (*image.RGBA, error) {
	if err := m.Device().WaitIdle(); err != nil {
		return nil, err
	}
	tex := m.Swapchain().LastPresented()
	e := tex.Desc().LevelExtent(0)
	buf, err := m.Device().CreateBuffer(rhi.BufferDesc{
		Label:          "back buffer readback",
		Size:           uint64(e.Width) * uint64(e.Height) * 4,
		Usage:          rhi.BufferUsageTransferDst,
		MemoryProperty: rhi.MemoryGpuToCpu,
	})
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	err = m.ExecuteImmediately(func(enc rhi.CommandEncoder) error {
		enc.ResourceBarriers(nil, []rhi.TextureBarrier{{
			Texture: tex, SrcAccessType: rhi.AccessPresent, DstAccessType: rhi.AccessTransferRead,
		}})
		enc.CopyTextureToBuffer(tex, buf, rhi.BufferTextureCopyDesc{})
		return nil
	})
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(e.Width), int(e.Height)))
	copy(img.Pix, buf.Map())
	buf.Unmap()
	return img, nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func parseColor(s string) (gputypes.Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return gputypes.Color{}, fmt.Errorf("want 4 components, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return gputypes.Color{}, err
		}
		v[i] = f
	}
	return gputypes.Color{R: v[0], G: v[1], B: v[2], A: v[3]}, nil
}
