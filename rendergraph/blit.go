package rendergraph

import (
	"github.com/gogpu/gputypes"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// BlitOptions selects the subresources and regions of a blit pass. Zero
// regions cover the whole level.
type BlitOptions struct {
	SrcLevel  uint32
	SrcLayer  uint32
	SrcRegion rhi.Region
	DstLevel  uint32
	DstLayer  uint32
	DstRegion rhi.Region
	Filter    gputypes.FilterMode
}

// AddBlitPass appends a pass copying src into dst, scaling when the
// regions differ in size.
//
// The blit is a transfer command, not a draw: src moves to
// AccessTransferRead and dst to AccessTransferWrite, so neither needs
// sampled or color attachment usage. Passes that sample src and draw into
// dst themselves should use AddGraphicsPass with ReadTexture and UseColor.
func (g *RenderGraph) AddBlitPass(name string, src, dst TextureHandle, opts BlitOptions) {
	b := passBuilder{g: g, p: g.addPass(name, passEncoder)}
	b.AccessTexture(src, rhi.AccessTransferRead)
	b.AccessTexture(dst, rhi.AccessTransferWrite)
	if opts.Filter == gputypes.FilterModeUndefined {
		opts.Filter = gputypes.FilterModeLinear
	}
	b.p.run = func(ctx *passContext, enc any) error {
		enc.(rhi.CommandEncoder).BlitTexture(rhi.BlitDesc{
			Src:       ctx.Texture(src).RHI(),
			SrcLevel:  opts.SrcLevel,
			SrcLayer:  opts.SrcLayer,
			SrcRegion: opts.SrcRegion,
			Dst:       ctx.Texture(dst).RHI(),
			DstLevel:  opts.DstLevel,
			DstLayer:  opts.DstLayer,
			DstRegion: opts.DstRegion,
			Filter:    opts.Filter,
		})
		return nil
	}
}
