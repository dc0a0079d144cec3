package hostgpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// CopyBuffer copies desc.Size bytes between buffer memories.
func CopyBuffer(src, dst []byte, desc rhi.BufferCopyDesc) {
	copy(dst[desc.DstOffset:desc.DstOffset+desc.Size], src[desc.SrcOffset:desc.SrcOffset+desc.Size])
}

// FillBuffer writes value repeatedly into dst[offset:offset+size].
func FillBuffer(dst []byte, offset, size uint64, value uint32) {
	if size == 0 {
		size = uint64(len(dst)) - offset
	}
	b := [4]byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	for i := uint64(0); i < size; i++ {
		dst[offset+i] = b[i%4]
	}
}

// bufferLayout returns the row and image strides of a buffer region.
func bufferLayout(im *Image, desc rhi.BufferTextureCopyDesc, r rhi.Region) (rowPitch, imagePitch uint64) {
	rowPitch = uint64(desc.BytesPerRow)
	if rowPitch == 0 {
		rowPitch = uint64(r.Extent.Width) * uint64(im.Info.BytesPerTexel)
	}
	rows := uint64(desc.RowsPerImage)
	if rows == 0 {
		rows = uint64(r.Extent.Height)
	}
	return rowPitch, rowPitch * rows
}

// CheckBufferImageCopy reports whether desc addresses texels inside one
// subresource of im and bytes inside a buffer of bufLen bytes.
func CheckBufferImageCopy(im *Image, bufLen uint64, desc rhi.BufferTextureCopyDesc) error {
	if desc.Level >= im.Levels || desc.Layer >= im.Layers {
		return fmt.Errorf("subresource (level %d, layer %d) out of range (%d, %d)",
			desc.Level, desc.Layer, im.Levels, im.Layers)
	}
	e := im.Extent(desc.Level)
	r := desc.Region.Resolve(e)
	if uint64(r.Offset.X)+uint64(r.Extent.Width) > uint64(e.Width) ||
		uint64(r.Offset.Y)+uint64(r.Extent.Height) > uint64(e.Height) ||
		uint64(r.Offset.Z)+uint64(r.Extent.DepthOrArrayLayers) > uint64(e.DepthOrArrayLayers) {
		return fmt.Errorf("region %+v outside level %d extent %dx%dx%d",
			r, desc.Level, e.Width, e.Height, e.DepthOrArrayLayers)
	}
	if r.Extent.Width == 0 || r.Extent.Height == 0 || r.Extent.DepthOrArrayLayers == 0 {
		return nil
	}
	rowPitch, imagePitch := bufferLayout(im, desc, r)
	rowBytes := uint64(r.Extent.Width) * uint64(im.Info.BytesPerTexel)
	if rowPitch < rowBytes {
		return fmt.Errorf("bytes per row %d smaller than a row of %d bytes", rowPitch, rowBytes)
	}
	end := desc.BufferOffset + uint64(r.Extent.DepthOrArrayLayers-1)*imagePitch +
		uint64(r.Extent.Height-1)*rowPitch + rowBytes
	if end > bufLen {
		return fmt.Errorf("buffer range ends at %d, buffer holds %d bytes", end, bufLen)
	}
	return nil
}

// CopyBufferToImage uploads a buffer region into one subresource.
func CopyBufferToImage(src []byte, im *Image, desc rhi.BufferTextureCopyDesc) {
	r := desc.Region.Resolve(im.Extent(desc.Level))
	rowPitch, imagePitch := bufferLayout(im, desc, r)
	rowBytes := uint64(r.Extent.Width) * uint64(im.Info.BytesPerTexel)
	sub := im.Sub(desc.Level, desc.Layer)
	for z := range r.Extent.DepthOrArrayLayers {
		for y := range r.Extent.Height {
			s := desc.BufferOffset + uint64(z)*imagePitch + uint64(y)*rowPitch
			d := im.texelOffset(desc.Level, r.Offset.X, r.Offset.Y+y, r.Offset.Z+z)
			copy(sub[d:d+rowBytes], src[s:s+rowBytes])
		}
	}
}

// CopyImageToBuffer reads one subresource region back into a buffer.
func CopyImageToBuffer(im *Image, dst []byte, desc rhi.BufferTextureCopyDesc) {
	r := desc.Region.Resolve(im.Extent(desc.Level))
	rowPitch, imagePitch := bufferLayout(im, desc, r)
	rowBytes := uint64(r.Extent.Width) * uint64(im.Info.BytesPerTexel)
	sub := im.Sub(desc.Level, desc.Layer)
	for z := range r.Extent.DepthOrArrayLayers {
		for y := range r.Extent.Height {
			d := desc.BufferOffset + uint64(z)*imagePitch + uint64(y)*rowPitch
			s := im.texelOffset(desc.Level, r.Offset.X, r.Offset.Y+y, r.Offset.Z+z)
			copy(dst[d:d+rowBytes], sub[s:s+rowBytes])
		}
	}
}

// CopyImage copies texels between images of equal texel size.
func CopyImage(src, dst *Image, desc rhi.TextureCopyDesc) error {
	if src.Info.BytesPerTexel != dst.Info.BytesPerTexel {
		return fmt.Errorf("hostgpu: copy between %v and %v: texel sizes differ", src.Format, dst.Format)
	}
	r := rhi.Region{Offset: desc.SrcOffset, Extent: desc.Extent}.Resolve(src.Extent(desc.SrcLevel))
	rowBytes := uint64(r.Extent.Width) * uint64(src.Info.BytesPerTexel)
	s, d := src.Sub(desc.SrcLevel, desc.SrcLayer), dst.Sub(desc.DstLevel, desc.DstLayer)
	for z := range r.Extent.DepthOrArrayLayers {
		for y := range r.Extent.Height {
			so := src.texelOffset(desc.SrcLevel, r.Offset.X, r.Offset.Y+y, r.Offset.Z+z)
			do := dst.texelOffset(desc.DstLevel, desc.DstOffset.X, desc.DstOffset.Y+y, desc.DstOffset.Z+z)
			copy(d[do:do+rowBytes], s[so:so+rowBytes])
		}
	}
	return nil
}

// ClearColor fills a subresource with one color.
func ClearColor(im *Image, level, layer uint32, c gputypes.Color) {
	v := [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
	fillSub(im, level, layer, v)
}

// ClearDepthStencil fills the depth and/or stencil aspect of a
// subresource, keeping the aspect that is not cleared.
func ClearDepthStencil(im *Image, level, layer uint32, depth float32, stencil uint32, clearDepth, clearStencil bool) {
	e := im.Extent(level)
	for z := range e.DepthOrArrayLayers {
		for y := range e.Height {
			for x := range e.Width {
				v := im.Load(level, layer, x, y, z)
				if clearDepth {
					v[0] = depth
				}
				if clearStencil {
					v[1] = float32(stencil)
				}
				im.Store(level, layer, x, y, z, v)
			}
		}
	}
}

func fillSub(im *Image, level, layer uint32, v [4]float32) {
	texel := make([]byte, im.Info.BytesPerTexel)
	EncodeTexel(im.Format, v, texel)
	sub := im.Sub(level, layer)
	for off := 0; off < len(sub); off += len(texel) {
		copy(sub[off:], texel)
	}
}

// =============================================================================
// Blit
// =============================================================================

// Blit copies a region of src into a region of dst, scaling and converting
// formats as needed.
func Blit(src, dst *Image, desc rhi.BlitDesc) {
	sr := desc.SrcRegion.Resolve(src.Extent(desc.SrcLevel))
	dr := desc.DstRegion.Resolve(dst.Extent(desc.DstLevel))

	if src.Format == dst.Format && sr.Extent == dr.Extent {
		_ = CopyImage(src, dst, rhi.TextureCopyDesc{
			SrcLevel: desc.SrcLevel, SrcLayer: desc.SrcLayer, SrcOffset: sr.Offset,
			DstLevel: desc.DstLevel, DstLayer: desc.DstLayer, DstOffset: dr.Offset,
			Extent: sr.Extent,
		})
		return
	}
	if src.Format == dst.Format && is8BitRGBA(src.Format) &&
		sr.Extent.DepthOrArrayLayers == 1 && dr.Extent.DepthOrArrayLayers == 1 {
		blit8BitRGBA(src, dst, desc, sr, dr)
		return
	}
	blitGeneric(src, dst, desc, sr, dr)
}

func is8BitRGBA(f rhi.Format) bool {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return true
	}
	return false
}

// rgbaView exposes one 2D slice of an 8-bit RGBA subresource as an
// image.RGBA without copying. Channel order does not matter for scaling.
func rgbaView(im *Image, level, layer, z uint32) *image.RGBA {
	e := im.Extent(level)
	pitch := int(im.RowPitch(level))
	plane := pitch * int(e.Height)
	sub := im.Sub(level, layer)
	return &image.RGBA{
		Pix:    sub[int(z)*plane : int(z+1)*plane],
		Stride: pitch,
		Rect:   image.Rect(0, 0, int(e.Width), int(e.Height)),
	}
}

func blit8BitRGBA(src, dst *Image, desc rhi.BlitDesc, sr, dr rhi.Region) {
	s := rgbaView(src, desc.SrcLevel, desc.SrcLayer, sr.Offset.Z)
	d := rgbaView(dst, desc.DstLevel, desc.DstLayer, dr.Offset.Z)
	srect := image.Rect(int(sr.Offset.X), int(sr.Offset.Y),
		int(sr.Offset.X+sr.Extent.Width), int(sr.Offset.Y+sr.Extent.Height))
	drect := image.Rect(int(dr.Offset.X), int(dr.Offset.Y),
		int(dr.Offset.X+dr.Extent.Width), int(dr.Offset.Y+dr.Extent.Height))
	var scaler draw.Scaler = draw.NearestNeighbor
	if desc.Filter == gputypes.FilterModeLinear {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(d, drect, s, srect, draw.Src, nil)
}

func blitGeneric(src, dst *Image, desc rhi.BlitDesc, sr, dr rhi.Region) {
	linear := desc.Filter == gputypes.FilterModeLinear
	for z := range dr.Extent.DepthOrArrayLayers {
		for y := range dr.Extent.Height {
			for x := range dr.Extent.Width {
				u := (float32(x) + 0.5) / float32(dr.Extent.Width)
				v := (float32(y) + 0.5) / float32(dr.Extent.Height)
				w := (float32(z) + 0.5) / float32(dr.Extent.DepthOrArrayLayers)
				var c [4]float32
				if linear {
					c = sampleBilinear(src, desc.SrcLevel, desc.SrcLayer, sr, u, v, w)
				} else {
					c = sampleNearest(src, desc.SrcLevel, desc.SrcLayer, sr, u, v, w)
				}
				dst.Store(desc.DstLevel, desc.DstLayer, dr.Offset.X+x, dr.Offset.Y+y, dr.Offset.Z+z, c)
			}
		}
	}
}

func sampleNearest(im *Image, level, layer uint32, r rhi.Region, u, v, w float32) [4]float32 {
	x := min(uint32(u*float32(r.Extent.Width)), r.Extent.Width-1)
	y := min(uint32(v*float32(r.Extent.Height)), r.Extent.Height-1)
	z := min(uint32(w*float32(r.Extent.DepthOrArrayLayers)), r.Extent.DepthOrArrayLayers-1)
	return im.Load(level, layer, r.Offset.X+x, r.Offset.Y+y, r.Offset.Z+z)
}

func sampleBilinear(im *Image, level, layer uint32, r rhi.Region, u, v, w float32) [4]float32 {
	fx := u*float32(r.Extent.Width) - 0.5
	fy := v*float32(r.Extent.Height) - 0.5
	z := min(uint32(w*float32(r.Extent.DepthOrArrayLayers)), r.Extent.DepthOrArrayLayers-1)
	x0, y0 := clampIndex(fx, r.Extent.Width), clampIndex(fy, r.Extent.Height)
	x1, y1 := min(x0+1, r.Extent.Width-1), min(y0+1, r.Extent.Height-1)
	tx, ty := clamp(fx-float32(x0), 0, 1), clamp(fy-float32(y0), 0, 1)

	load := func(x, y uint32) [4]float32 {
		return im.Load(level, layer, r.Offset.X+x, r.Offset.Y+y, r.Offset.Z+z)
	}
	c00, c10, c01, c11 := load(x0, y0), load(x1, y0), load(x0, y1), load(x1, y1)
	var out [4]float32
	for i := range 4 {
		top := c00[i]*(1-tx) + c10[i]*tx
		bottom := c01[i]*(1-tx) + c11[i]*tx
		out[i] = top*(1-ty) + bottom*ty
	}
	return out
}

func clampIndex(f float32, n uint32) uint32 {
	if f <= 0 {
		return 0
	}
	return min(uint32(f), n-1)
}

// =============================================================================
// Mip reduction
// =============================================================================

// Downsample writes level srcLevel+1 of every layer from srcLevel, reducing
// each 2x2 (2x2x2 for 3D) footprint with mode. Footprints are clamped at
// odd edges.
func Downsample(im *Image, srcLevel uint32, mode rhi.MipmapMode) {
	if srcLevel+1 >= im.Levels {
		return
	}
	se := im.Extent(srcLevel)
	de := im.Extent(srcLevel + 1)
	for layer := range im.Layers {
		for z := range de.DepthOrArrayLayers {
			for y := range de.Height {
				for x := range de.Width {
					var acc [4]float32
					n := 0
					for dz := range uint32(2) {
						sz := min(z*2+dz, se.DepthOrArrayLayers-1)
						for dy := range uint32(2) {
							sy := min(y*2+dy, se.Height-1)
							for dx := range uint32(2) {
								sx := min(x*2+dx, se.Width-1)
								c := im.Load(srcLevel, layer, sx, sy, sz)
								acc = reduce(acc, c, n, mode)
								n++
							}
						}
					}
					if mode == rhi.MipmapAverage {
						for i := range acc {
							acc[i] /= float32(n)
						}
					}
					im.Store(srcLevel+1, layer, x, y, z, acc)
				}
			}
		}
	}
}

func reduce(acc, c [4]float32, n int, mode rhi.MipmapMode) [4]float32 {
	if n == 0 {
		return c
	}
	for i := range acc {
		switch mode {
		case rhi.MipmapMin:
			acc[i] = min(acc[i], c[i])
		case rhi.MipmapMax:
			acc[i] = max(acc[i], c[i])
		default:
			acc[i] += c[i]
		}
	}
	return acc
}
